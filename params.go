package oit

import (
	"fmt"
	"strconv"
)

// Runtime parameter names accepted by SetParam.
const (
	ParamStrategy = "strategy"
	ParamSamples  = "samples"
	ParamBacking  = "backing"
	ParamOverflow = "overflow"
	ParamListSort = "list_sort"
	ParamNodes    = "nodes"
	ParamBackend  = "backend"

	ParamBackground = "background"
)

// ParamNames returns every parameter name in display order.
func ParamNames() []string {
	return []string{ParamStrategy, ParamSamples, ParamBacking, ParamOverflow, ParamListSort, ParamNodes, ParamBackground, ParamBackend}
}

// WithParam returns a copy of c with the named parameter parsed from value.
func (c Config) WithParam(name, value string) (Config, error) {
	var err error
	switch name {
	case ParamStrategy:
		c.Strategy, err = ParseStrategy(value)
	case ParamSamples:
		c.SamplesPerPixel, err = parseCount(value, ErrInvalidSamples)
	case ParamBacking:
		c.Backing, err = ParseBacking(value)
	case ParamOverflow:
		c.Overflow, err = ParseOverflowPolicy(value)
	case ParamListSort:
		c.ListSort, err = ParseListSortMode(value)
	case ParamNodes:
		c.NodesPerPixel, err = parseCount(value, ErrInvalidSamples)
	case ParamBackground:
		c.Background, err = ParseHex(value)
	case ParamBackend:
		c.Backend = value
	default:
		err = fmt.Errorf("oit: unknown parameter %q", name)
	}
	return c, err
}

func parseCount(value string, sentinel error) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", sentinel, value, err)
	}
	return n, nil
}

// Params returns the current value of every parameter.
func (c Config) Params() map[string]string {
	return map[string]string{
		ParamStrategy: c.Strategy.String(),
		ParamSamples:  strconv.Itoa(c.SamplesPerPixel),
		ParamBacking:  c.Backing.String(),
		ParamOverflow: c.Overflow.String(),
		ParamListSort: c.ListSort.String(),
		ParamNodes:    strconv.Itoa(c.NodesPerPixel),
		ParamBackend:  c.Backend,

		ParamBackground: c.Background.Hex(),
	}
}

// SetParam changes one runtime parameter. Every change rebuilds the backend
// through Reconfigure; an invalid value leaves the pipeline untouched.
func (p *Pipeline) SetParam(name, value string) error {
	cfg, err := p.Config().WithParam(name, value)
	if err != nil {
		return err
	}
	return p.Reconfigure(cfg)
}

// Params returns the current runtime parameters.
func (p *Pipeline) Params() map[string]string {
	return p.Config().Params()
}
