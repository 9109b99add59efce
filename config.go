package oit

import (
	"fmt"
	"math"
)

// Limits for Config values.
const (
	MaxSamplesPerPixel = 64
	MaxNodesPerPixel   = 1024
)

// Config is an immutable pipeline configuration. Change it through
// Pipeline.Reconfigure or Pipeline.SetParam; every change rebuilds the
// backend's resources.
type Config struct {
	// Strategy selects the fragment store.
	Strategy Strategy

	// SamplesPerPixel is K for StrategyBounded, in [1, 64].
	SamplesPerPixel int

	// Backing selects buffer or tiled texture layout.
	Backing Backing

	// Overflow is the StrategyBounded overflow policy.
	Overflow OverflowPolicy

	// ListSort is the StrategyList resolve mode.
	ListSort ListSortMode

	// NodesPerPixel sizes the StrategyList node pool (width*height*nodes)
	// and bounds per-pixel fragments for StrategyDynamic overflow checks.
	NodesPerPixel int

	// DepthKey selects the sort key.
	DepthKey DepthKey

	// Background is the clear color behind opaque geometry.
	Background RGBA

	// Backend names a registered backend. Empty selects the best available.
	Backend string
}

// DefaultConfig returns the default configuration: a bounded store with 8
// samples per pixel in buffer backing, keeping the nearest samples.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyBounded,
		SamplesPerPixel: 8,
		Backing:         BackingBuffer,
		Overflow:        KeepNearest,
		ListSort:        SortOnResolve,
		NodesPerPixel:   16,
		DepthKey:        DepthNDC,
		Background:      Black,
	}
}

// Validate checks the configuration independently of resolution.
func (c Config) Validate() error {
	if c.Strategy < StrategyBounded || c.Strategy > StrategyDynamic {
		return fmt.Errorf("%w: %d", ErrUnknownStrategy, int(c.Strategy))
	}
	if c.SamplesPerPixel < 1 || c.SamplesPerPixel > MaxSamplesPerPixel {
		return fmt.Errorf("%w: samples %d not in [1, %d]", ErrInvalidSamples, c.SamplesPerPixel, MaxSamplesPerPixel)
	}
	if c.NodesPerPixel < 1 || c.NodesPerPixel > MaxNodesPerPixel {
		return fmt.Errorf("%w: nodes %d not in [1, %d]", ErrInvalidSamples, c.NodesPerPixel, MaxNodesPerPixel)
	}
	switch c.Backing {
	case BackingBuffer:
	case BackingTexture:
		if c.Strategy == StrategyDynamic {
			return fmt.Errorf("%w: %s needs buffer backing", ErrUnsupportedBacking, c.Strategy)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBacking, int(c.Backing))
	}
	if c.Overflow > MergeFarthest {
		return fmt.Errorf("oit: unknown overflow policy %d", c.Overflow)
	}
	if c.ListSort != SortOnResolve && c.ListSort != Unsorted {
		return fmt.Errorf("oit: unknown list sort mode %d", int(c.ListSort))
	}
	if c.DepthKey != DepthNDC && c.DepthKey != DepthEye {
		return fmt.Errorf("oit: unknown depth key %d", int(c.DepthKey))
	}
	return nil
}

// MaxPerPixel returns the most fragments one pixel can hold.
func (c Config) MaxPerPixel() int {
	if c.Strategy == StrategyBounded {
		return c.SamplesPerPixel
	}
	return c.NodesPerPixel
}

// ValidateSize checks the configuration against a resolution.
func (c Config) ValidateSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if uint64(width)*uint64(height)*uint64(c.MaxPerPixel()) > math.MaxInt32 {
		return fmt.Errorf("%w: %dx%d x %d", ErrResolutionOverflow, width, height, c.MaxPerPixel())
	}
	return nil
}
