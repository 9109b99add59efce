package oit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/oit/internal/timer"
)

// FrameStats describes one rendered frame.
type FrameStats struct {
	// Frame is the frame number, starting at 1.
	Frame uint64

	// OpaquePrims and TransparentPrims count primitives after the vertex
	// stage.
	OpaquePrims      int
	TransparentPrims int

	// Total is the dynamic strategy's scanned fragment count.
	Total uint32

	// Grew reports a dynamic buffer reallocation this frame.
	Grew bool

	// Store describes the fragment store after the frame.
	Store StoreStats

	// Overflow is the frame-fatal error, if any: a list pool or scan
	// overflow. The frame was still composited.
	Overflow error
}

// Timing summarizes the measurements of one phase.
type Timing = timer.Summary

// Pipeline renders frames with order-independent transparency:
//
//	Clear -> Opaque -> [Count -> Scan -> Resize] -> Build -> Resolve -> Composite
//
// The bracketed phases run only for StrategyDynamic. Each phase is followed
// by a backend barrier and wrapped in a timer region.
//
// Render, OnSizeChange, Reconfigure and Close serialize on an internal lock.
type Pipeline struct {
	mu sync.Mutex

	opts    pipelineOptions
	cfg     atomic.Pointer[Config]
	backend Backend

	width, height int
	configured    bool
	closed        bool
	frame         uint64

	timers    *timer.Context
	phase     map[Phase]*timer.Timer
	frameTime *timer.Timer
}

// NewPipeline validates cfg and creates a pipeline. Resources are sized on
// the first OnSizeChange or Render.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := o.backend
	if b == nil {
		var err error
		if b, err = newBackend(cfg.Backend, o.workers); err != nil {
			return nil, err
		}
	}

	hostSrc := o.timerSrc
	if hostSrc == nil {
		hostSrc = &timer.HostQuerySource{}
	}
	phaseSrc := o.timerSrc
	if phaseSrc == nil {
		if tb, ok := b.(timedBackend); ok {
			phaseSrc = tb.TimerSource()
		} else {
			phaseSrc = hostSrc
		}
	}
	p := &Pipeline{
		opts:    o,
		backend: b,
		timers:  timer.NewContext(phaseSrc),
		phase:   make(map[Phase]*timer.Timer),
	}
	for _, ph := range Phases() {
		p.phase[ph] = p.timers.NewTimer(ph.String(), o.timerCap)
	}
	p.frameTime = timer.NewContext(hostSrc).NewTimer(FrameTimeName, o.timerCap)
	p.cfg.Store(&cfg)
	trackBackend(b)

	slogger().Info("oit: pipeline created",
		"backend", b.Name(),
		"strategy", cfg.Strategy.String(),
		"samples", cfg.SamplesPerPixel,
		"backing", cfg.Backing.String())
	return p, nil
}

// timedBackend is implemented by backends that time phases on the device.
type timedBackend interface {
	TimerSource() timer.QuerySource
}

func newBackend(name string, workers int) (Backend, error) {
	if name == BackendSoftware && workers > 0 {
		return NewSoftwareBackend(workers), nil
	}
	return NewBackend(name)
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	return *p.cfg.Load()
}

// BackendName returns the active backend's name.
func (p *Pipeline) BackendName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend.Name()
}

// Size returns the configured resolution.
func (p *Pipeline) Size() (width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// OnSizeChange reallocates every resolution-scaled resource.
func (p *Pipeline) OnSizeChange(width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.resizeLocked(width, height)
}

func (p *Pipeline) resizeLocked(width, height int) error {
	cfg := p.Config()
	if err := cfg.ValidateSize(width, height); err != nil {
		return err
	}
	if err := p.backend.Configure(cfg, width, height); err != nil {
		p.configured = false
		return fmt.Errorf("oit: configure %s %dx%d: %w", p.backend.Name(), width, height, err)
	}
	p.width, p.height = width, height
	p.configured = true
	slogger().Debug("oit: resized", "width", width, "height", height)
	return nil
}

// Reconfigure validates cfg, builds a fresh backend for it and swaps it in.
// On any failure the previous configuration and backend stay active.
func (p *Pipeline) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.configured {
		if err := cfg.ValidateSize(p.width, p.height); err != nil {
			return err
		}
	}

	name := cfg.Backend
	if name == "" {
		name = p.backend.Name()
	}
	b, err := newBackend(name, p.opts.workers)
	if err != nil {
		return err
	}
	if p.configured {
		if err := b.Configure(cfg, p.width, p.height); err != nil {
			b.Close()
			return fmt.Errorf("oit: reconfigure %s: %w", name, err)
		}
	}

	old := p.backend
	p.backend = b
	p.cfg.Store(&cfg)
	trackBackend(b)
	untrackBackend(old)
	old.Close()

	slogger().Info("oit: reconfigured",
		"backend", b.Name(),
		"strategy", cfg.Strategy.String(),
		"samples", cfg.SamplesPerPixel,
		"backing", cfg.Backing.String(),
		"overflow", cfg.Overflow.String(),
		"list_sort", cfg.ListSort.String())
	return nil
}

// Render draws one frame of scene seen by cam into target. A target of a new
// size triggers OnSizeChange first.
//
// Frame-fatal store overflows do not fail Render; they are reported in
// FrameStats.Overflow and logged.
func (p *Pipeline) Render(scene Scene, cam Camera, target *Pixmap) (FrameStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return FrameStats{}, ErrClosed
	}
	if !p.configured || target.Width() != p.width || target.Height() != p.height {
		if err := p.resizeLocked(target.Width(), target.Height()); err != nil {
			return FrameStats{}, err
		}
	}

	cfg := p.Config()
	opaque, transparent := vertexStage(scene, cam, cfg.DepthKey)

	p.frame++
	stats := FrameStats{
		Frame:            p.frame,
		OpaquePrims:      len(opaque),
		TransparentPrims: len(transparent),
	}

	err := func() error {
		defer p.frameTime.Scope()()
		return p.runFrame(cfg, opaque, transparent, target, &stats)
	}()
	if err != nil {
		return stats, err
	}

	stats.Store = p.backend.Stats()
	if stats.Overflow == nil {
		stats.Overflow = stats.Store.Overflow
	}
	if stats.Overflow != nil {
		slogger().Warn("oit: frame overflow", "frame", stats.Frame, "err", stats.Overflow)
	}
	p.publishTimings()
	return stats, nil
}

func (p *Pipeline) runFrame(cfg Config, opaque, transparent []Primitive, target *Pixmap, stats *FrameStats) error {
	b := p.backend
	bg := cfg.Background.Packed() | 0xff000000

	if err := p.run(PhaseClear, func() error { return b.Clear(bg) }); err != nil {
		return err
	}
	if err := p.run(PhaseOpaque, func() error { return b.Opaque(opaque) }); err != nil {
		return err
	}

	build := true
	if cfg.Strategy == StrategyDynamic {
		if err := p.run(PhaseCount, func() error { return b.Count(transparent) }); err != nil {
			return err
		}
		err := p.run(PhaseScan, func() error {
			total, err := b.Scan()
			stats.Total = total
			return err
		})
		switch {
		case err == nil:
			if err := p.run(PhaseResize, func() error {
				grew, err := b.Grow()
				stats.Grew = grew
				return err
			}); err != nil {
				return err
			}
		case isFrameFatal(err):
			// Offsets are garbage; composite the opaque layer only.
			stats.Overflow = err
			build = false
		default:
			return err
		}
	}

	if build {
		if err := p.run(PhaseBuild, func() error { return b.Build(transparent) }); err != nil {
			return err
		}
	}
	if err := p.run(PhaseResolve, b.Resolve); err != nil {
		return err
	}
	return p.run(PhaseComposite, func() error { return b.Composite(target) })
}

// run executes one phase and its barrier inside the phase's timer region.
func (p *Pipeline) run(ph Phase, fn func() error) error {
	defer p.phase[ph].Scope()()
	if err := fn(); err != nil {
		if isFrameFatal(err) {
			return err
		}
		return fmt.Errorf("oit: %s: %w", ph, err)
	}
	if err := p.backend.Barrier(ph); err != nil {
		return fmt.Errorf("oit: %s barrier: %w", ph, err)
	}
	return nil
}

// publishTimings drains finished timer queries and pushes the latest
// duration of every phase that produced one.
func (p *Pipeline) publishTimings() {
	sink := p.opts.sink
	for _, ph := range Phases() {
		t := p.phase[ph]
		if t.Receive() > 0 && sink != nil {
			sink.Record(t.Name(), t.Stats().Latest)
		}
	}
	if p.frameTime.Receive() > 0 && sink != nil {
		sink.Record(FrameTimeName, p.frameTime.Stats().Latest)
	}
}

// Timings returns the statistics of every phase that has been measured,
// keyed by profiling name, plus FrameTimeName for the whole frame.
func (p *Pipeline) Timings() map[string]Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Timing)
	for _, ph := range Phases() {
		if s := p.phase[ph].Stats(); s.Count > 0 {
			out[ph.String()] = s
		}
	}
	if s := p.frameTime.Stats(); s.Count > 0 {
		out[FrameTimeName] = s
	}
	return out
}

// ResetTimings discards the collected timer statistics.
func (p *Pipeline) ResetTimings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.phase {
		t.Reset()
	}
	p.frameTime.Reset()
}

// Close releases the backend. Further calls return ErrClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	untrackBackend(p.backend)
	p.backend.Close()
	return nil
}

func isFrameFatal(err error) bool {
	return errors.Is(err, ErrScanOverflow) || errors.Is(err, ErrListOverflow)
}
