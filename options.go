package oit

import (
	"log/slog"

	"github.com/gogpu/oit/internal/timer"
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	// Default: best available backend, no profiling
//	p, err := oit.NewPipeline(oit.DefaultConfig())
//
//	// Software backend with 4 workers, timings into a registry
//	reg := oit.NewMetricsRegistry()
//	p, err := oit.NewPipeline(cfg, oit.WithWorkers(4), oit.WithProfilingSink(reg))
type Option func(*pipelineOptions)

type pipelineOptions struct {
	backend  Backend
	sink     ProfilingSink
	timerSrc timer.QuerySource
	timerCap int
	workers  int
	logger   *slog.Logger
}

func defaultOptions() pipelineOptions {
	return pipelineOptions{
		timerCap: timer.DefaultPoolSize,
	}
}

// WithBackend injects a backend instance. The pipeline takes ownership and
// closes it on Reconfigure or Close. Config.Backend is ignored for the first
// configuration.
func WithBackend(b Backend) Option {
	return func(o *pipelineOptions) {
		o.backend = b
	}
}

// WithProfilingSink sets the sink receiving per-phase durations after every
// frame.
func WithProfilingSink(s ProfilingSink) Option {
	return func(o *pipelineOptions) {
		o.sink = s
	}
}

// WithTimerPool sets the number of timer queries each phase may have in
// flight. Regions beyond that are not measured.
func WithTimerPool(n int) Option {
	return func(o *pipelineOptions) {
		o.timerCap = n
	}
}

// WithTimerSource replaces the host clock used to time phases.
func WithTimerSource(src timer.QuerySource) Option {
	return func(o *pipelineOptions) {
		o.timerSrc = src
	}
}

// WithWorkers sets the worker count of software backends the pipeline
// creates.
func WithWorkers(n int) Option {
	return func(o *pipelineOptions) {
		o.workers = n
	}
}

// WithLogger sets the global logger, like SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = l
	}
}
