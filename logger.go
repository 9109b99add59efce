package oit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/oit/internal/fragment"
	"github.com/gogpu/oit/internal/scan"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for oit and its internal packages.
// By default, oit produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by oit:
//   - [slog.LevelDebug]: buffer sizes, scan hierarchy, dynamic buffer growth
//   - [slog.LevelInfo]: backend selection and reconfiguration
//   - [slog.LevelWarn]: frame-fatal overflows, GPU fallback
//
// Example:
//
//	oit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	scan.SetLogger(l)
	fragment.SetLogger(l)

	// Live backends pick the logger up as well.
	liveMu.Lock()
	for b := range live {
		propagateLogger(b, l)
	}
	liveMu.Unlock()
}

// Logger returns the current logger. The gpu package calls this to share
// the configuration without an import cycle.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
