package oit

import (
	"errors"

	"github.com/gogpu/oit/internal/fragment"
	"github.com/gogpu/oit/internal/scan"
)

// Configuration errors. Reconfiguration that fails with one of these leaves
// the previous configuration active.
var (
	// ErrUnknownStrategy is returned for a strategy name or value that does
	// not exist.
	ErrUnknownStrategy = errors.New("oit: unknown strategy")

	// ErrInvalidSamples is returned when SamplesPerPixel or NodesPerPixel is
	// out of range.
	ErrInvalidSamples = errors.New("oit: invalid samples per pixel")

	// ErrUnsupportedBacking is returned for a backing the strategy or
	// backend cannot use.
	ErrUnsupportedBacking = errors.New("oit: unsupported backing")

	// ErrInvalidColor is returned for a color string ParseHex rejects.
	ErrInvalidColor = errors.New("oit: invalid color")

	// ErrInvalidSize is returned for a non-positive resolution.
	ErrInvalidSize = errors.New("oit: invalid size")

	// ErrResolutionOverflow is returned when pixels times fragments per
	// pixel does not fit in 32 bits.
	ErrResolutionOverflow = errors.New("oit: resolution overflows 32-bit fragment indices")
)

// Lifecycle errors.
var (
	// ErrBackendNotAvailable is returned when the requested backend is not
	// registered or could not be initialized.
	ErrBackendNotAvailable = errors.New("oit: backend not available")

	// ErrClosed is returned by a pipeline after Close.
	ErrClosed = errors.New("oit: pipeline closed")
)

// Frame-fatal errors. They spoil the transparency of one frame and are
// reported in FrameStats.Overflow; the pipeline stays usable.
var (
	// ErrScanOverflow is reported when a frame's fragment total does not fit
	// in 32 bits.
	ErrScanOverflow = scan.ErrOverflow

	// ErrListOverflow is reported when StrategyList runs out of nodes.
	ErrListOverflow = fragment.ErrListOverflow
)
