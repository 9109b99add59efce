package oit

import (
	"fmt"
	"slices"
	"sync"
)

// Phase is one step of a frame. Phases run in declaration order; the
// Count, Scan and Resize phases run only for StrategyDynamic.
type Phase int

const (
	PhaseClear Phase = iota
	PhaseOpaque
	PhaseCount
	PhaseScan
	PhaseResize
	PhaseBuild
	PhaseResolve
	PhaseComposite
)

// phaseNames are the names pushed to the profiling sink.
var phaseNames = [...]string{
	PhaseClear:     "clear",
	PhaseOpaque:    "opaque",
	PhaseCount:     "count",
	PhaseScan:      "scan",
	PhaseResize:    "resize",
	PhaseBuild:     "build_vis",
	PhaseResolve:   "use_vis",
	PhaseComposite: "composite",
}

// FrameTimeName is the profiling name of the whole frame.
const FrameTimeName = "time"

// String returns the phase's profiling name.
func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Phases returns every phase in execution order.
func Phases() []Phase {
	return []Phase{PhaseClear, PhaseOpaque, PhaseCount, PhaseScan, PhaseResize, PhaseBuild, PhaseResolve, PhaseComposite}
}

// Primitive is a triangle after the vertex stage.
type Primitive struct {
	// Clip holds clip-space positions.
	Clip [3]Vec4

	// Key holds per-vertex sort keys, used with DepthEye.
	Key [3]float32

	// Color is premultiplied RGBA8, R in the low byte.
	Color uint32
}

// StoreStats describes the fragment store after a frame.
type StoreStats struct {
	// Fragments is the number of transparent fragments that passed the
	// opaque depth test.
	Fragments uint64

	// Dropped is the number of fragments the store discarded.
	Dropped uint64

	// Merged is the number of fragments folded by MergeFarthest.
	Merged uint64

	// Contended is the number of mutex texel acquisitions that spun.
	Contended uint64

	// Capacity is the store's sample capacity.
	Capacity int

	// Used is the number of samples written.
	Used int

	// Grows counts dynamic buffer reallocations.
	Grows int

	// Overflow is non-nil if the frame exhausted a store.
	Overflow error
}

// Backend executes frame phases on a device.
//
// The pipeline calls Configure whenever the configuration or resolution
// changes, then per frame the phase methods in Phase order, each followed by
// Barrier with the phase just issued. A backend may execute phases lazily;
// everything a phase wrote must be visible to later phases once Barrier
// returns.
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "wgpu").
	Name() string

	// Configure (re)allocates every resolution-scaled resource.
	Configure(cfg Config, width, height int) error

	// Clear resets per-pixel state and the opaque target to background.
	Clear(background uint32) error

	// Opaque depth-tests opaque primitives into the opaque target.
	Opaque(prims []Primitive) error

	// Count records per-pixel fragment counts (StrategyDynamic).
	Count(prims []Primitive) error

	// Scan turns counts into offsets and returns the frame total
	// (StrategyDynamic).
	Scan() (uint32, error)

	// Grow sizes storage for the last Scan, never shrinking
	// (StrategyDynamic). It reports whether storage was reallocated.
	Grow() (bool, error)

	// Build stores transparent fragments.
	Build(prims []Primitive) error

	// Resolve darkens the opaque background and accumulates fragments.
	Resolve() error

	// Composite writes the final colors into target.
	Composite(target *Pixmap) error

	// Barrier makes the writes of phase visible to later phases.
	Barrier(phase Phase) error

	// Stats describes the store after the last frame.
	Stats() StoreStats

	// Close releases all backend resources.
	Close()
}

// BackendFactory creates a new backend instance.
type BackendFactory func() (Backend, error)

// Backend names.
const (
	BackendSoftware = "software"
	BackendWGPU     = "wgpu"
)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)

	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// RegisterBackend registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// UnregisterBackend removes a backend from the registry.
// This is useful for testing.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// AvailableBackends returns the registered backend names, sorted.
func AvailableBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewBackend creates the named backend. An empty name tries the backends in
// priority order and falls back to the next one when creation fails.
func NewBackend(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		factory, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
		}
		b, err := factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
		}
		return b, nil
	}

	for _, n := range backendPriority {
		factory, ok := backends[n]
		if !ok {
			continue
		}
		b, err := factory()
		if err == nil {
			return b, nil
		}
		slogger().Warn("oit: backend unavailable, trying next", "backend", n, "err", err)
	}
	return nil, ErrBackendNotAvailable
}

func init() {
	RegisterBackend(BackendSoftware, func() (Backend, error) {
		return NewSoftwareBackend(0), nil
	})
}

// live tracks backends owned by pipelines so SetLogger reaches them.
var (
	liveMu sync.Mutex
	live   = make(map[Backend]struct{})
)

func trackBackend(b Backend) {
	liveMu.Lock()
	live[b] = struct{}{}
	liveMu.Unlock()
	propagateLogger(b, Logger())
}

func untrackBackend(b Backend) {
	liveMu.Lock()
	delete(live, b)
	liveMu.Unlock()
}
