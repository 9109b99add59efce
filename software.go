package oit

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/oit/internal/fragment"
	"github.com/gogpu/oit/internal/parallel"
	"github.com/gogpu/oit/internal/raster"
	"github.com/gogpu/oit/internal/resolve"
	"github.com/gogpu/oit/internal/scan"
)

// SoftwareBackend emulates the device on the CPU. Every phase is a set of
// dispatches on a work-stealing goroutine pool: rasterization runs one
// workgroup per triangle, per-pixel phases one thread per pixel. A dispatch
// returns only after all of its threads finished, so every phase method
// already ends with a full barrier.
type SoftwareBackend struct {
	pool *parallel.WorkerPool

	cfg    Config
	width  int
	height int
	vp     raster.Viewport

	depth   *raster.DepthBuffer
	store   fragment.Store
	bounded *fragment.Bounded
	list    *fragment.List
	dynamic *fragment.Dynamic

	darkened []resolve.Color
	accum    []resolve.Color

	fragments atomic.Uint64
}

// NewSoftwareBackend creates a software backend with the given number of
// workers. Zero or less uses GOMAXPROCS.
func NewSoftwareBackend(workers int) *SoftwareBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &SoftwareBackend{pool: parallel.NewWorkerPool(workers)}
}

// Name implements Backend.
func (b *SoftwareBackend) Name() string {
	return BackendSoftware
}

// Configure implements Backend. A dynamic store survives reconfiguration to
// another resolution so its buffer keeps growing monotonically.
func (b *SoftwareBackend) Configure(cfg Config, width, height int) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateSize(width, height); err != nil {
		return err
	}

	texture := cfg.Backing == BackingTexture
	b.bounded, b.list = nil, nil
	switch cfg.Strategy {
	case StrategyBounded:
		b.bounded = fragment.NewBounded(cfg.SamplesPerPixel, cfg.Overflow, texture)
		b.store = b.bounded
		b.dynamic = nil
	case StrategyList:
		b.list = fragment.NewList(cfg.NodesPerPixel, texture)
		b.store = b.list
		b.dynamic = nil
	case StrategyDynamic:
		if b.dynamic == nil {
			engine := scan.New(b.pool, scan.DefaultWorkgroupSize, scan.DefaultElemsPerThread)
			b.dynamic = fragment.NewDynamic(engine)
		}
		b.store = b.dynamic
	}
	if err := b.store.Resize(width, height); err != nil {
		return err
	}

	b.cfg = cfg
	b.width, b.height = width, height
	b.vp = raster.Viewport{Width: width, Height: height}
	b.depth = raster.NewDepthBuffer(width, height)
	b.darkened = make([]resolve.Color, width*height)
	b.accum = make([]resolve.Color, width*height)
	return nil
}

// Clear implements Backend.
func (b *SoftwareBackend) Clear(background uint32) error {
	b.depth.Clear(b.pool, background)
	b.store.Clear(b.pool)
	b.fragments.Store(0)
	return nil
}

func toTriangle(p Primitive) raster.Triangle {
	var t raster.Triangle
	for i, c := range p.Clip {
		t.V[i] = raster.Vertex{
			X: float32(c.X), Y: float32(c.Y), Z: float32(c.Z), W: float32(c.W),
			Key: p.Key[i],
		}
	}
	t.Color = p.Color
	return t
}

// rasterize runs emit for every fragment of prims, one workgroup per
// primitive.
func (b *SoftwareBackend) rasterize(prims []Primitive, emit func(raster.Fragment)) {
	b.pool.DispatchGroups(len(prims), func(i int) {
		raster.Rasterize(toTriangle(prims[i]), b.vp, emit)
	})
}

// Opaque implements Backend.
func (b *SoftwareBackend) Opaque(prims []Primitive) error {
	b.rasterize(prims, func(f raster.Fragment) {
		b.depth.Test(f.Pixel, f.Depth, f.Color|0xff000000)
	})
	return nil
}

// Count implements Backend.
func (b *SoftwareBackend) Count(prims []Primitive) error {
	if b.dynamic == nil {
		return fmt.Errorf("oit: count phase with %s strategy", b.cfg.Strategy)
	}
	b.rasterize(prims, func(f raster.Fragment) {
		if b.depth.Occluded(f.Pixel, f.Depth) {
			return
		}
		b.dynamic.Count(f.Pixel)
	})
	return nil
}

// Scan implements Backend.
func (b *SoftwareBackend) Scan() (uint32, error) {
	if b.dynamic == nil {
		return 0, fmt.Errorf("oit: scan phase with %s strategy", b.cfg.Strategy)
	}
	return b.dynamic.Scan(b.pool)
}

// Grow implements Backend.
func (b *SoftwareBackend) Grow() (bool, error) {
	if b.dynamic == nil {
		return false, fmt.Errorf("oit: resize phase with %s strategy", b.cfg.Strategy)
	}
	return b.dynamic.Grow(), nil
}

// Build implements Backend.
func (b *SoftwareBackend) Build(prims []Primitive) error {
	if b.dynamic != nil {
		b.dynamic.Arm(b.pool)
	}
	eye := b.cfg.DepthKey == DepthEye
	b.rasterize(prims, func(f raster.Fragment) {
		if b.depth.Occluded(f.Pixel, f.Depth) {
			return
		}
		key := f.Depth
		if eye {
			key = f.Key
		}
		b.store.Insert(f.Pixel, fragment.Sample{Depth: key, Color: f.Color, Next: fragment.End})
		b.fragments.Add(1)
	})
	return nil
}

// Resolve implements Backend. One workgroup per row shares a scratch slice.
func (b *SoftwareBackend) Resolve() error {
	sortList := b.cfg.ListSort == SortOnResolve
	b.pool.DispatchGroups(b.height, func(y int) {
		var scratch []fragment.Sample
		for x := range b.width {
			p := y*b.width + x
			var s []fragment.Sample
			switch {
			case b.dynamic != nil:
				s = b.dynamic.Slice(p)
				resolve.SortByDepth(s)
			case b.list != nil:
				scratch = b.list.Samples(p, scratch[:0])
				s = scratch
				// Unsorted lists composite newest first, which is front to
				// back for primitives submitted back to front.
				if sortList {
					resolve.SortByDepth(s)
				}
			default:
				scratch = b.bounded.Samples(p, scratch[:0])
				s = scratch
			}
			bg := resolve.Unpack(b.depth.Color(p))
			b.darkened[p] = bg.Scale(resolve.Darken(s))
			b.accum[p] = resolve.Composite(s)
		}
	})
	return nil
}

// Composite implements Backend.
func (b *SoftwareBackend) Composite(target *Pixmap) error {
	if target.Width() != b.width || target.Height() != b.height {
		return fmt.Errorf("%w: target %dx%d, configured %dx%d",
			ErrInvalidSize, target.Width(), target.Height(), b.width, b.height)
	}
	b.pool.Dispatch(b.width*b.height, 64, func(p int) {
		c := b.darkened[p].Add(b.accum[p])
		target.SetPacked(p, c.Pack())
	})
	return nil
}

// Barrier implements Backend. Phases complete synchronously.
func (b *SoftwareBackend) Barrier(Phase) error {
	return nil
}

// Stats implements Backend.
func (b *SoftwareBackend) Stats() StoreStats {
	s := StoreStats{Fragments: b.fragments.Load()}
	if b.store == nil {
		return s
	}
	s.Dropped = b.store.Dropped()
	switch {
	case b.bounded != nil:
		s.Merged = b.bounded.Merged()
		s.Contended = b.bounded.Contended()
		s.Capacity = b.width * b.height * b.bounded.K()
		s.Used = int(s.Fragments - s.Dropped - s.Merged)
	case b.list != nil:
		s.Capacity = b.list.Capacity()
		s.Used = b.list.Used()
		s.Overflow = b.list.Err()
	case b.dynamic != nil:
		s.Capacity = b.dynamic.Capacity()
		s.Used = int(b.dynamic.Total())
		s.Grows = b.dynamic.Grows()
	}
	return s
}

// Close implements Backend.
func (b *SoftwareBackend) Close() {
	b.pool.Close()
}
