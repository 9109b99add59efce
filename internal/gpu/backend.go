// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/gogpu/oit"
	"github.com/gogpu/oit/internal/parallel"
	"github.com/gogpu/oit/internal/raster"
	"github.com/gogpu/oit/internal/scan"
	"github.com/gogpu/oit/internal/timer"
)

const (
	fragBytes   = 16 // Frag: pixel, depth, key, color
	sampleBytes = 16 // Sample: depth, color, next, pad
)

// scanBlock is the number of elements one scan_reduce thread folds.
const scanBlock = scan.DefaultWorkgroupSize * scan.DefaultElemsPerThread

// Backend runs the transparency kernels on a HAL device. Primitives are
// rasterized on the host into a fragment stream; every kernel consuming
// fragments runs one thread per fragment. Each phase is one submission
// followed by a fence wait, so phases are complete when their method
// returns.
type Backend struct {
	mu sync.Mutex

	dev  *Device
	disp *Dispatcher
	bufs *Buffers
	pool *parallel.WorkerPool

	cfg        oit.Config
	width      int
	height     int
	pixels     uint32
	levels     []int
	levelOff   []uint32
	capacity   uint32
	fragCap    uint64
	background uint32

	total    uint32
	grows    int
	counters [numCounters]uint32
	scratch  []byte
}

var _ oit.Backend = (*Backend)(nil)

// NewBackend creates a backend on dev and compiles every kernel.
// The backend takes ownership of dev.
func NewBackend(dev *Device) (*Backend, error) {
	disp := NewDispatcher(dev.Device, dev.Queue)
	if err := disp.Init(); err != nil {
		dev.Close()
		return nil, err
	}
	return &Backend{
		dev:  dev,
		disp: disp,
		pool: parallel.NewWorkerPool(runtime.GOMAXPROCS(0)),
	}, nil
}

// Name implements oit.Backend.
func (b *Backend) Name() string {
	return oit.BackendWGPU
}

// TimerSource returns a query source timing phases by the device's busy
// clock. A Pipeline uses it unless another source is configured.
func (b *Backend) TimerSource() timer.QuerySource {
	return &timer.BusySource{Busy: b.disp.Busy}
}

// SetLogger routes internal/gpu logging to l.
func (b *Backend) SetLogger(l *slog.Logger) {
	SetLogger(l)
}

// Configure implements oit.Backend. Samples live in storage buffers only;
// texture backing is rejected. The dynamic sample buffer keeps its capacity
// across resolutions.
func (b *Backend) Configure(cfg oit.Config, width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateSize(width, height); err != nil {
		return err
	}
	if cfg.Backing != oit.BackingBuffer {
		return fmt.Errorf("%w: %s backing on %s", oit.ErrUnsupportedBacking, cfg.Backing, oit.BackendWGPU)
	}

	pixels := width * height
	levels := scan.LevelSizes(pixels, scanBlock)
	offsets := make([]uint32, len(levels))
	var levelTotal int
	for i, n := range levels {
		offsets[i] = uint32(levelTotal)
		levelTotal += n
	}

	var capacity uint64
	switch cfg.Strategy {
	case oit.StrategyBounded:
		capacity = uint64(pixels) * uint64(cfg.SamplesPerPixel)
	case oit.StrategyList:
		capacity = uint64(pixels) * uint64(cfg.NodesPerPixel)
	case oit.StrategyDynamic:
		if b.cfg.Strategy == oit.StrategyDynamic {
			capacity = uint64(b.capacity)
		}
	}
	if capacity > math.MaxUint32 {
		return fmt.Errorf("%w: %d samples", oit.ErrResolutionOverflow, capacity)
	}

	var sizes [numSlots]uint64
	px := uint64(pixels) * 4
	for _, s := range []Slot{SlotDepth, SlotOpaque, SlotCounts, SlotHeads, SlotLocks, SlotDarkened, SlotAccum, SlotOutput} {
		sizes[s] = px
	}
	sizes[SlotFrags] = max(b.fragCap, fragBytes)
	sizes[SlotCounters] = numCounters * 4
	sizes[SlotLevels] = uint64(levelTotal) * 4
	sizes[SlotSamples] = max(capacity, 1) * sampleBytes

	bufs, err := b.disp.Allocate(sizes, px+numCounters*4)
	if err != nil {
		return fmt.Errorf("gpu: configure %dx%d: %w", width, height, err)
	}
	if b.bufs != nil {
		b.disp.Destroy(b.bufs)
	}
	b.bufs = bufs
	b.cfg = cfg
	b.width, b.height = width, height
	b.pixels = uint32(pixels)
	b.levels, b.levelOff = levels, offsets
	b.capacity = uint32(capacity)
	b.fragCap = sizes[SlotFrags]

	slogger().Debug("gpu: configured",
		"strategy", cfg.Strategy.String(),
		"width", width, "height", height,
		"capacity", b.capacity,
		"scan_levels", levels)
	return nil
}

// params returns the uniform block common to every kernel of this frame.
func (b *Backend) params() Params {
	p := Params{
		Width:      uint32(b.width),
		Height:     uint32(b.height),
		Pixels:     b.pixels,
		K:          uint32(b.cfg.SamplesPerPixel),
		Capacity:   b.capacity,
		Background: b.background,
		Policy:     uint32(b.cfg.Overflow),
		Block:      scanBlock,
	}
	switch b.cfg.Strategy {
	case oit.StrategyList:
		p.Mode = modeList
		if b.cfg.ListSort == oit.SortOnResolve {
			p.Sort = 1
		}
	case oit.StrategyDynamic:
		p.Mode = modeDynamic
		p.Sort = 1
	default:
		p.Mode = modeBounded
	}
	return p
}

// Clear implements oit.Backend.
func (b *Backend) Clear(background uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.background = background
	b.total = 0
	b.counters = [numCounters]uint32{}
	return b.disp.Submit("clear", b.bufs, []Step{
		{Kernel: KernelClear, Elements: max(b.pixels, numCounters), Params: b.params()},
	})
}

// uploadFragments rasterizes prims on the host and uploads the fragment
// stream. It returns the number of fragments.
func (b *Backend) uploadFragments(prims []oit.Primitive) (uint32, error) {
	vp := raster.Viewport{Width: b.width, Height: b.height}
	parts := make([][]raster.Fragment, len(prims))
	b.pool.DispatchGroups(len(prims), func(i int) {
		raster.Rasterize(toTriangle(prims[i]), vp, func(f raster.Fragment) {
			parts[i] = append(parts[i], f)
		})
	})

	var n int
	for _, p := range parts {
		n += len(p)
	}
	if uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("gpu: %d fragments exceed 32-bit indexing", n)
	}
	size := uint64(n) * fragBytes
	if cap(b.scratch) < int(size) {
		b.scratch = make([]byte, size)
	}
	data := b.scratch[:size]

	eye := b.cfg.DepthKey == oit.DepthEye
	le := binary.LittleEndian
	o := 0
	for _, p := range parts {
		for _, f := range p {
			key := f.Depth
			if eye {
				key = f.Key
			}
			le.PutUint32(data[o:], uint32(f.Pixel))
			le.PutUint32(data[o+4:], math.Float32bits(f.Depth))
			le.PutUint32(data[o+8:], math.Float32bits(key))
			le.PutUint32(data[o+12:], f.Color)
			o += fragBytes
		}
	}

	if size > b.fragCap {
		grown := max(size, b.fragCap*2)
		if err := b.disp.Realloc(b.bufs, SlotFrags, grown); err != nil {
			return 0, err
		}
		b.fragCap = grown
	}
	if err := b.disp.Write(b.bufs, SlotFrags, data); err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func toTriangle(p oit.Primitive) raster.Triangle {
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

// Opaque implements oit.Backend.
func (b *Backend) Opaque(prims []oit.Primitive) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.uploadFragments(prims)
	if err != nil {
		return err
	}
	p := b.params()
	p.NumFrags = n
	return b.disp.Submit("opaque", b.bufs, []Step{
		{Kernel: KernelOpaqueDepth, Elements: n, Params: p},
		{Kernel: KernelOpaqueColor, Elements: n, Params: p},
	})
}

// Count implements oit.Backend.
func (b *Backend) Count(prims []oit.Primitive) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Strategy != oit.StrategyDynamic {
		return fmt.Errorf("gpu: count phase with %s strategy", b.cfg.Strategy)
	}
	n, err := b.uploadFragments(prims)
	if err != nil {
		return err
	}
	p := b.params()
	p.NumFrags = n
	return b.disp.Submit("count", b.bufs, []Step{{Kernel: KernelCount, Elements: n, Params: p}})
}

// scanSteps returns the load, upward, top and downward passes over the
// level hierarchy.
func (b *Backend) scanSteps() []Step {
	base := b.params()
	steps := make([]Step, 0, 2*len(b.levels)+1)

	load := base
	load.DstOffset, load.DstLen = b.levelOff[0], uint32(b.levels[0])
	steps = append(steps, Step{Kernel: KernelScanLoad, Elements: load.DstLen, Params: load})

	for l := 0; l+1 < len(b.levels); l++ {
		p := base
		p.SrcOffset, p.SrcLen = b.levelOff[l], uint32(b.levels[l])
		p.DstOffset, p.DstLen = b.levelOff[l+1], uint32(b.levels[l+1])
		steps = append(steps, Step{Kernel: KernelScanReduce, Elements: p.DstLen, Params: p})
	}

	top := base
	top.SrcOffset = b.levelOff[len(b.levels)-1]
	steps = append(steps, Step{Kernel: KernelScanTop, Elements: 1, Params: top})

	for l := len(b.levels) - 2; l >= 0; l-- {
		p := base
		p.SrcOffset, p.SrcLen = b.levelOff[l], uint32(b.levels[l])
		p.DstOffset, p.DstLen = b.levelOff[l+1], uint32(b.levels[l+1])
		steps = append(steps, Step{Kernel: KernelScanPush, Elements: p.SrcLen, Params: p})
	}
	return steps
}

// Scan implements oit.Backend. The total is read back to size the sample
// buffer.
func (b *Backend) Scan() (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Strategy != oit.StrategyDynamic {
		return 0, fmt.Errorf("gpu: scan phase with %s strategy", b.cfg.Strategy)
	}
	raw := make([]byte, numCounters*4)
	if err := b.disp.Submit("scan", b.bufs, b.scanSteps(),
		Readback{Src: SlotCounters, Size: numCounters * 4, Dst: raw}); err != nil {
		return 0, err
	}
	b.decodeCounters(raw)
	if b.counters[counterScanOverflow] != 0 {
		return 0, oit.ErrScanOverflow
	}
	b.total = b.counters[counterTotal]
	return b.total, nil
}

// Grow implements oit.Backend.
func (b *Backend) Grow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Strategy != oit.StrategyDynamic {
		return false, fmt.Errorf("gpu: resize phase with %s strategy", b.cfg.Strategy)
	}
	if b.total <= b.capacity {
		return false, nil
	}
	if err := b.disp.Realloc(b.bufs, SlotSamples, uint64(b.total)*sampleBytes); err != nil {
		return false, err
	}
	b.capacity = b.total
	b.grows++
	slogger().Debug("gpu: dynamic buffer grown", "samples", b.capacity, "grows", b.grows)
	return true, nil
}

// Build implements oit.Backend.
func (b *Backend) Build(prims []oit.Primitive) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.uploadFragments(prims)
	if err != nil {
		return err
	}
	p := b.params()
	p.NumFrags = n

	k := KernelBoundedBuild
	switch b.cfg.Strategy {
	case oit.StrategyList:
		k = KernelListBuild
	case oit.StrategyDynamic:
		k = KernelDynamicStore
	}
	return b.disp.Submit("build_vis", b.bufs, []Step{{Kernel: k, Elements: n, Params: p}})
}

// Resolve implements oit.Backend.
func (b *Backend) Resolve() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disp.Submit("use_vis", b.bufs, []Step{
		{Kernel: KernelResolve, Elements: b.pixels, Params: b.params()},
	})
}

// Composite implements oit.Backend. The framebuffer and the frame counters
// are read back in the same submission.
func (b *Backend) Composite(target *oit.Pixmap) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target.Width() != b.width || target.Height() != b.height {
		return fmt.Errorf("%w: target %dx%d, configured %dx%d",
			oit.ErrInvalidSize, target.Width(), target.Height(), b.width, b.height)
	}

	px := uint64(b.pixels) * 4
	out := make([]byte, px)
	raw := make([]byte, numCounters*4)
	if err := b.disp.Submit("composite", b.bufs,
		[]Step{{Kernel: KernelComposite, Elements: b.pixels, Params: b.params()}},
		Readback{Src: SlotOutput, Size: px, Dst: out},
		Readback{Src: SlotCounters, Size: numCounters * 4, Dst: raw},
	); err != nil {
		return err
	}
	b.decodeCounters(raw)

	le := binary.LittleEndian
	for i := range int(b.pixels) {
		target.SetPacked(i, le.Uint32(out[i*4:]))
	}
	return nil
}

func (b *Backend) decodeCounters(raw []byte) {
	for i := range b.counters {
		b.counters[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
}

// Barrier implements oit.Backend. Every phase already waited on its fence.
func (b *Backend) Barrier(oit.Phase) error {
	return nil
}

// Stats implements oit.Backend from the counters read back by Composite.
func (b *Backend) Stats() oit.StoreStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.counters
	s := oit.StoreStats{
		Fragments: uint64(c[counterFragments]),
		Dropped:   uint64(c[counterDropped]),
		Merged:    uint64(c[counterMerged]),
		Contended: uint64(c[counterContended]),
		Capacity:  int(b.capacity),
		Grows:     b.grows,
	}
	switch b.cfg.Strategy {
	case oit.StrategyBounded:
		s.Used = int(s.Fragments - s.Dropped - s.Merged)
	case oit.StrategyList:
		s.Used = int(min(c[counterNodes], b.capacity))
		if c[counterListOverflow] != 0 {
			s.Overflow = oit.ErrListOverflow
		}
	case oit.StrategyDynamic:
		s.Used = int(b.total)
	}
	return s
}

// Close implements oit.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bufs != nil {
		b.disp.Destroy(b.bufs)
		b.bufs = nil
	}
	b.disp.Close()
	b.dev.Close()
	b.pool.Close()
}
