// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// dispatcher.go owns the compute pipelines of the transparency kernels, the
// per-resolution device buffers and the submission of kernel sequences.

package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// wgSize matches WG_SIZE in every per-thread kernel.
	wgSize = 64

	// maxGroupsPerDim is the WebGPU limit on workgroups per dispatch
	// dimension. Larger dispatches spill into y.
	maxGroupsPerDim = 65535

	// numCounters matches NUM_COUNTERS in clear.wgsl.
	numCounters = 8

	fenceTimeout = 5 * time.Second
)

// Counter slots written by the kernels.
const (
	counterNodes = iota
	counterListOverflow
	counterTotal
	counterScanOverflow
	counterDropped
	counterMerged
	counterFragments
	counterContended
)

// Resolve modes, matching MODE_* in resolve.wgsl.
const (
	modeBounded uint32 = iota
	modeList
	modeDynamic
)

// Params is the uniform block shared by every kernel. Its layout matches the
// Params struct of the WGSL sources: 16 consecutive u32 fields.
type Params struct {
	Width      uint32
	Height     uint32
	Pixels     uint32
	NumFrags   uint32
	K          uint32
	Capacity   uint32
	Background uint32
	Policy     uint32
	Mode       uint32
	Sort       uint32

	// SrcOffset/SrcLen and DstOffset/DstLen locate two levels of the scan
	// hierarchy inside the levels buffer.
	SrcOffset uint32
	DstOffset uint32
	SrcLen    uint32
	DstLen    uint32
	Block     uint32
	_         uint32
}

const paramsSize = 16 * 4

func (p Params) toBytes() []byte {
	buf := make([]byte, paramsSize)
	le := binary.LittleEndian
	for i, v := range [...]uint32{
		p.Width, p.Height, p.Pixels, p.NumFrags,
		p.K, p.Capacity, p.Background, p.Policy,
		p.Mode, p.Sort, p.SrcOffset, p.DstOffset,
		p.SrcLen, p.DstLen, p.Block, 0,
	} {
		le.PutUint32(buf[i*4:], v)
	}
	return buf
}

// Slot names one device buffer of the frame state.
type Slot int

const (
	SlotFrags Slot = iota
	SlotDepth
	SlotOpaque
	SlotCounts
	SlotHeads
	SlotLocks
	SlotCounters
	SlotLevels
	SlotSamples
	SlotDarkened
	SlotAccum
	SlotOutput

	numSlots
)

var slotNames = [numSlots]string{
	SlotFrags:    "frags",
	SlotDepth:    "depth",
	SlotOpaque:   "opaque",
	SlotCounts:   "counts",
	SlotHeads:    "heads",
	SlotLocks:    "locks",
	SlotCounters: "counters",
	SlotLevels:   "levels",
	SlotSamples:  "samples",
	SlotDarkened: "darkened",
	SlotAccum:    "accum",
	SlotOutput:   "output",
}

func (s Slot) String() string {
	if s >= 0 && s < numSlots {
		return slotNames[s]
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// binding is one storage binding of a kernel. Binding 0 is always Params.
type binding struct {
	slot     Slot
	readOnly bool
}

func rw(s Slot) binding { return binding{slot: s} }
func ro(s Slot) binding { return binding{slot: s, readOnly: true} }

// kernelBindings lists @group(0) @binding(1..n) of every kernel in order.
// They must match the WGSL declarations exactly.
var kernelBindings = [numKernels][]binding{
	KernelClear:        {rw(SlotDepth), rw(SlotOpaque), rw(SlotCounts), rw(SlotHeads), rw(SlotLocks), rw(SlotCounters)},
	KernelOpaqueDepth:  {ro(SlotFrags), rw(SlotDepth)},
	KernelOpaqueColor:  {ro(SlotFrags), rw(SlotDepth), rw(SlotOpaque)},
	KernelCount:        {ro(SlotFrags), rw(SlotDepth), rw(SlotCounts)},
	KernelScanLoad:     {ro(SlotCounts), rw(SlotLevels)},
	KernelScanReduce:   {rw(SlotLevels), rw(SlotCounters)},
	KernelScanTop:      {rw(SlotLevels), rw(SlotCounters)},
	KernelScanPush:     {rw(SlotLevels), rw(SlotCounters)},
	KernelDynamicStore: {ro(SlotFrags), rw(SlotDepth), rw(SlotCounts), ro(SlotLevels), rw(SlotSamples), rw(SlotCounters)},
	KernelListBuild:    {ro(SlotFrags), rw(SlotDepth), rw(SlotHeads), rw(SlotSamples), rw(SlotCounters)},
	KernelBoundedBuild: {ro(SlotFrags), rw(SlotDepth), rw(SlotCounts), rw(SlotLocks), rw(SlotSamples), rw(SlotCounters)},
	KernelResolve: {
		ro(SlotOpaque), ro(SlotCounts), ro(SlotHeads), ro(SlotLevels),
		ro(SlotSamples), ro(SlotCounters), rw(SlotDarkened), rw(SlotAccum),
	},
	KernelComposite: {ro(SlotDarkened), ro(SlotAccum), rw(SlotOutput)},
}

// bindGroupLayoutEntries returns the layout entries of kernel k.
func bindGroupLayoutEntries(k Kernel) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for i, b := range kernelBindings[k] {
		typ := gputypes.BufferBindingTypeStorage
		if b.readOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	return entries
}

// WorkgroupCount returns the dispatch size for elements threads of kernel k.
// Counts beyond maxGroupsPerDim spill into the y dimension; the kernels fold
// y back into a linear index.
func WorkgroupCount(k Kernel, elements uint32) (x, y uint32) {
	if k == KernelScanTop {
		return 1, 1
	}
	if elements == 0 {
		return 0, 0
	}
	groups := (elements + wgSize - 1) / wgSize
	if groups <= maxGroupsPerDim {
		return groups, 1
	}
	return maxGroupsPerDim, (groups + maxGroupsPerDim - 1) / maxGroupsPerDim
}

// Dispatcher compiles the kernels once per device and submits kernel
// sequences.
type Dispatcher struct {
	mu sync.RWMutex

	device hal.Device
	queue  hal.Queue

	pipelines       [numKernels]hal.ComputePipeline
	pipelineLayouts [numKernels]hal.PipelineLayout
	bgLayouts       [numKernels]hal.BindGroupLayout
	shaderModules   [numKernels]hal.ShaderModule

	// busy accumulates submit-to-fence time in nanoseconds.
	busy atomic.Int64

	initialized bool
}

// NewDispatcher creates a dispatcher for device and queue. Init must be
// called before Submit.
func NewDispatcher(device hal.Device, queue hal.Queue) *Dispatcher {
	return &Dispatcher{device: device, queue: queue}
}

// Init validates every kernel with naga and creates its compute pipeline.
// Calling Init again is a no-op.
func (d *Dispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	for k := Kernel(0); k < numKernels; k++ {
		label := "oit_" + k.String()

		if _, err := CompileSPIRV(k); err != nil {
			d.destroyPartialInit(k)
			return err
		}

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: hal.ShaderSource{WGSL: k.Source()},
		})
		if err != nil {
			d.destroyPartialInit(k)
			return fmt.Errorf("gpu: create shader module for %s: %w", k, err)
		}
		d.shaderModules[k] = module

		entries := bindGroupLayoutEntries(k)
		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   label + "_bgl",
			Entries: entries,
		})
		if err != nil {
			d.destroyPartialInit(k + 1)
			return fmt.Errorf("gpu: create bind group layout for %s: %w", k, err)
		}
		d.bgLayouts[k] = bgLayout

		layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            label + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPartialInit(k + 1)
			return fmt.Errorf("gpu: create pipeline layout for %s: %w", k, err)
		}
		d.pipelineLayouts[k] = layout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  label,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPartialInit(k + 1)
			return fmt.Errorf("gpu: create compute pipeline for %s: %w", k, err)
		}
		d.pipelines[k] = pipeline

		slogger().Debug("gpu: pipeline created",
			"kernel", k.String(),
			"bindings", len(entries))
	}

	d.initialized = true
	slogger().Info("gpu: all kernels initialized", "kernels", int(numKernels))
	return nil
}

// destroyPartialInit releases the resources of kernels [0, upTo).
func (d *Dispatcher) destroyPartialInit(upTo Kernel) {
	for k := Kernel(0); k < upTo; k++ {
		if d.pipelines[k] != nil {
			d.device.DestroyComputePipeline(d.pipelines[k])
			d.pipelines[k] = nil
		}
		if d.pipelineLayouts[k] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[k])
			d.pipelineLayouts[k] = nil
		}
		if d.bgLayouts[k] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[k])
			d.bgLayouts[k] = nil
		}
		if d.shaderModules[k] != nil {
			d.device.DestroyShaderModule(d.shaderModules[k])
			d.shaderModules[k] = nil
		}
	}
}

// Close releases every pipeline. Init must be called again before reuse.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPartialInit(numKernels)
	d.initialized = false
}

// Buffers holds the device buffers of one resolution.
type Buffers struct {
	slots   [numSlots]hal.Buffer
	sizes   [numSlots]uint64
	staging hal.Buffer
	stage   uint64
}

// Size returns the byte size of a slot.
func (b *Buffers) Size(s Slot) uint64 {
	return b.sizes[s]
}

// createBuffer creates a buffer of at least 4 bytes.
func (d *Dispatcher) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

// Allocate creates every slot with the given byte sizes plus a staging
// buffer of stagingSize bytes for readback.
func (d *Dispatcher) Allocate(sizes [numSlots]uint64, stagingSize uint64) (*Buffers, error) {
	bufs := &Buffers{}
	for s := Slot(0); s < numSlots; s++ {
		if err := d.Realloc(bufs, s, sizes[s]); err != nil {
			d.Destroy(bufs)
			return nil, err
		}
	}
	staging, err := d.createBuffer("oit_staging", stagingSize,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		d.Destroy(bufs)
		return nil, fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	bufs.staging = staging
	bufs.stage = max(stagingSize, 4)

	slogger().Debug("gpu: buffers allocated",
		"samples_bytes", bufs.sizes[SlotSamples],
		"levels_bytes", bufs.sizes[SlotLevels],
		"staging_bytes", bufs.stage)
	return bufs, nil
}

// Realloc replaces one slot with a buffer of size bytes.
func (d *Dispatcher) Realloc(bufs *Buffers, s Slot, size uint64) error {
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	buf, err := d.createBuffer("oit_"+s.String(), size, usage)
	if err != nil {
		return fmt.Errorf("gpu: create %s buffer: %w", s, err)
	}
	if bufs.slots[s] != nil {
		d.device.DestroyBuffer(bufs.slots[s])
	}
	bufs.slots[s] = buf
	bufs.sizes[s] = max(size, 4)
	return nil
}

// Write uploads data at the start of a slot.
func (d *Dispatcher) Write(bufs *Buffers, s Slot, data []byte) error {
	if uint64(len(data)) > bufs.sizes[s] {
		return fmt.Errorf("gpu: %d bytes exceed %s buffer of %d", len(data), s, bufs.sizes[s])
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(bufs.slots[s], 0, data)
	}
	return nil
}

// Destroy releases every buffer in bufs.
func (d *Dispatcher) Destroy(bufs *Buffers) {
	if bufs == nil {
		return
	}
	for i, b := range bufs.slots {
		if b != nil {
			d.device.DestroyBuffer(b)
			bufs.slots[i] = nil
		}
	}
	if bufs.staging != nil {
		d.device.DestroyBuffer(bufs.staging)
		bufs.staging = nil
	}
}

// Step is one kernel dispatch.
type Step struct {
	Kernel   Kernel
	Elements uint32
	Params   Params
}

// Readback copies Size bytes from the start of Src into Dst after the steps
// complete.
type Readback struct {
	Src  Slot
	Size uint64
	Dst  []byte
}

// submission tracks the per-submit resources for cleanup.
type submission struct {
	device     hal.Device
	uniforms   []hal.Buffer
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *submission) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
	for _, u := range r.uniforms {
		r.device.DestroyBuffer(u)
	}
}

// Submit encodes steps as consecutive compute passes, copies the readbacks
// into staging, submits once and waits for the fence. Pass boundaries order
// the storage writes of one step before the next.
func (d *Dispatcher) Submit(label string, bufs *Buffers, steps []Step, reads ...Readback) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return fmt.Errorf("gpu: dispatcher not initialized, call Init() first")
	}
	var total uint64
	for _, r := range reads {
		total += r.Size
	}
	if total > bufs.stage {
		return fmt.Errorf("gpu: readback of %d bytes exceeds staging buffer of %d", total, bufs.stage)
	}

	res := &submission{device: d.device}
	defer res.cleanup()

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("gpu: %s: create command encoder: %w", label, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("gpu: %s: begin encoding: %w", label, err)
	}

	for _, st := range steps {
		x, y := WorkgroupCount(st.Kernel, st.Elements)
		if x == 0 {
			continue
		}
		bg, err := d.bindGroup(res, bufs, st)
		if err != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("gpu: %s: %w", label, err)
		}
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "oit_" + st.Kernel.String()})
		pass.SetPipeline(d.pipelines[st.Kernel])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(x, y, 1)
		pass.End()
	}

	var off uint64
	for _, r := range reads {
		encoder.CopyBufferToBuffer(bufs.slots[r.Src], bufs.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: off, Size: r.Size},
		})
		off += r.Size
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: %s: end encoding: %w", label, err)
	}
	res.cmdBuf = cmdBuf

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: %s: create fence: %w", label, err)
	}
	res.fence = fence
	submitted := time.Now()
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: %s: submit: %w", label, err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	d.busy.Add(int64(time.Since(submitted)))
	if err != nil {
		return fmt.Errorf("gpu: %s: wait: %w", label, err)
	}
	if !ok {
		return fmt.Errorf("gpu: %s: timeout after %v", label, fenceTimeout)
	}

	off = 0
	for _, r := range reads {
		if err := d.queue.ReadBuffer(bufs.staging, off, r.Dst[:r.Size]); err != nil {
			return fmt.Errorf("gpu: %s: read %s: %w", label, r.Src, err)
		}
		off += r.Size
	}
	return nil
}

// Busy returns the accumulated time between queue submission and fence
// signal over every Submit. Host-side encoding and readback are excluded.
func (d *Dispatcher) Busy() time.Duration {
	return time.Duration(d.busy.Load())
}

// bindGroup uploads st.Params into a fresh uniform buffer and binds it with
// the kernel's slots.
func (d *Dispatcher) bindGroup(res *submission, bufs *Buffers, st Step) (hal.BindGroup, error) {
	uniform, err := d.createBuffer("oit_params", paramsSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("create params for %s: %w", st.Kernel, err)
	}
	res.uniforms = append(res.uniforms, uniform)
	d.queue.WriteBuffer(uniform, 0, st.Params.toBytes())

	entry := func(b uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding:  b,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: 0},
		}
	}
	entries := []gputypes.BindGroupEntry{entry(0, uniform)}
	for i, b := range kernelBindings[st.Kernel] {
		entries = append(entries, entry(uint32(i+1), bufs.slots[b.slot]))
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "oit_" + st.Kernel.String() + "_bg",
		Layout:  d.bgLayouts[st.Kernel],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group for %s: %w", st.Kernel, err)
	}
	res.bindGroups = append(res.bindGroups, bg)
	return bg, nil
}
