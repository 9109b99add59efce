// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/oit/internal/parallel"
	"github.com/gogpu/oit/internal/scan"
)

// Dynamic stores exactly the fragments counted in a prior pass.
//
// Per frame: Count for every fragment, Prepare (prefix sum, grow, arm the
// countdowns), Insert for every fragment again, then read each pixel's slice.
// The sample buffer only ever grows; Reset releases it.
type Dynamic struct {
	engine *scan.Engine
	pixels int

	counts    []atomic.Uint32
	remaining []atomic.Uint32
	scratch   []uint32
	offsets   []uint32

	buf   []Sample
	total uint32
	grows int

	dropped atomic.Uint64
}

// NewDynamic creates a dynamic store that scans with engine.
// Call Resize before use.
func NewDynamic(engine *scan.Engine) *Dynamic {
	return &Dynamic{engine: engine}
}

// Resize implements Store. The sample buffer is kept.
func (d *Dynamic) Resize(width, height int) error {
	n := width * height
	if err := d.engine.Resize(n); err != nil {
		return fmt.Errorf("dynamic %dx%d: %w", width, height, err)
	}
	d.pixels = n
	d.counts = make([]atomic.Uint32, n)
	d.remaining = make([]atomic.Uint32, n)
	d.scratch = make([]uint32, n)
	d.offsets = nil
	d.total = 0
	return nil
}

// Clear implements Store.
func (d *Dynamic) Clear(pool *parallel.WorkerPool) {
	pool.Dispatch(d.pixels, 64, func(p int) {
		d.counts[p].Store(0)
		d.remaining[p].Store(0)
	})
	d.offsets = nil
	d.total = 0
	d.dropped.Store(0)
}

// Count records one fragment for pixel. Safe for concurrent use.
func (d *Dynamic) Count(pixel int) {
	d.counts[pixel].Add(1)
}

// Prepare runs Scan, Grow and Arm. It returns the frame's fragment total and
// whether the buffer grew.
func (d *Dynamic) Prepare(pool *parallel.WorkerPool) (total uint32, grew bool, err error) {
	total, err = d.Scan(pool)
	if err != nil {
		return 0, false, err
	}
	grew = d.Grow()
	d.Arm(pool)
	return total, grew, nil
}

// Scan turns the per-pixel counts into slice offsets and returns the total.
func (d *Dynamic) Scan(pool *parallel.WorkerPool) (uint32, error) {
	pool.Dispatch(d.pixels, 64, func(p int) {
		d.scratch[p] = d.counts[p].Load()
	})
	total, err := d.engine.Run(d.scratch)
	if err != nil {
		return 0, fmt.Errorf("dynamic scan: %w", err)
	}
	d.offsets = d.engine.Offsets()
	d.total = total
	return total, nil
}

// Grow reallocates the sample buffer if the last Scan needs more than its
// capacity. It never shrinks.
func (d *Dynamic) Grow() bool {
	if int(d.total) <= len(d.buf) {
		return false
	}
	d.buf = make([]Sample, d.total)
	d.grows++
	slogger().Debug("fragment: dynamic buffer grown", "samples", d.total, "grows", d.grows)
	return true
}

// Arm loads every pixel's countdown with its count.
func (d *Dynamic) Arm(pool *parallel.WorkerPool) {
	pool.Dispatch(d.pixels, 64, func(p int) {
		d.remaining[p].Store(d.counts[p].Load())
	})
}

// Insert implements Store. The pixel's countdown hands every writer a
// distinct index inside the pixel's slice; writers beyond the counted
// number are dropped.
func (d *Dynamic) Insert(pixel int, s Sample) {
	if d.offsets == nil {
		d.dropped.Add(1)
		return
	}
	r := &d.remaining[pixel]
	for {
		left := r.Load()
		if left == 0 {
			d.dropped.Add(1)
			return
		}
		if r.CompareAndSwap(left, left-1) {
			d.buf[d.offsets[pixel]+left-1] = s
			return
		}
	}
}

// Slice returns the stored samples of pixel, aliasing the store. Sorting it
// in place during resolve is permitted.
func (d *Dynamic) Slice(pixel int) []Sample {
	if d.offsets == nil {
		return nil
	}
	off := d.offsets[pixel]
	return d.buf[off+d.remaining[pixel].Load() : off+d.counts[pixel].Load()]
}

// Samples implements Store.
func (d *Dynamic) Samples(pixel int, dst []Sample) []Sample {
	return append(dst, d.Slice(pixel)...)
}

// Counted returns the fragment count recorded for pixel.
func (d *Dynamic) Counted(pixel int) uint32 {
	return d.counts[pixel].Load()
}

// Offset returns the start of pixel's slice after Prepare.
func (d *Dynamic) Offset(pixel int) uint32 {
	return d.offsets[pixel]
}

// Total returns the fragment total of the last Prepare.
func (d *Dynamic) Total() uint32 {
	return d.total
}

// Capacity returns the sample buffer length.
func (d *Dynamic) Capacity() int {
	return len(d.buf)
}

// Grows returns how many times the buffer was reallocated.
func (d *Dynamic) Grows() int {
	return d.grows
}

// Dropped implements Store.
func (d *Dynamic) Dropped() uint64 {
	return d.dropped.Load()
}

// Reset releases the sample buffer.
func (d *Dynamic) Reset() {
	d.buf = nil
	d.grows = 0
}
