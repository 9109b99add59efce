// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raster

import (
	"math"
	"sync/atomic"

	"github.com/gogpu/oit/internal/parallel"
)

// DepthBuffer is the opaque pass target. Each pixel packs depth bits in the
// high word and color in the low word, so a single 64-bit atomic min keeps
// the nearest opaque fragment and its color together.
//
// Depths are non-negative, so their IEEE bits order like the values.
type DepthBuffer struct {
	width, height int
	texels        []atomic.Uint64
}

// NewDepthBuffer creates a depth buffer. Clear before use.
func NewDepthBuffer(width, height int) *DepthBuffer {
	return &DepthBuffer{width: width, height: height, texels: make([]atomic.Uint64, width*height)}
}

// Size returns the buffer dimensions.
func (d *DepthBuffer) Size() (width, height int) {
	return d.width, d.height
}

func packDepth(depth float32, color uint32) uint64 {
	return uint64(math.Float32bits(depth))<<32 | uint64(color)
}

// Clear sets every pixel to the far plane and the background color.
func (d *DepthBuffer) Clear(pool *parallel.WorkerPool, background uint32) {
	far := packDepth(1, background)
	pool.Dispatch(len(d.texels), 64, func(i int) {
		d.texels[i].Store(far)
	})
}

// Test keeps the fragment if it is nearer than the stored one. Ties keep the
// smaller color so the result does not depend on arrival order.
func (d *DepthBuffer) Test(pixel int, depth float32, color uint32) {
	if depth < 0 {
		depth = 0
	}
	v := packDepth(depth, color)
	t := &d.texels[pixel]
	for {
		old := t.Load()
		if v >= old {
			return
		}
		if t.CompareAndSwap(old, v) {
			return
		}
	}
}

// Depth returns the nearest opaque depth at pixel.
func (d *DepthBuffer) Depth(pixel int) float32 {
	return math.Float32frombits(uint32(d.texels[pixel].Load() >> 32))
}

// Color returns the nearest opaque color at pixel.
func (d *DepthBuffer) Color(pixel int) uint32 {
	return uint32(d.texels[pixel].Load())
}

// Occluded reports whether a fragment at depth is hidden by opaque geometry.
func (d *DepthBuffer) Occluded(pixel int, depth float32) bool {
	return depth >= d.Depth(pixel)
}
