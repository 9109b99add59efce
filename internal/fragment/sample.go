// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import (
	"errors"
	"math"

	"github.com/gogpu/oit/internal/parallel"
)

// End terminates a pixel list.
const End int32 = -1

// ErrListOverflow reports that a list store ran out of nodes during a frame.
// The frame's transparency is incomplete; the store stays usable.
var ErrListOverflow = errors.New("fragment: list node pool exhausted")

// ErrCapacity is returned when a store cannot address the requested size.
var ErrCapacity = errors.New("fragment: storage exceeds addressable range")

// Sample is one transparent fragment.
type Sample struct {
	// Depth is the sort key. Smaller is nearer.
	Depth float32

	// Color is premultiplied RGBA8 with R in the low byte.
	Color uint32

	// Next links list nodes; End terminates. Unused by other stores.
	Next int32
}

// Store is the contract shared by every strategy.
type Store interface {
	// Resize reallocates per-pixel resources for a new resolution.
	Resize(width, height int) error

	// Clear resets per-pixel state for a new frame.
	Clear(pool *parallel.WorkerPool)

	// Insert records s for pixel. Safe for concurrent use.
	Insert(pixel int, s Sample)

	// Samples appends the samples stored for pixel to dst.
	Samples(pixel int, dst []Sample) []Sample

	// Dropped returns the number of samples discarded since the last Clear.
	Dropped() uint64
}

// PackRGBA packs premultiplied components in [0, 1] into RGBA8.
func PackRGBA(r, g, b, a float32) uint32 {
	return uint32(unorm8(r)) | uint32(unorm8(g))<<8 | uint32(unorm8(b))<<16 | uint32(unorm8(a))<<24
}

// UnpackRGBA splits RGBA8 into components in [0, 1].
func UnpackRGBA(c uint32) (r, g, b, a float32) {
	return float32(c&0xff) / 255, float32(c>>8&0xff) / 255, float32(c>>16&0xff) / 255, float32(c>>24) / 255
}

// Alpha returns the alpha component of c in [0, 1].
func Alpha(c uint32) float32 {
	return float32(c>>24) / 255
}

// Blend composites premultiplied front over back.
func Blend(front, back uint32) uint32 {
	fr, fg, fb, fa := UnpackRGBA(front)
	br, bg, bb, ba := UnpackRGBA(back)
	k := 1 - fa
	return PackRGBA(fr+br*k, fg+bg*k, fb+bb*k, fa+ba*k)
}

func unorm8(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}
