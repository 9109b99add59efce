// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/oit/internal/parallel"
)

// OverflowPolicy decides what a full bounded pixel does with one more sample.
// Every policy other than an unbounded store is an approximation whose error
// grows with the scene's transparent depth complexity.
type OverflowPolicy uint8

const (
	// KeepNearest keeps the K nearest samples and drops the farthest.
	KeepNearest OverflowPolicy = iota

	// KeepFirst keeps the first K samples to arrive and drops the rest.
	KeepFirst

	// MergeFarthest composites the two farthest samples into the last slot.
	MergeFarthest
)

// String returns the policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case KeepNearest:
		return "keep_nearest"
	case KeepFirst:
		return "keep_first"
	case MergeFarthest:
		return "merge_farthest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", p)
	}
}

// Bounded is a k-buffer: up to K samples per pixel kept sorted by depth.
type Bounded struct {
	k       int
	policy  OverflowPolicy
	texture bool

	layout Layout
	locks  *TexelLocks
	counts []uint32 // live samples per pixel, guarded by the pixel's texel
	slots  []Sample

	dropped atomic.Uint64
	merged  atomic.Uint64
}

// NewBounded creates a k-buffer with k slots per pixel. Call Resize before use.
func NewBounded(k int, policy OverflowPolicy, texture bool) *Bounded {
	return &Bounded{k: k, policy: policy, texture: texture}
}

// K returns the slot count per pixel.
func (b *Bounded) K() int {
	return b.k
}

// Resize implements Store.
func (b *Bounded) Resize(width, height int) error {
	l, err := NewLayout(width, height, b.k, b.texture)
	if err != nil {
		return fmt.Errorf("bounded %dx%dx%d: %w", width, height, b.k, err)
	}
	b.layout = l
	b.locks = NewTexelLocks(l.Pixels())
	b.counts = make([]uint32, l.Pixels())
	b.slots = make([]Sample, l.Size())
	return nil
}

// Clear implements Store.
func (b *Bounded) Clear(pool *parallel.WorkerPool) {
	pool.Dispatch(len(b.counts), 64, func(p int) {
		b.counts[p] = 0
		b.locks.Reset(p)
	})
	b.locks.ResetContended()
	b.dropped.Store(0)
	b.merged.Store(0)
}

// Insert implements Store. The pixel's texel is held for the whole
// read-modify-write of its slot array.
func (b *Bounded) Insert(pixel int, s Sample) {
	b.locks.Acquire(pixel)
	b.insertLocked(pixel, s)
	b.locks.Release(pixel)
}

func (b *Bounded) at(pixel, i int) *Sample {
	return &b.slots[b.layout.Index(pixel, i)]
}

func (b *Bounded) insertLocked(pixel int, s Sample) {
	n := int(b.counts[pixel])

	// Equal depths go after existing samples so arrival order breaks ties.
	pos := n
	for i := range n {
		if b.at(pixel, i).Depth > s.Depth {
			pos = i
			break
		}
	}

	if n < b.k {
		b.shiftInsert(pixel, pos, n, s)
		b.counts[pixel]++
		return
	}

	switch b.policy {
	case KeepFirst:
		b.dropped.Add(1)
	case MergeFarthest:
		last := b.k - 1
		if pos == b.k {
			tail := b.at(pixel, last)
			tail.Color = Blend(tail.Color, s.Color)
		} else {
			evicted := *b.at(pixel, last)
			b.shiftInsert(pixel, pos, last, s)
			tail := b.at(pixel, last)
			tail.Color = Blend(tail.Color, evicted.Color)
		}
		b.merged.Add(1)
	default: // KeepNearest
		b.dropped.Add(1)
		if pos == b.k {
			return
		}
		b.shiftInsert(pixel, pos, b.k-1, s)
	}
}

// shiftInsert moves slots [pos, end) one to the right and writes s at pos.
func (b *Bounded) shiftInsert(pixel, pos, end int, s Sample) {
	for i := end; i > pos; i-- {
		*b.at(pixel, i) = *b.at(pixel, i-1)
	}
	*b.at(pixel, pos) = s
}

// Samples implements Store. The result is in non-decreasing depth order.
func (b *Bounded) Samples(pixel int, dst []Sample) []Sample {
	for i := range int(b.counts[pixel]) {
		dst = append(dst, *b.at(pixel, i))
	}
	return dst
}

// Count returns the number of live samples for pixel.
func (b *Bounded) Count(pixel int) int {
	return int(b.counts[pixel])
}

// Dropped implements Store.
func (b *Bounded) Dropped() uint64 {
	return b.dropped.Load()
}

// Merged returns the number of overflowing samples folded into the last slot.
func (b *Bounded) Merged() uint64 {
	return b.merged.Load()
}

// Contended returns how many texel acquisitions had to spin this frame.
func (b *Bounded) Contended() uint64 {
	if b.locks == nil {
		return 0
	}
	return b.locks.Contended()
}
