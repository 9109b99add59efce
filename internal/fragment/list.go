// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/oit/internal/parallel"
)

// List stores every sample in a shared node pool linked per pixel.
// Samples come back in reverse insertion order.
type List struct {
	nodesPerPixel int
	texture       bool

	layout  Layout
	heads   []atomic.Int32
	nodes   []Sample
	counter atomic.Uint32

	overflow atomic.Bool
	dropped  atomic.Uint64
}

// NewList creates a list store with nodesPerPixel*width*height nodes.
// Call Resize before use.
func NewList(nodesPerPixel int, texture bool) *List {
	return &List{nodesPerPixel: nodesPerPixel, texture: texture}
}

// Resize implements Store.
func (l *List) Resize(width, height int) error {
	layout, err := NewLayout(width, height, 1, l.texture)
	if err != nil {
		return fmt.Errorf("list heads %dx%d: %w", width, height, err)
	}
	capacity := uint64(width) * uint64(height) * uint64(l.nodesPerPixel)
	if capacity > math.MaxInt32 {
		return fmt.Errorf("list %dx%dx%d: %w", width, height, l.nodesPerPixel, ErrCapacity)
	}
	l.layout = layout
	l.heads = make([]atomic.Int32, layout.Size())
	for i := range l.heads {
		l.heads[i].Store(End)
	}
	l.nodes = make([]Sample, capacity)
	l.counter.Store(0)
	return nil
}

// Clear implements Store.
func (l *List) Clear(pool *parallel.WorkerPool) {
	pool.Dispatch(len(l.heads), 64, func(i int) {
		l.heads[i].Store(End)
	})
	l.counter.Store(0)
	l.overflow.Store(false)
	l.dropped.Store(0)
}

// Insert implements Store. A node index is reserved with an atomic
// increment and published as the pixel's new head with an atomic swap.
func (l *List) Insert(pixel int, s Sample) {
	slot := l.counter.Add(1) - 1
	if uint64(slot) >= uint64(len(l.nodes)) {
		l.overflow.Store(true)
		l.dropped.Add(1)
		return
	}
	n := &l.nodes[slot]
	n.Depth = s.Depth
	n.Color = s.Color
	n.Next = l.heads[l.layout.Index(pixel, 0)].Swap(int32(slot))
}

// Samples implements Store.
func (l *List) Samples(pixel int, dst []Sample) []Sample {
	i := l.heads[l.layout.Index(pixel, 0)].Load()
	for steps := 0; i != End && steps < len(l.nodes); steps++ {
		n := l.nodes[i]
		dst = append(dst, n)
		i = n.Next
	}
	return dst
}

// Capacity returns the number of nodes in the pool.
func (l *List) Capacity() int {
	return len(l.nodes)
}

// Used returns the number of nodes written this frame.
func (l *List) Used() int {
	return min(int(l.counter.Load()), len(l.nodes))
}

// Dropped implements Store.
func (l *List) Dropped() uint64 {
	return l.dropped.Load()
}

// Err returns ErrListOverflow if the node pool ran out this frame.
func (l *List) Err() error {
	if l.overflow.Load() {
		return fmt.Errorf("%w: %d nodes, %d dropped", ErrListOverflow, len(l.nodes), l.dropped.Load())
	}
	return nil
}
