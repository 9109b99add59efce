// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// TexelLocks is one mutex texel per pixel: 0 is free, 1 is held.
//
// Acquire spins on compare-and-swap, yielding between attempts. There is no
// retry limit; progress relies on the scheduler running the holder.
type TexelLocks struct {
	texels    []atomic.Uint32
	contended atomic.Uint64
}

// NewTexelLocks creates n free texels.
func NewTexelLocks(n int) *TexelLocks {
	return &TexelLocks{texels: make([]atomic.Uint32, n)}
}

// Len returns the number of texels.
func (l *TexelLocks) Len() int {
	return len(l.texels)
}

// Acquire blocks until the texel for pixel is held by the caller.
func (l *TexelLocks) Acquire(pixel int) {
	t := &l.texels[pixel]
	if t.CompareAndSwap(0, 1) {
		return
	}
	l.contended.Add(1)
	for !t.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryAcquire takes the texel if it is free.
func (l *TexelLocks) TryAcquire(pixel int) bool {
	return l.texels[pixel].CompareAndSwap(0, 1)
}

// Release frees the texel. Releasing a free texel panics.
func (l *TexelLocks) Release(pixel int) {
	if !l.texels[pixel].CompareAndSwap(1, 0) {
		panic(fmt.Sprintf("fragment: release of free texel %d", pixel))
	}
}

// Held reports whether the texel is held.
func (l *TexelLocks) Held(pixel int) bool {
	return l.texels[pixel].Load() != 0
}

// Contended returns the number of acquisitions that had to spin.
func (l *TexelLocks) Contended() uint64 {
	return l.contended.Load()
}

// Reset frees the texel for pixel. Used by the clear kernel.
func (l *TexelLocks) Reset(pixel int) {
	l.texels[pixel].Store(0)
}

// ResetContended zeroes the contention counter.
func (l *TexelLocks) ResetContended() {
	l.contended.Store(0)
}
