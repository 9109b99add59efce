// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scan computes hierarchical block-wise exclusive prefix sums.
//
// The domain is aligned up to a multiple of the block size
// (workgroup size * elements per thread). The upward pass replaces every
// block with its in-block exclusive prefix and writes the block sum one level
// up, repeating until a level has a single element. The downward pass then
// pushes each block's prefix back into the finer level. Level 0 ends up
// holding the exclusive prefix of the input; the grand total is written once
// by the thread that owns the top level.
package scan

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/oit/internal/parallel"
)

// Default kernel geometry. Matches WG_SIZE and ELEMS_PER_THREAD in the
// scan_reduce/scan_push WGSL kernels.
const (
	DefaultWorkgroupSize  = 64
	DefaultElemsPerThread = 4
)

// ErrOverflow is returned when a prefix sum does not fit in 32 bits.
var ErrOverflow = errors.New("scan: prefix sum overflows uint32")

// Engine runs the scan over a fixed domain. It is re-entered every frame;
// intermediate levels are rewritten, never accumulated across runs.
//
// Engine is not safe for concurrent use.
type Engine struct {
	pool       *parallel.WorkerPool
	wgSize     int
	perThread  int
	blockElems int

	n      int
	levels [][]uint32
	total  uint32

	overflow atomic.Bool
}

// New creates an engine dispatching on pool. Non-positive geometry values
// select the defaults. A block holds at least two elements so the level
// hierarchy shrinks.
func New(pool *parallel.WorkerPool, workgroupSize, elemsPerThread int) *Engine {
	if workgroupSize <= 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	if elemsPerThread <= 0 {
		elemsPerThread = DefaultElemsPerThread
	}
	if workgroupSize*elemsPerThread < 2 {
		elemsPerThread = 2
	}
	return &Engine{
		pool:       pool,
		wgSize:     workgroupSize,
		perThread:  elemsPerThread,
		blockElems: workgroupSize * elemsPerThread,
	}
}

// BlockElems returns the number of elements reduced by one workgroup.
func (e *Engine) BlockElems() int {
	return e.blockElems
}

// LevelSizes returns the lengths of the level hierarchy for n elements:
// level 0 is n aligned up to blockElems, each next level is the ceiling of
// the previous divided by blockElems, and the last level has length 1.
func LevelSizes(n, blockElems int) []int {
	if blockElems <= 1 {
		blockElems = 2
	}
	size := max(parallel.WorkgroupCount(n, blockElems), 1) * blockElems
	sizes := []int{size}
	for size > 1 {
		size = parallel.WorkgroupCount(size, blockElems)
		sizes = append(sizes, size)
	}
	return sizes
}

// CheckCapacity reports ErrOverflow when n elements of up to maxPerElement
// each could produce a total beyond 32 bits.
func CheckCapacity(n int, maxPerElement uint32) error {
	if n < 0 {
		return fmt.Errorf("scan: negative length %d", n)
	}
	if uint64(n)*uint64(maxPerElement) > math.MaxUint32 {
		return fmt.Errorf("%w: %d elements x %d", ErrOverflow, n, maxPerElement)
	}
	return nil
}

// Resize rebuilds the level hierarchy for a logical length n.
func (e *Engine) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("scan: negative length %d", n)
	}
	if uint64(n) > math.MaxUint32 {
		return fmt.Errorf("%w: %d elements", ErrOverflow, n)
	}
	sizes := LevelSizes(n, e.blockElems)
	e.levels = make([][]uint32, len(sizes))
	for i, s := range sizes {
		e.levels[i] = make([]uint32, s)
	}
	e.n = n
	e.total = 0
	slogger().Debug("scan: hierarchy resized",
		"elements", n,
		"block_elems", e.blockElems,
		"levels", sizes)
	return nil
}

// Len returns the logical length set by Resize.
func (e *Engine) Len() int {
	return e.n
}

// Levels returns the length of every level.
func (e *Engine) Levels() []int {
	out := make([]int, len(e.levels))
	for i, l := range e.levels {
		out[i] = len(l)
	}
	return out
}

// Run computes the exclusive prefix sum of counts and returns the grand
// total. counts may be shorter than Len; missing elements count as zero.
// On ErrOverflow the offsets are undefined for this run.
func (e *Engine) Run(counts []uint32) (uint32, error) {
	if e.levels == nil {
		if err := e.Resize(len(counts)); err != nil {
			return 0, err
		}
	}
	if len(counts) > e.n {
		return 0, fmt.Errorf("scan: %d counts exceed domain of %d", len(counts), e.n)
	}
	e.overflow.Store(false)

	// Load: level 0 takes the counts, the alignment tail is zeroed.
	base := e.levels[0]
	e.pool.Dispatch(len(base), e.wgSize, func(i int) {
		if i < len(counts) {
			base[i] = counts[i]
		} else {
			base[i] = 0
		}
	})

	for lvl := 0; lvl+1 < len(e.levels); lvl++ {
		e.reduce(e.levels[lvl], e.levels[lvl+1])
	}
	top := e.levels[len(e.levels)-1]
	e.pool.DispatchGroups(1, func(int) {
		// Designated last thread: publish the total, turn the top level
		// into its own exclusive prefix.
		e.total = top[0]
		top[0] = 0
	})
	for lvl := len(e.levels) - 2; lvl >= 0; lvl-- {
		e.push(e.levels[lvl], e.levels[lvl+1])
	}

	if e.overflow.Load() {
		return 0, ErrOverflow
	}
	return e.total, nil
}

// reduce replaces every block of src with its in-block exclusive prefix and
// writes the block sums into dst.
func (e *Engine) reduce(src, dst []uint32) {
	blocks := len(dst)
	e.pool.DispatchGroups(blocks, func(b int) {
		start := b * e.blockElems
		end := min(start+e.blockElems, len(src))
		var sum uint64
		for i := start; i < end; i++ {
			v := src[i]
			src[i] = uint32(sum)
			sum += uint64(v)
		}
		if sum > math.MaxUint32 {
			e.overflow.Store(true)
		}
		dst[b] = uint32(sum)
	})
}

// push adds each block's exclusive prefix from coarse to every element of
// the matching block in fine.
func (e *Engine) push(fine, coarse []uint32) {
	e.pool.DispatchGroups(len(coarse), func(b int) {
		prefix := coarse[b]
		if prefix == 0 {
			return
		}
		start := b * e.blockElems
		end := min(start+e.blockElems, len(fine))
		for i := start; i < end; i++ {
			sum := uint64(fine[i]) + uint64(prefix)
			if sum > math.MaxUint32 {
				e.overflow.Store(true)
			}
			fine[i] = uint32(sum)
		}
	})
}

// Offsets returns the exclusive prefix of the last Run. The slice aliases
// engine memory and is valid until the next Run or Resize.
func (e *Engine) Offsets() []uint32 {
	if e.levels == nil {
		return nil
	}
	return e.levels[0][:e.n]
}

// Total returns the grand total of the last Run.
func (e *Engine) Total() uint32 {
	return e.total
}
