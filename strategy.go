package oit

import (
	"fmt"

	"github.com/gogpu/oit/internal/fragment"
)

// Strategy selects how transparent fragments are stored per pixel.
type Strategy int

const (
	// StrategyBounded keeps the K nearest fragments per pixel in a k-buffer
	// guarded by a per-pixel mutex texel. Approximate when a pixel has more
	// than K fragments.
	StrategyBounded Strategy = iota

	// StrategyList appends every fragment to a per-pixel linked list in a
	// shared node pool. Exact until the pool is exhausted.
	StrategyList

	// StrategyDynamic counts fragments, sizes storage with a prefix sum and
	// stores into exact per-pixel slices. Exact, at the cost of rasterizing
	// the transparent geometry twice.
	StrategyDynamic
)

var strategyNames = []string{"bounded", "list", "dynamic"}

// String returns the strategy name.
func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Backing selects the memory layout of per-pixel storage.
type Backing int

const (
	// BackingBuffer stores all samples of a pixel contiguously.
	BackingBuffer Backing = iota

	// BackingTexture stores samples as layers of a 2D array texture with
	// 8x8 tiled texels. Only for the bounded and list strategies.
	BackingTexture
)

// String returns the backing name.
func (b Backing) String() string {
	switch b {
	case BackingBuffer:
		return "buffer"
	case BackingTexture:
		return "texture"
	default:
		return fmt.Sprintf("Backing(%d)", int(b))
	}
}

// ParseBacking returns the backing with the given name.
func ParseBacking(name string) (Backing, error) {
	switch name {
	case "buffer":
		return BackingBuffer, nil
	case "texture":
		return BackingTexture, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedBacking, name)
}

// OverflowPolicy decides what a full bounded pixel does with one more
// fragment.
type OverflowPolicy = fragment.OverflowPolicy

// Overflow policies for StrategyBounded.
const (
	KeepNearest   = fragment.KeepNearest
	KeepFirst     = fragment.KeepFirst
	MergeFarthest = fragment.MergeFarthest
)

// ParseOverflowPolicy returns the policy with the given name.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	for _, p := range []OverflowPolicy{KeepNearest, KeepFirst, MergeFarthest} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("oit: unknown overflow policy %q", name)
}

// ListSortMode decides whether StrategyList sorts a pixel's fragments
// before compositing.
type ListSortMode int

const (
	// SortOnResolve sorts by depth at resolve time. Exact.
	SortOnResolve ListSortMode = iota

	// Unsorted composites in list order. Faster, order-dependent.
	Unsorted
)

// String returns the mode name.
func (m ListSortMode) String() string {
	switch m {
	case SortOnResolve:
		return "sort"
	case Unsorted:
		return "unsorted"
	default:
		return fmt.Sprintf("ListSortMode(%d)", int(m))
	}
}

// ParseListSortMode returns the mode with the given name.
func ParseListSortMode(name string) (ListSortMode, error) {
	switch name {
	case "sort":
		return SortOnResolve, nil
	case "unsorted":
		return Unsorted, nil
	}
	return 0, fmt.Errorf("oit: unknown list sort mode %q", name)
}

// DepthKey selects the value fragments are sorted by.
type DepthKey int

const (
	// DepthNDC sorts by normalized device depth.
	DepthNDC DepthKey = iota

	// DepthEye sorts by distance to the camera eye.
	DepthEye
)

// String returns the key name.
func (k DepthKey) String() string {
	switch k {
	case DepthNDC:
		return "ndc"
	case DepthEye:
		return "eye"
	default:
		return fmt.Sprintf("DepthKey(%d)", int(k))
	}
}
