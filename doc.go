// Package oit renders overlapping transparent geometry with
// order-independent transparency.
//
// # Overview
//
// Transparent surfaces must be blended in depth order, which the host does
// not know in advance. oit builds, per pixel, a collection of transparent
// fragments concurrently from many device threads, using only atomics and
// barriers, and then resolves each collection into a color.
//
// # Quick Start
//
//	p, err := oit.NewPipeline(oit.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	target := oit.NewPixmap(800, 600)
//	cam := oit.NewPerspectiveCamera(oit.V3(0, 0, 5), oit.V3(0, 0, 0), 800.0/600)
//	stats, err := p.Render(scene, cam, target)
//
// # Strategies
//
//   - StrategyBounded: k-buffer of the K nearest fragments, serialized per
//     pixel by a mutex texel. Approximate beyond K fragments; the overflow
//     policy decides how.
//   - StrategyList: per-pixel linked lists in a shared node pool built with
//     an atomic counter and an atomic head swap. Exact until the pool runs
//     out, which spoils that frame only.
//   - StrategyDynamic: count pass, hierarchical prefix sum, grow-only
//     resize, store pass into exact per-pixel slices. Always exact.
//
// # Frame
//
//	Clear -> Opaque -> [Count -> Scan -> Resize] -> Build -> Resolve -> Composite
//
// Resolve darkens the opaque background by the product of every fragment's
// transmittance; Composite adds the front-to-back accumulation of the
// fragments on top.
//
// # Backends
//
// The software backend emulates the device with a goroutine pool and is
// always available. The wgpu backend runs the store, scan and resolve
// kernels as WGSL compute shaders:
//
//	import _ "github.com/gogpu/oit/gpu" // enables the wgpu backend
package oit

// Version is the current version of the library.
const Version = "0.1.0"
