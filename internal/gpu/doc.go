// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu runs the order-independent transparency kernels on a WebGPU
// HAL device through the Pure Go gogpu/wgpu implementation (zero CGO).
//
// # Architecture
//
// Triangles are rasterized on the host into a fragment stream of
// (pixel, depth, key, color) records. The stream is uploaded per phase and
// consumed one thread per fragment, the way fragment shader invocations
// would consume it:
//
//	clear -> opaque_depth -> opaque_color
//	      -> [count -> scan_load -> scan_reduce* -> scan_top -> scan_push*]
//	      -> bounded_build | list_build | dynamic_store
//	      -> resolve -> composite
//
// Every phase is one submission of consecutive compute passes followed by a
// fence wait. Pass boundaries order storage writes inside a phase.
//
// # Kernels
//
// The WGSL sources live in shaders/ and are embedded with go:embed. Init
// validates each kernel with naga before creating its pipeline, so a broken
// kernel fails with its name instead of a driver error.
//
// # Device
//
// OpenDevice creates a standalone Vulkan device. DeviceFromProvider reuses
// a device owned by the host application, which is then never destroyed by
// this package.
package gpu
