// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fragment implements the concurrent per-pixel fragment stores.
//
// Three strategies share the Store contract:
//
//   - Bounded keeps the K nearest samples per pixel in depth order. Writers
//     serialize per pixel through a mutex texel (a CAS spinlock on one uint32).
//   - List appends every sample to a shared node pool with an atomic counter
//     and links it into the pixel's singly linked list with an atomic head swap.
//   - Dynamic counts fragments first, turns the counts into disjoint slices
//     with a prefix sum and stores into them with a per-pixel atomic countdown.
//
// Insert and Count are kernels: they are called concurrently from many
// goroutines of one dispatch. Samples is only valid after the dispatch that
// wrote the store returned.
package fragment
