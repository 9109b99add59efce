// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resolve turns a pixel's transparent samples into a color.
//
// Resolution is split in two steps so a sorted store needs a single walk:
// Darken multiplies the opaque background by the product of every sample's
// transmittance, and Composite accumulates each sample's premultiplied color
// attenuated by the samples in front of it. The final color is the darkened
// background plus the accumulation.
package resolve

import (
	"cmp"
	"slices"

	"github.com/gogpu/oit/internal/fragment"
)

// insertionSortLimit is the length above which SortByDepth switches from an
// insertion sort, the one resolve.wgsl runs per thread, to the library sort.
const insertionSortLimit = 32

// Color is a premultiplied RGB accumulation.
type Color struct {
	R, G, B float32
}

// Add returns c + o.
func (c Color) Add(o Color) Color {
	return Color{c.R + o.R, c.G + o.G, c.B + o.B}
}

// Scale returns c * k.
func (c Color) Scale(k float32) Color {
	return Color{c.R * k, c.G * k, c.B * k}
}

// Unpack returns the RGB part of a packed RGBA8 color.
func Unpack(c uint32) Color {
	r, g, b, _ := fragment.UnpackRGBA(c)
	return Color{r, g, b}
}

// Pack returns c as an opaque RGBA8 color.
func (c Color) Pack() uint32 {
	return fragment.PackRGBA(c.R, c.G, c.B, 1)
}

// SortByDepth sorts samples front to back in place. The sort is stable.
func SortByDepth(s []fragment.Sample) {
	if len(s) > insertionSortLimit {
		slices.SortStableFunc(s, func(a, b fragment.Sample) int {
			return cmp.Compare(a.Depth, b.Depth)
		})
		return
	}
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i
		for j > 0 && s[j-1].Depth > v.Depth {
			s[j] = s[j-1]
			j--
		}
		s[j] = v
	}
}

// Darken returns the transmittance left after every sample: the product of
// (1 - alpha). Order does not matter.
func Darken(samples []fragment.Sample) float32 {
	t := float32(1)
	for _, s := range samples {
		t *= 1 - fragment.Alpha(s.Color)
	}
	return t
}

// Composite accumulates the samples front to back: every sample contributes
// its premultiplied color times the transmittance of the samples before it.
// Unsorted input gives an order-dependent approximation.
func Composite(samples []fragment.Sample) Color {
	var acc Color
	t := float32(1)
	for _, s := range samples {
		r, g, b, a := fragment.UnpackRGBA(s.Color)
		acc = acc.Add(Color{r, g, b}.Scale(t))
		t *= 1 - a
	}
	return acc
}

// Pixel resolves samples over the opaque background color. When sort is set
// the samples are sorted in place first.
func Pixel(samples []fragment.Sample, background uint32, sort bool) uint32 {
	if len(samples) == 0 {
		return background | 0xff000000
	}
	if sort {
		SortByDepth(samples)
	}
	bg := Unpack(background).Scale(Darken(samples))
	return bg.Add(Composite(samples)).Pack()
}

// Over composites samples back to front with the over operator, one at a
// time. It is the order-dependent reference that Pixel must agree with when
// the samples are sorted.
func Over(samples []fragment.Sample, background uint32) uint32 {
	dst := Unpack(background)
	for i := len(samples) - 1; i >= 0; i-- {
		r, g, b, a := fragment.UnpackRGBA(samples[i].Color)
		dst = Color{r, g, b}.Add(dst.Scale(1 - a))
	}
	return dst.Pack()
}
