// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package raster converts clip-space triangles into pixel fragments.
//
// Conventions follow WebGPU: NDC x and y in [-1, 1] with y up, NDC z in
// [0, 1], framebuffer origin at the top-left corner and samples at pixel
// centers. Triangles are clipped against the near plane; the viewport bounds
// the rest. Both windings are rasterized.
package raster

// Vertex is a clip-space position plus a sort key.
type Vertex struct {
	X, Y, Z, W float32

	// Key is interpolated into Fragment.Key.
	Key float32
}

// Triangle is one primitive with a flat premultiplied RGBA8 color.
type Triangle struct {
	V     [3]Vertex
	Color uint32
}

// Fragment is one covered pixel of a triangle.
type Fragment struct {
	X, Y  int
	Pixel int

	// Depth is NDC z in [0, 1], interpolated linearly in screen space.
	Depth float32

	// Key is Vertex.Key interpolated with perspective correction.
	Key float32

	Color uint32
}

// Viewport is the framebuffer size in pixels.
type Viewport struct {
	Width, Height int
}

type screenVertex struct {
	x, y, z float32
	invW    float32
	keyW    float32 // Key / w
}

// Rasterize emits one fragment per pixel center covered by tri.
func Rasterize(tri Triangle, vp Viewport, emit func(Fragment)) {
	if vp.Width <= 0 || vp.Height <= 0 {
		return
	}
	poly := clipNear(tri.V[:])
	if len(poly) < 3 {
		return
	}
	sv := make([]screenVertex, len(poly))
	for i, v := range poly {
		inv := 1 / v.W
		sv[i] = screenVertex{
			x:    (v.X*inv*0.5 + 0.5) * float32(vp.Width),
			y:    (0.5 - v.Y*inv*0.5) * float32(vp.Height),
			z:    v.Z * inv,
			invW: inv,
			keyW: v.Key * inv,
		}
	}
	for i := 1; i+1 < len(sv); i++ {
		rasterizeScreen(sv[0], sv[i], sv[i+1], tri.Color, vp, emit)
	}
}

// clipNear clips a convex polygon against z >= 0.
func clipNear(in []Vertex) []Vertex {
	inside := func(v Vertex) bool { return v.Z >= 0 && v.W > 0 }
	allIn := true
	for _, v := range in {
		if !inside(v) {
			allIn = false
			break
		}
	}
	if allIn {
		return in
	}

	out := make([]Vertex, 0, len(in)+1)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		ina, inb := inside(a), inside(b)
		if ina {
			out = append(out, a)
		}
		if ina != inb {
			t := a.Z / (a.Z - b.Z)
			v := lerpVertex(a, b, t)
			if v.W > 0 {
				out = append(out, v)
			}
		}
	}
	return out
}

func lerpVertex(a, b Vertex, t float32) Vertex {
	l := func(x, y float32) float32 { return x + (y-x)*t }
	return Vertex{l(a.X, b.X), l(a.Y, b.Y), l(a.Z, b.Z), l(a.W, b.W), l(a.Key, b.Key)}
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// topLeft reports whether the edge a->b is a top or left edge for a
// triangle with positive area in y-down screen space.
func topLeft(ax, ay, bx, by float32) bool {
	dx, dy := bx-ax, by-ay
	return (dy == 0 && dx > 0) || dy < 0
}

func rasterizeScreen(a, b, c screenVertex, color uint32, vp Viewport, emit func(Fragment)) {
	area := edge(a.x, a.y, b.x, b.y, c.x, c.y)
	if area == 0 || area != area {
		return
	}
	if area < 0 {
		b, c = c, b
		area = -area
	}

	if max(a.x, b.x, c.x) < 0 || max(a.y, b.y, c.y) < 0 {
		return
	}
	minX := clampPixel(min(a.x, b.x, c.x), vp.Width)
	maxX := clampPixel(max(a.x, b.x, c.x), vp.Width)
	minY := clampPixel(min(a.y, b.y, c.y), vp.Height)
	maxY := clampPixel(max(a.y, b.y, c.y), vp.Height)

	tl0 := topLeft(b.x, b.y, c.x, c.y)
	tl1 := topLeft(c.x, c.y, a.x, a.y)
	tl2 := topLeft(a.x, a.y, b.x, b.y)
	inv := 1 / area

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := edge(b.x, b.y, c.x, c.y, px, py)
			w1 := edge(c.x, c.y, a.x, a.y, px, py)
			w2 := edge(a.x, a.y, b.x, b.y, px, py)
			if !covers(w0, tl0) || !covers(w1, tl1) || !covers(w2, tl2) {
				continue
			}
			l0, l1, l2 := w0*inv, w1*inv, w2*inv
			z := l0*a.z + l1*b.z + l2*c.z
			if z < 0 || z > 1 {
				continue
			}
			invW := l0*a.invW + l1*b.invW + l2*c.invW
			key := (l0*a.keyW + l1*b.keyW + l2*c.keyW) / invW
			emit(Fragment{
				X: x, Y: y,
				Pixel: y*vp.Width + x,
				Depth: z,
				Key:   key,
				Color: color,
			})
		}
	}
}

func covers(w float32, topLeft bool) bool {
	return w > 0 || (w == 0 && topLeft)
}

// clampPixel returns the pixel containing coordinate v, clamped to [0, n).
func clampPixel(v float32, n int) int {
	if v <= 0 {
		return 0
	}
	if v >= float32(n-1) {
		return n - 1
	}
	return int(v)
}
