// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fragment

import "math"

// TileSize is the edge of the swizzle tile used by texture backing.
const TileSize = 8

// Layout maps (pixel, layer) to a slot index.
//
// Buffer backing is pixel-major: all layers of one pixel are adjacent.
// Texture backing is layer-major like a 2D array texture, with each layer
// stored in 8x8 tiles so neighboring pixels share cache lines.
type Layout struct {
	Width, Height int
	Layers        int
	Texture       bool

	tilesX int
	stride int
}

// NewLayout creates a layout and validates that it fits in int32 indices.
func NewLayout(width, height, layers int, texture bool) (Layout, error) {
	l := Layout{Width: width, Height: height, Layers: layers, Texture: texture}
	if texture {
		l.tilesX = (width + TileSize - 1) / TileSize
		tilesY := (height + TileSize - 1) / TileSize
		l.stride = l.tilesX * tilesY * TileSize * TileSize
	} else {
		l.stride = width * height
	}
	if uint64(l.stride)*uint64(max(layers, 1)) > math.MaxInt32 {
		return Layout{}, ErrCapacity
	}
	return l, nil
}

// Pixels returns width*height.
func (l Layout) Pixels() int {
	return l.Width * l.Height
}

// Size returns the number of slots the layout addresses.
func (l Layout) Size() int {
	return l.stride * l.Layers
}

// Index returns the slot of layer for pixel.
func (l Layout) Index(pixel, layer int) int {
	if !l.Texture {
		return pixel*l.Layers + layer
	}
	x, y := pixel%l.Width, pixel/l.Width
	tile := (y/TileSize)*l.tilesX + x/TileSize
	within := (y%TileSize)*TileSize + x%TileSize
	return layer*l.stride + tile*TileSize*TileSize + within
}
