package oit

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// RGBA represents a straight-alpha color with components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Color converts RGBA to the standard color.Color interface.
func (c RGBA) Color() color.Color {
	return color.NRGBA{
		R: uint8(clamp255(c.R * 255)),
		G: uint8(clamp255(c.G * 255)),
		B: uint8(clamp255(c.B * 255)),
		A: uint8(clamp255(c.A * 255)),
	}
}

// RGB creates an opaque color from RGB components.
func RGB(r, g, b float64) RGBA {
	return RGBA{R: r, G: g, B: b, A: 1.0}
}

// RGBAf creates a color from RGBA components.
func RGBAf(r, g, b, a float64) RGBA {
	return RGBA{R: r, G: g, B: b, A: a}
}

// ParseHex parses "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa" (the leading
// '#' is optional) into a straight-alpha color.
func ParseHex(s string) (RGBA, error) {
	digits := strings.TrimPrefix(s, "#")
	width := 2
	switch len(digits) {
	case 3, 4:
		width = 1
	case 6, 8:
	default:
		return RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	ch := [4]float64{1, 1, 1, 1}
	for i := 0; i*width < len(digits); i++ {
		v, err := strconv.ParseUint(digits[i*width:(i+1)*width], 16, 8)
		if err != nil {
			return RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		if width == 1 {
			v *= 17
		}
		ch[i] = float64(v) / 255
	}
	return RGBA{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

// Hex formats c as "#rrggbb", or "#rrggbbaa" when not opaque.
func (c RGBA) Hex() string {
	if to8(c.A) == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B))
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B), to8(c.A))
}

// Premultiply returns a premultiplied color.
func (c RGBA) Premultiply() RGBA {
	return RGBA{
		R: c.R * c.A,
		G: c.G * c.A,
		B: c.B * c.A,
		A: c.A,
	}
}

// Packed returns the color premultiplied and packed as RGBA8 with R in the
// low byte, the layout stored per fragment.
func (c RGBA) Packed() uint32 {
	p := c.Premultiply()
	return uint32(to8(p.R)) | uint32(to8(p.G))<<8 | uint32(to8(p.B))<<16 | uint32(to8(p.A))<<24
}

// Unpack converts a packed premultiplied RGBA8 value back to straight alpha.
func Unpack(v uint32) RGBA {
	c := RGBA{
		R: float64(v&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v>>16&0xff) / 255,
		A: float64(v>>24) / 255,
	}
	if c.A == 0 {
		return RGBA{}
	}
	return RGBA{R: c.R / c.A, G: c.G / c.A, B: c.B / c.A, A: c.A}
}

func to8(x float64) uint8 {
	return uint8(math.Round(clamp255(x * 255)))
}

func clamp255(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return x
}

// Common colors
var (
	Black       = RGB(0, 0, 0)
	White       = RGB(1, 1, 1)
	Red         = RGB(1, 0, 0)
	Green       = RGB(0, 1, 0)
	Blue        = RGB(0, 0, 1)
	Transparent = RGBAf(0, 0, 0, 0)
)

// HSL creates a color from HSL values.
// h is hue [0, 360), s is saturation [0, 1], l is lightness [0, 1].
func HSL(h, s, l float64) RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 360

	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RGB(r+m, g+m, b+m)
}
