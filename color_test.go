package oit

import (
	"errors"
	"math"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"#fff", White},
		{"000", Black},
		{"ff0000", Red},
		{"#00ff0080", RGBA{0, 1, 0, 128.0 / 255}},
		{"f00f", Red},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if err != nil {
			t.Errorf("ParseHex(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHex(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "#", "bogus", "12345", "#ggg"} {
		if _, err := ParseHex(bad); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("ParseHex(%q) error = %v, want ErrInvalidColor", bad, err)
		}
	}
}

func TestRGBA_Hex(t *testing.T) {
	tests := []struct {
		c    RGBA
		want string
	}{
		{Black, "#000000"},
		{RGB(0.2, 0.4, 0.6), "#336699"},
		{RGBAf(1, 0, 0, 0.5), "#ff000080"},
	}
	for _, tt := range tests {
		if got := tt.c.Hex(); got != tt.want {
			t.Errorf("%+v.Hex() = %q, want %q", tt.c, got, tt.want)
		}
		back, err := ParseHex(tt.want)
		if err != nil || back.Hex() != tt.want {
			t.Errorf("ParseHex(%q).Hex() = %q, %v", tt.want, back.Hex(), err)
		}
	}
}

func TestRGBA_Packed(t *testing.T) {
	tests := []struct {
		name string
		c    RGBA
		want uint32
	}{
		{"opaque red", Red, 0xff0000ff},
		{"opaque blue", Blue, 0xffff0000},
		{"transparent", Transparent, 0},
		{"half white", RGBAf(1, 1, 1, 0.5), 0x80808080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Packed(); got != tt.want {
				t.Errorf("Packed() = %#08x, want %#08x", got, tt.want)
			}
		})
	}
}

func TestUnpack(t *testing.T) {
	c := Unpack(RGBAf(0.2, 0.4, 0.6, 0.5).Packed())
	want := RGBAf(0.2, 0.4, 0.6, 0.5)
	for _, d := range []float64{c.R - want.R, c.G - want.G, c.B - want.B, c.A - want.A} {
		if math.Abs(d) > 0.02 {
			t.Fatalf("Unpack(Packed()) = %+v, want %+v", c, want)
		}
	}
	if got := Unpack(0); got != (RGBA{}) {
		t.Errorf("Unpack(0) = %+v, want zero", got)
	}
}

func TestHSL(t *testing.T) {
	if got := HSL(0, 1, 0.5); got != Red {
		t.Errorf("HSL(0, 1, 0.5) = %+v, want red", got)
	}
	if got := HSL(90, 0, 1); got != White {
		t.Errorf("HSL(90, 0, 1) = %+v, want white", got)
	}
}
