package oit

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestPixmap_SetPackedRoundTrip(t *testing.T) {
	pm := NewPixmap(3, 2)
	pm.SetPacked(4, 0xff204080)

	data := pm.Data()
	if got := data[16:20]; got[0] != 0x80 || got[1] != 0x40 || got[2] != 0x20 || got[3] != 0xff {
		t.Errorf("bytes = %v, want [128 64 32 255]", got)
	}
	if got := pm.Packed(4); got != 0xff204080 {
		t.Errorf("Packed(4) = %#x, want 0xff204080", got)
	}
	if got := pm.GetPixel(1, 1); got != (RGBA{R: 128.0 / 255, G: 64.0 / 255, B: 32.0 / 255, A: 1}) {
		t.Errorf("GetPixel(1, 1) = %+v", got)
	}
}

func TestPixmap_GetPixelOutOfBounds(t *testing.T) {
	pm := NewPixmap(4, 4)
	for i := range 16 {
		pm.SetPacked(i, 0xffffffff)
	}
	for _, c := range []struct{ x, y int }{{-1, 0}, {4, 0}, {0, -1}, {0, 4}} {
		if got := pm.GetPixel(c.x, c.y); got != Transparent {
			t.Errorf("GetPixel(%d, %d) = %+v, want Transparent", c.x, c.y, got)
		}
	}
}

func TestPixmap_SavePNG(t *testing.T) {
	pm := NewPixmap(6, 4)
	fill := RGB(0, 0.5, 1).Packed()
	for i := range 6 * 4 {
		pm.SetPacked(i, fill)
	}
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := pm.SavePNG(path); err != nil {
		t.Fatalf("SavePNG() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("decoded bounds = %v, want 6x4", b)
	}
	r, g, b, a := img.At(2, 2).RGBA()
	if r != 0 || g>>8 != 128 || b>>8 != 255 || a>>8 != 255 {
		t.Errorf("decoded pixel = %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestPixmap_ImageInterface(t *testing.T) {
	pm := NewPixmap(2, 2)
	pm.SetPacked(1, Red.Packed())
	if pm.Bounds().Dx() != 2 {
		t.Errorf("Bounds() = %v", pm.Bounds())
	}
	if got := color.NRGBAModel.Convert(pm.At(1, 0)); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("At(1, 0) = %+v, want opaque red", got)
	}
}

func TestPixmap_SavePNGReportsCreateError(t *testing.T) {
	pm := NewPixmap(1, 1)
	if err := pm.SavePNG(filepath.Join(t.TempDir(), "missing", "frame.png")); err == nil {
		t.Error("SavePNG() into a missing directory should fail")
	}
}
