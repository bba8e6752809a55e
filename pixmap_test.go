package lutra

import (
	"image"
	"image/color"
	"testing"
)

func TestPixmapRoundTrip(t *testing.T) {
	pm := NewPixmap(3, 2)
	pm.SetPixel(1, 1, 10, 20, 30, 40)

	r, g, b, a := pm.PixelAt(1, 1)
	if r != 10 || g != 20 || b != 30 || a != 40 {
		t.Errorf("got (%d %d %d %d), want (10 20 30 40)", r, g, b, a)
	}

	// Out of bounds is a no-op / zero read.
	pm.SetPixel(-1, 0, 1, 1, 1, 1)
	pm.SetPixel(3, 0, 1, 1, 1, 1)
	if r, g, b, a := pm.PixelAt(5, 5); r|g|b|a != 0 {
		t.Error("out-of-bounds read must return zeros")
	}
}

func TestPixmapRows(t *testing.T) {
	pm := NewPixmap(2, 4)
	rows := pm.Rows(1, 2)
	if len(rows) != 2*2*4 {
		t.Fatalf("expected 16 bytes, got %d", len(rows))
	}
	rows[0] = 77
	if pm.Data()[2*4] != 77 {
		t.Error("Rows must alias pixmap storage")
	}
}

func TestPixmapClone(t *testing.T) {
	pm := NewPixmap(2, 2)
	pm.SetPixel(0, 0, 5, 6, 7, 8)
	cl := pm.Clone()
	cl.SetPixel(0, 0, 1, 1, 1, 1)

	if r, _, _, _ := pm.PixelAt(0, 0); r != 5 {
		t.Error("clone shares storage with original")
	}
}

func TestDownscaleBounds(t *testing.T) {
	tests := []struct {
		w, h, maxDim, wantW, wantH int
	}{
		{100, 50, 10, 10, 5},
		{50, 100, 10, 5, 10},
		{8, 8, 16, 8, 8}, // already small: unchanged
		{3000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		pm := NewPixmap(tt.w, tt.h)
		out := pm.Downscale(tt.maxDim)
		if out.Width() != tt.wantW || out.Height() != tt.wantH {
			t.Errorf("%dx%d @ %d: got %dx%d, want %dx%d",
				tt.w, tt.h, tt.maxDim, out.Width(), out.Height(), tt.wantW, tt.wantH)
		}
	}
}

func TestDownscaleCopiesWhenSmall(t *testing.T) {
	pm := NewPixmap(4, 4)
	out := pm.Downscale(16)
	if out == pm {
		t.Error("Downscale must not return the original pixmap")
	}
	out.SetPixel(0, 0, 9, 9, 9, 9)
	if r, _, _, _ := pm.PixelAt(0, 0); r != 0 {
		t.Error("Downscale result shares storage with original")
	}
}

func TestDownscalePreservesSolidColor(t *testing.T) {
	pm := NewPixmap(64, 64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			pm.SetPixel(x, y, 120, 60, 200, 255)
		}
	}
	out := pm.Downscale(8)
	for y := 0; y < out.Height(); y++ {
		for x := 0; x < out.Width(); x++ {
			r, g, b, a := out.PixelAt(x, y)
			if r != 120 || g != 60 || b != 200 || a != 255 {
				t.Fatalf("(%d,%d): got (%d %d %d %d)", x, y, r, g, b, a)
			}
		}
	}
}

func TestFromImageFastPath(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(1, 0, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	pm := FromImage(img)
	if r, g, b, _ := pm.PixelAt(1, 0); r != 9 || g != 8 || b != 7 {
		t.Errorf("got (%d %d %d)", r, g, b)
	}
}

func TestFromImageOffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 12, 12))
	img.SetRGBA(10, 10, color.RGBA{R: 42, A: 255})

	pm := FromImage(img)
	if pm.Width() != 2 || pm.Height() != 2 {
		t.Fatalf("got %dx%d, want 2x2", pm.Width(), pm.Height())
	}
	if r, _, _, _ := pm.PixelAt(0, 0); r != 42 {
		t.Errorf("offset image origin not remapped: r=%d", r)
	}
}

func TestToImage(t *testing.T) {
	pm := NewPixmap(2, 1)
	pm.SetPixel(0, 0, 1, 2, 3, 4)
	img := pm.ToImage()
	if got := img.RGBAAt(0, 0); got.R != 1 || got.G != 2 || got.B != 3 || got.A != 4 {
		t.Errorf("got %v", got)
	}
}
