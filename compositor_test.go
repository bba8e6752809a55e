package lutra

import "testing"

// mark builds a 2x3 pixmap with a unique red value per pixel so geometry
// remaps are easy to assert.
func mark() *Pixmap {
	pm := NewPixmap(2, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			pm.SetPixel(x, y, uint8(10*y+x), 0, 0, 255)
		}
	}
	return pm
}

func redAt(pm *Pixmap, x, y int) uint8 {
	r, _, _, _ := pm.PixelAt(x, y)
	return r
}

func TestComposeIdentityReturnsInput(t *testing.T) {
	var c Compositor
	pm := mark()
	out := c.Compose(pm, &TransformRequest{})
	if out != pm {
		t.Error("identity geometry without overlay must return the input pixmap")
	}
}

func TestComposeRotate90(t *testing.T) {
	var c Compositor
	out := c.Compose(mark(), &TransformRequest{Geometry: Geometry{Rotation: Rotate90}})

	if out.Width() != 3 || out.Height() != 2 {
		t.Fatalf("got %dx%d, want 3x2", out.Width(), out.Height())
	}
	// Clockwise quarter turn: source (x, y) lands at (h-1-y, x).
	tests := []struct {
		sx, sy, dx, dy int
	}{
		{0, 0, 2, 0},
		{1, 0, 2, 1},
		{0, 2, 0, 0},
		{1, 2, 0, 1},
	}
	src := mark()
	for _, tt := range tests {
		if got, want := redAt(out, tt.dx, tt.dy), redAt(src, tt.sx, tt.sy); got != want {
			t.Errorf("(%d,%d)->(%d,%d): got %d, want %d", tt.sx, tt.sy, tt.dx, tt.dy, got, want)
		}
	}
}

func TestComposeRotate180(t *testing.T) {
	var c Compositor
	src := mark()
	out := c.Compose(src, &TransformRequest{Geometry: Geometry{Rotation: Rotate180}})

	if out.Width() != 2 || out.Height() != 3 {
		t.Fatalf("got %dx%d, want 2x3", out.Width(), out.Height())
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got, want := redAt(out, 1-x, 2-y), redAt(src, x, y); got != want {
				t.Errorf("(%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestComposeRotate270(t *testing.T) {
	var c Compositor
	src := mark()
	out := c.Compose(src, &TransformRequest{Geometry: Geometry{Rotation: Rotate270}})

	if out.Width() != 3 || out.Height() != 2 {
		t.Fatalf("got %dx%d, want 3x2", out.Width(), out.Height())
	}
	// Counter-clockwise quarter turn: source (x, y) lands at (y, w-1-x).
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got, want := redAt(out, y, 1-x), redAt(src, x, y); got != want {
				t.Errorf("(%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestComposeFlips(t *testing.T) {
	var c Compositor
	src := mark()

	outH := c.Compose(src, &TransformRequest{Geometry: Geometry{FlipH: true}})
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got, want := redAt(outH, 1-x, y), redAt(src, x, y); got != want {
				t.Errorf("flipH (%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}

	outV := c.Compose(src, &TransformRequest{Geometry: Geometry{FlipV: true}})
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got, want := redAt(outV, x, 2-y), redAt(src, x, y); got != want {
				t.Errorf("flipV (%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestComposeFlipsBeforeRotation(t *testing.T) {
	var c Compositor
	src := mark()
	out := c.Compose(src, &TransformRequest{
		Geometry: Geometry{Rotation: Rotate90, FlipH: true},
	})

	// FlipH first: (x,y) -> (1-x, y); then rotate90: (x,y) -> (2-y, x).
	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			if got, want := redAt(out, 2-y, 1-x), redAt(src, x, y); got != want {
				t.Errorf("(%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestComposeOverlayDoesNotMutateInput(t *testing.T) {
	var c Compositor
	src := mark()
	before := redAt(src, 0, 0)

	out := c.Compose(src, &TransformRequest{
		Overlay: func(pm *Pixmap) { pm.SetPixel(0, 0, 99, 0, 0, 255) },
	})

	if redAt(src, 0, 0) != before {
		t.Error("overlay mutated the input pixmap")
	}
	if redAt(out, 0, 0) != 99 {
		t.Error("overlay not applied to output")
	}
}
