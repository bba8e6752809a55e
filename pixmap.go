package lutra

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// Pixmap is a rectangular pixel buffer in interleaved RGBA order, 4 bytes
// per pixel, rows laid out top to bottom with no padding.
//
// RGBA byte order is the package-wide convention for image buffers. It is
// deliberately independent of the lattice sample addressing convention
// (R-fastest) documented in the cube package.
type Pixmap struct {
	width  int
	height int
	data   []uint8
}

// NewPixmap creates a zeroed pixmap with the given dimensions.
func NewPixmap(width, height int) *Pixmap {
	return &Pixmap{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
	}
}

// Width returns the pixmap width in pixels.
func (p *Pixmap) Width() int { return p.width }

// Height returns the pixmap height in pixels.
func (p *Pixmap) Height() int { return p.height }

// Data returns the raw RGBA pixel data.
func (p *Pixmap) Data() []uint8 { return p.data }

// Rows returns the pixel data for count rows starting at row start.
// The slice aliases the pixmap's storage.
func (p *Pixmap) Rows(start, count int) []uint8 {
	return p.data[start*p.width*4 : (start+count)*p.width*4]
}

// Clone returns a deep copy.
func (p *Pixmap) Clone() *Pixmap {
	out := NewPixmap(p.width, p.height)
	copy(out.data, p.data)
	return out
}

// SetPixel sets one pixel. Out-of-bounds coordinates are ignored.
func (p *Pixmap) SetPixel(x, y int, r, g, b, a uint8) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return
	}
	i := (y*p.width + x) * 4
	p.data[i+0] = r
	p.data[i+1] = g
	p.data[i+2] = b
	p.data[i+3] = a
}

// PixelAt returns one pixel's channels. Out-of-bounds reads return zeros.
func (p *Pixmap) PixelAt(x, y int) (r, g, b, a uint8) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return 0, 0, 0, 0
	}
	i := (y*p.width + x) * 4
	return p.data[i+0], p.data[i+1], p.data[i+2], p.data[i+3]
}

// Downscale returns a copy scaled so the longer edge is at most maxDim,
// preserving aspect ratio. Pixmaps already within the bound are deep-copied
// unchanged. Used for the instant preview pass.
func (p *Pixmap) Downscale(maxDim int) *Pixmap {
	if maxDim <= 0 || (p.width <= maxDim && p.height <= maxDim) {
		return p.Clone()
	}

	w, h := p.width, p.height
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	src := p.toRGBA()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// ApproxBiLinear is the right trade-off for a throwaway preview:
	// visually smooth and far cheaper than CatmullRom.
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := &Pixmap{width: w, height: h, data: dst.Pix}
	return out
}

// toRGBA wraps the pixmap storage in an image.RGBA without copying.
func (p *Pixmap) toRGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    p.data,
		Stride: p.width * 4,
		Rect:   image.Rect(0, 0, p.width, p.height),
	}
}

// ToImage converts the pixmap to a standalone image.RGBA.
func (p *Pixmap) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	copy(img.Pix, p.data)
	return img
}

// FromImage creates a pixmap from any image.Image. image.RGBA sources with
// a zero-origin, unpadded layout are copied wholesale.
func FromImage(img image.Image) *Pixmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pm := NewPixmap(w, h)

	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == w*4 {
		copy(pm.data, rgba.Pix)
		return pm
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*w + x) * 4
			pm.data[i+0] = uint8(r >> 8)
			pm.data[i+1] = uint8(g >> 8)
			pm.data[i+2] = uint8(b >> 8)
			pm.data[i+3] = uint8(a >> 8)
		}
	}
	return pm
}

// SavePNG writes the pixmap to a PNG file.
func (p *Pixmap) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return png.Encode(f, p.toRGBA())
}

// At implements the image.Image interface.
func (p *Pixmap) At(x, y int) color.Color {
	r, g, b, a := p.PixelAt(x, y)
	return color.RGBA{R: r, G: g, B: b, A: a}
}

// Bounds implements the image.Image interface.
func (p *Pixmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// ColorModel implements the image.Image interface.
func (p *Pixmap) ColorModel() color.Model {
	return color.RGBAModel
}
