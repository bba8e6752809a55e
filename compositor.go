package lutra

// Compositor applies post-transform orientation and annotation overlays to
// a finished buffer before it is cached and displayed. It is deliberately
// thin: the color work is done, only geometry and overlay drawing remain.
type Compositor struct{}

// Compose orients the pixmap per the request geometry (flips first,
// horizontal then vertical, then rotation) and invokes the request's
// overlay callback on the result. The input pixmap is not modified unless
// the geometry is the identity and no overlay is present, in which case it
// is returned as-is.
func (Compositor) Compose(pm *Pixmap, req *TransformRequest) *Pixmap {
	out := pm
	if req.Geometry.FlipH {
		out = flipH(out)
	}
	if req.Geometry.FlipV {
		out = flipV(out)
	}
	switch req.Geometry.Rotation {
	case Rotate90:
		out = rotate90(out)
	case Rotate180:
		out = rotate180(out)
	case Rotate270:
		out = rotate270(out)
	}

	if req.Overlay != nil {
		if out == pm {
			out = pm.Clone()
		}
		req.Overlay(out)
	}
	return out
}

func flipH(src *Pixmap) *Pixmap {
	w, h := src.Width(), src.Height()
	dst := NewPixmap(w, h)
	s, d := src.Data(), dst.Data()
	for y := 0; y < h; y++ {
		row := y * w * 4
		for x := 0; x < w; x++ {
			copy(d[row+x*4:row+x*4+4], s[row+(w-1-x)*4:row+(w-1-x)*4+4])
		}
	}
	return dst
}

func flipV(src *Pixmap) *Pixmap {
	w, h := src.Width(), src.Height()
	dst := NewPixmap(w, h)
	s, d := src.Data(), dst.Data()
	rowBytes := w * 4
	for y := 0; y < h; y++ {
		copy(d[y*rowBytes:(y+1)*rowBytes], s[(h-1-y)*rowBytes:(h-y)*rowBytes])
	}
	return dst
}

// rotate90 rotates a quarter turn clockwise: (x, y) -> (h-1-y, x).
func rotate90(src *Pixmap) *Pixmap {
	w, h := src.Width(), src.Height()
	dst := NewPixmap(h, w)
	s, d := src.Data(), dst.Data()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := (y*w + x) * 4
			di := (x*h + (h - 1 - y)) * 4
			copy(d[di:di+4], s[si:si+4])
		}
	}
	return dst
}

func rotate180(src *Pixmap) *Pixmap {
	w, h := src.Width(), src.Height()
	dst := NewPixmap(w, h)
	s, d := src.Data(), dst.Data()
	n := w * h
	for i := 0; i < n; i++ {
		copy(d[(n-1-i)*4:(n-1-i)*4+4], s[i*4:i*4+4])
	}
	return dst
}

// rotate270 rotates a quarter turn counter-clockwise: (x, y) -> (y, w-1-x).
func rotate270(src *Pixmap) *Pixmap {
	w, h := src.Width(), src.Height()
	dst := NewPixmap(h, w)
	s, d := src.Data(), dst.Data()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := (y*w + x) * 4
			di := ((w-1-x)*h + y) * 4
			copy(d[di:di+4], s[si:si+4])
		}
	}
	return dst
}
