// Package transform implements the CPU reference backend for applying a
// 3D color lattice to RGBA pixel data with trilinear interpolation.
//
// The package operates on row windows of interleaved RGBA bytes so the
// scheduler can advance a full-resolution transform in bounded chunks and
// check cancellation between them.
package transform

import "github.com/lutra-img/lutra/cube"

// Apply transforms a window of interleaved RGBA pixels through the lattice.
//
// dst and src must have equal length, a multiple of 4. strength is the
// lattice mix factor in [0, 100]: 0 copies src bit-exactly, 100 yields the
// pure interpolated lattice result. The alpha byte is always preserved.
// dst and src may alias.
func Apply(dst, src []uint8, lut *cube.LutDefinition, strength int) {
	if strength <= 0 || lut == nil {
		copy(dst, src)
		return
	}

	var (
		size  = lut.Size
		data  = lut.Data
		scale = float32(size - 1)
		mix   = float32(strength) / 100
		// Strides in float units for the R-fastest lattice layout.
		gStride = 3 * size
		bStride = 3 * size * size
	)

	for i := 0; i+3 < len(src); i += 4 {
		r := float32(src[i+0]) / 255
		g := float32(src[i+1]) / 255
		b := float32(src[i+2]) / 255

		// Lattice coordinates. The low corner is clamped to size-2 so the
		// high corner stays in range; an input of exactly 1.0 lands on the
		// upper boundary with a fractional offset of 1.
		rIdx, gIdx, bIdx := r*scale, g*scale, b*scale
		r0 := clampIndex(int(rIdx), size-2)
		g0 := clampIndex(int(gIdx), size-2)
		b0 := clampIndex(int(bIdx), size-2)
		fr := rIdx - float32(r0)
		fg := gIdx - float32(g0)
		fb := bIdx - float32(b0)

		// Offsets of the 8 enclosing corners.
		base := 3*r0 + g0*gStride + b0*bStride
		c000 := base
		c100 := base + 3
		c010 := base + gStride
		c110 := base + gStride + 3
		c001 := base + bStride
		c101 := base + bStride + 3
		c011 := base + bStride + gStride
		c111 := base + bStride + gStride + 3

		var out [3]float32
		for ch := 0; ch < 3; ch++ {
			// Collapse the B axis (4 lerps), then G (2), then R (1).
			x00 := lerp(data[c000+ch], data[c001+ch], fb)
			x10 := lerp(data[c100+ch], data[c101+ch], fb)
			x01 := lerp(data[c010+ch], data[c011+ch], fb)
			x11 := lerp(data[c110+ch], data[c111+ch], fb)

			x0 := lerp(x00, x01, fg)
			x1 := lerp(x10, x11, fg)

			out[ch] = lerp(x0, x1, fr)
		}

		dst[i+0] = blendByte(r, out[0], mix)
		dst[i+1] = blendByte(g, out[1], mix)
		dst[i+2] = blendByte(b, out[2], mix)
		dst[i+3] = src[i+3]
	}
}

// clampIndex clamps v into [0, max].
func clampIndex(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

// blendByte mixes the lattice result into the original channel value and
// quantizes to 8 bits with clamping and round-to-nearest.
func blendByte(orig, lut, mix float32) uint8 {
	v := orig + mix*(lut-orig)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v*255 + 0.5)
}
