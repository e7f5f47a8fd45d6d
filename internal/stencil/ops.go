package stencil

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SquaredNorm returns the sum of |psi|^2 over the owned cells of f, without
// the cell area. Rows are accumulated in order; every backend reduces through
// this function so their norms agree exactly.
func SquaredNorm(g *Geometry, f Field) float64 {
	var sum float64

	for y := g.Owned.Y0; y < g.Owned.Y1; y++ {
		lo := y*g.Width + g.Owned.X0
		hi := y*g.Width + g.Owned.X1
		re, im := f.Real[lo:hi], f.Imag[lo:hi]
		sum += floats.Dot(re, re) + floats.Dot(im, im)
	}

	return sum
}

// Scale multiplies every cell of f, halo included, by factor.
func Scale(f Field, factor float64) {
	floats.Scale(factor, f.Real)
	floats.Scale(factor, f.Imag)
}

// Rabi mixes the two components inside r with the coupling
// H = [[0, conj(w)], [w, 0]], w = omegaR + i*omegaI, over time t.
func Rabi(g *Geometry, a, b Field, r Rect, omegaR, omegaI, t float64, imagTime bool) {
	w := math.Hypot(omegaR, omegaI)
	if w == 0 || t == 0 {
		return
	}

	var c, s, kaR, kaI, kbR, kbI float64

	if imagTime {
		c, s = math.Cosh(w*t), math.Sinh(w*t)/w
		kaR, kaI = -omegaR, omegaI
		kbR, kbI = -omegaR, -omegaI
	} else {
		sn, cs := math.Sincos(w * t)
		c, s = cs, sn/w
		kaR, kaI = -omegaI, -omegaR
		kbR, kbI = omegaI, -omegaR
	}

	kaR, kaI, kbR, kbI = s*kaR, s*kaI, s*kbR, s*kbI

	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			k := y*g.Width + x
			ar, ai := a.Real[k], a.Imag[k]
			br, bi := b.Real[k], b.Imag[k]

			a.Real[k] = c*ar + kaR*br - kaI*bi
			a.Imag[k] = c*ai + kaR*bi + kaI*br
			b.Real[k] = kbR*ar - kbI*ai + c*br
			b.Imag[k] = kbR*ai + kbI*ar + c*bi
		}
	}
}

// CopyRect copies the cells of r from src (row length srcWidth) into dst with
// row stride dstStride, starting at dst[0].
func CopyRect(dst []float64, dstStride int, src []float64, srcWidth int, r Rect) {
	w := r.Width()
	for y := r.Y0; y < r.Y1; y++ {
		from := y*srcWidth + r.X0
		to := (y - r.Y0) * dstStride
		copy(dst[to:to+w], src[from:from+w])
	}
}

// PasteRect is the inverse of CopyRect: it writes the packed rows of src into
// the cells r of dst (row length dstWidth).
func PasteRect(dst []float64, dstWidth int, src []float64, srcStride int, r Rect) {
	w := r.Width()
	for y := r.Y0; y < r.Y1; y++ {
		from := (y - r.Y0) * srcStride
		to := y*dstWidth + r.X0
		copy(dst[to:to+w], src[from:from+w])
	}
}

// CopyFieldRect copies r from src to dst, both laid out as full tiles.
func CopyFieldRect(g *Geometry, dst, src Field, r Rect) {
	for y := r.Y0; y < r.Y1; y++ {
		lo, hi := y*g.Width+r.X0, y*g.Width+r.X1
		copy(dst.Real[lo:hi], src.Real[lo:hi])
		copy(dst.Imag[lo:hi], src.Imag[lo:hi])
	}
}
