package stencil

import (
	"math"
	"sync"
)

// Scratch is the private working window of one block step.
type Scratch struct {
	re, im []float64
}

var scratchPool = sync.Pool{New: func() any { return new(Scratch) }}

// GetScratch returns a scratch window from the shared pool.
func GetScratch() *Scratch {
	s, _ := scratchPool.Get().(*Scratch)

	return s
}

// PutScratch returns s to the shared pool.
func PutScratch(s *Scratch) {
	scratchPool.Put(s)
}

func (s *Scratch) reserve(n int) {
	if cap(s.re) < n {
		s.re = make([]float64, n)
		s.im = make([]float64, n)
	}

	s.re = s.re[:n]
	s.im = s.im[:n]
}

// StepBlock advances the cells of out for component c by one full step of the
// symmetric splitting
//
//	V0 H0 V1 H1 P H1 V1 H0 V0
//
// reading the input from src and writing only out into dst. V sweeps act on
// bonds along y, H sweeps on bonds along x; the digit is the global parity of
// the lower cell. The window loaded from src is out grown by the halo width, so
// every cell of out sees exactly the operations it would see in a whole-domain
// sweep. src must not alias dst.
func StepBlock(g *Geometry, p *Params, c int, src []Field, dst Field, out Rect, s *Scratch) {
	win := out.Expand(g.HaloX, g.HaloY).Intersect(g.Tile())
	if out.Empty() || win.Empty() {
		return
	}

	w, h := win.Width(), win.Height()
	s.reserve(w * h)

	for y := range h {
		row := (win.Y0+y)*g.Width + win.X0
		copy(s.re[y*w:(y+1)*w], src[c].Real[row:row+w])
		copy(s.im[y*w:(y+1)*w], src[c].Imag[row:row+w])
	}

	s.sweepY(g, p.YBonds[c], win, 0)
	s.sweepX(g, p.XBonds[c], win, 0)
	s.sweepY(g, p.YBonds[c], win, 1)
	s.sweepX(g, p.XBonds[c], win, 1)
	s.potential(g, p, c, src, win)
	s.sweepX(g, p.XBonds[c], win, 1)
	s.sweepY(g, p.YBonds[c], win, 1)
	s.sweepX(g, p.XBonds[c], win, 0)
	s.sweepY(g, p.YBonds[c], win, 0)

	ow := out.Width()
	for y := out.Y0; y < out.Y1; y++ {
		from := (y-win.Y0)*w + (out.X0 - win.X0)
		to := y*g.Width + out.X0
		copy(dst.Real[to:to+ow], s.re[from:from+ow])
		copy(dst.Imag[to:to+ow], s.im[from:from+ow])
	}
}

// sweepY applies the bonds (y, y+1) whose lower global row has the given parity.
func (s *Scratch) sweepY(g *Geometry, bonds []BondOp, win Rect, par int) {
	w, h := win.Width(), win.Height()

	start := 0
	if parity(g.OriginY+win.Y0) != par {
		start = 1
	}

	for y := start; y+1 < h; y += 2 {
		if !g.bondActiveY(g.OriginY + win.Y0 + y) {
			continue
		}

		lo, hi := y*w, (y+1)*w
		for x := range w {
			bonds[win.X0+x].apply(s.re, s.im, lo+x, hi+x)
		}
	}
}

// sweepX applies the bonds (x, x+1) whose lower global column has the given parity.
func (s *Scratch) sweepX(g *Geometry, bonds []BondOp, win Rect, par int) {
	w, h := win.Width(), win.Height()

	start := 0
	if parity(g.OriginX+win.X0) != par {
		start = 1
	}

	for y := range h {
		op := &bonds[win.Y0+y]
		row := y * w

		for x := start; x+1 < w; x += 2 {
			if !g.bondActiveX(g.OriginX + win.X0 + x) {
				continue
			}

			op.apply(s.re, s.im, row+x, row+x+1)
		}
	}
}

// potential multiplies by the precomputed potential exponential and, with a
// non-zero interaction, by the non-linear phase (or decay) factor. The density
// of the other component is taken from its step input.
func (s *Scratch) potential(g *Geometry, p *Params, c int, src []Field, win Rect) {
	w, h := win.Width(), win.Height()
	potR, potI := p.PotReal[c], p.PotImag[c]
	nonlinear := p.nonlinear(c)

	var other *Field
	if p.Components == 2 {
		other = &src[1-c]
	}

	for y := range h {
		for x := range w {
			k := y*w + x
			t := (win.Y0+y)*g.Width + win.X0 + x
			re, im := s.re[k], s.im[k]

			if !nonlinear {
				if p.ImagTime {
					s.re[k] = re * potR[t]
					s.im[k] = im * potR[t]
				} else {
					s.re[k] = re*potR[t] - im*potI[t]
					s.im[k] = re*potI[t] + im*potR[t]
				}

				continue
			}

			nl := p.Coupling[c] * (re*re + im*im)
			if other != nil {
				or, oi := other.Real[t], other.Imag[t]
				nl += p.CouplingAB * (or*or + oi*oi)
			}
			nl *= p.DeltaT

			if p.ImagTime {
				f := potR[t] * math.Exp(-nl)
				s.re[k] = re * f
				s.im[k] = im * f

				continue
			}

			sn, cs := math.Sincos(-nl)
			fr := potR[t]*cs - potI[t]*sn
			fi := potR[t]*sn + potI[t]*cs
			s.re[k] = re*fr - im*fi
			s.im[k] = re*fi + im*fr
		}
	}
}
