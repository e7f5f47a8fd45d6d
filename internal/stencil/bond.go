package stencil

import "math"

// Field is one wavefunction component stored as separate real and imaginary
// planes, row-major over the tile.
type Field struct {
	Real, Imag []float64
}

// BondOp is the 2x2 propagator of one nearest-neighbour bond (p, q):
//
//	p' = C*p + X*q
//	q' = Y*p + C*q
//
// with C real and X, Y complex.
type BondOp struct {
	C      float64
	Xr, Xi float64
	Yr, Yi float64
}

// NewBondOp builds the propagator of the bond Hamiltonian B = -kappa*sx + c*sy
// over one half step, given theta = kappa*t and rot = c*t.
// Real time uses exp(-i t B), imaginary time exp(-t B).
// With rot == 0 this reduces to the kinetic pair rotation (cos, i sin) or
// (cosh, sinh).
func NewBondOp(theta, rot float64, imagTime bool) BondOp {
	phi := math.Sqrt(theta*theta + rot*rot)
	if phi == 0 {
		return BondOp{C: 1}
	}

	nx := -theta / phi
	ny := rot / phi

	if imagTime {
		ch, sh := math.Cosh(phi), math.Sinh(phi)

		return BondOp{
			C:  ch,
			Xr: -sh * nx, Xi: sh * ny,
			Yr: -sh * nx, Yi: -sh * ny,
		}
	}

	s, c := math.Sincos(phi)

	return BondOp{
		C:  c,
		Xr: -s * ny, Xi: -s * nx,
		Yr: s * ny, Yi: -s * nx,
	}
}

func (b *BondOp) apply(re, im []float64, p, q int) {
	pr, pi := re[p], im[p]
	qr, qi := re[q], im[q]

	re[p] = b.C*pr + b.Xr*qr - b.Xi*qi
	im[p] = b.C*pi + b.Xr*qi + b.Xi*qr
	re[q] = b.Yr*pr - b.Yi*pi + b.C*qr
	im[q] = b.Yr*pi + b.Yi*pr + b.C*qi
}

// Params bundles everything a step needs besides the fields themselves.
// Slices are indexed by component first.
type Params struct {
	ImagTime   bool
	DeltaT     float64
	Components int

	// XBonds[c][row] propagates bonds along x in tile row `row`;
	// YBonds[c][col] propagates bonds along y in tile column `col`.
	XBonds [][]BondOp
	YBonds [][]BondOp

	// PotReal/PotImag hold exp(-i dt V) (real time) or exp(-dt V) (imaginary
	// time, PotImag all zero) per tile cell.
	PotReal [][]float64
	PotImag [][]float64

	// Coupling[c] is the self-interaction of component c; CouplingAB the
	// interaction between the two components.
	Coupling   [2]float64
	CouplingAB float64
}

// Clone returns a deep copy; kernels keep their own parameters so potential
// updates never race with the caller.
func (p *Params) Clone() *Params {
	out := *p
	out.XBonds = cloneBonds(p.XBonds)
	out.YBonds = cloneBonds(p.YBonds)
	out.PotReal = clonePlanes(p.PotReal)
	out.PotImag = clonePlanes(p.PotImag)

	return &out
}

// SetPotential replaces the potential exponentials of every component.
func (p *Params) SetPotential(potReal, potImag [][]float64) {
	for c := range p.PotReal {
		copy(p.PotReal[c], potReal[c])
		copy(p.PotImag[c], potImag[c])
	}
}

func (p *Params) nonlinear(c int) bool {
	return p.Coupling[c] != 0 || (p.Components == 2 && p.CouplingAB != 0)
}

func cloneBonds(in [][]BondOp) [][]BondOp {
	out := make([][]BondOp, len(in))
	for i := range in {
		out[i] = append([]BondOp(nil), in[i]...)
	}

	return out
}

func clonePlanes(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i := range in {
		out[i] = append([]float64(nil), in[i]...)
	}

	return out
}
