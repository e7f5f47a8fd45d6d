package trottersuzuki

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Observables read the halo, so the state must have current halos: freshly
// initialised, or as left by Solver.Evolve. A zero norm2 means the squared
// norm is computed here; global selects a reduction over all ranks for both
// the sums and that norm.

// Moments holds normalised first moments and variances along x and y.
type Moments struct {
	X, Y       float64
	VarX, VarY float64
}

type energyOptions struct {
	fn, fnB   PotentialFunc
	pot, potB []float64
}

// EnergyOption selects the potential used by TotalEnergy.
type EnergyOption func(*energyOptions)

// WithPotentialFunc evaluates the potential energy with fn instead of the
// Hamiltonian's array.
func WithPotentialFunc(fn PotentialFunc) EnergyOption {
	return func(o *energyOptions) { o.fn = fn }
}

// WithPotentialArray evaluates the potential energy with a tile-shaped array.
func WithPotentialArray(pot []float64) EnergyOption {
	return func(o *energyOptions) { o.pot = pot }
}

// WithPotentialFuncB is WithPotentialFunc for the second species of
// TotalEnergyTwoComponent.
func WithPotentialFuncB(fn PotentialFunc) EnergyOption {
	return func(o *energyOptions) { o.fnB = fn }
}

// WithPotentialArrayB is WithPotentialArray for the second species.
func WithPotentialArrayB(pot []float64) EnergyOption {
	return func(o *energyOptions) { o.potB = pot }
}

// reduce sums vals over all ranks when global is set.
func reduce(l *Lattice, global bool, vals ...float64) ([]float64, error) {
	if global {
		if err := l.Comm().Allreduce(vals); err != nil {
			return nil, err
		}
	}

	return vals, nil
}

func resolveNorm(l *Lattice, norm2 float64, global bool, states ...*State) (float64, error) {
	if norm2 != 0 {
		return norm2, nil
	}

	var local float64
	for _, s := range states {
		n, err := s.SquaredNorm(false)
		if err != nil {
			return 0, err
		}

		local += n
	}

	vals, err := reduce(l, global, local)
	if err != nil {
		return 0, err
	}

	if vals[0] == 0 {
		return 0, fmt.Errorf("%w: zero norm", ErrInvalidArgument)
	}

	return vals[0], nil
}

// kineticSum returns the sum over active bonds with an owned lower cell of
// kappa |psi_q - psi_p|^2, times the cell area.
func kineticSum(l *Lattice, s *State, mass float64) float64 {
	g := l.geometry()
	own := g.Owned
	kx := 1 / (2 * mass * l.DeltaX * l.DeltaX)
	ky := 1 / (2 * mass * l.DeltaY * l.DeltaY)

	var sum float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)

			if g.BondActiveX(l.StartX + x) {
				dr, di := s.Real[k+1]-s.Real[k], s.Imag[k+1]-s.Imag[k]
				sum += kx * (dr*dr + di*di)
			}

			if g.BondActiveY(l.StartY + y) {
				dr, di := s.Real[k+l.DimX]-s.Real[k], s.Imag[k+l.DimX]-s.Imag[k]
				sum += ky * (dr*dr + di*di)
			}
		}
	}

	return sum * l.DeltaX * l.DeltaY
}

// angularSum returns the sum of Im(psi* (x d/dy - y d/dx) psi) dx dy, the
// unnormalised <Lz>, with coordinates relative to (cx, cy).
func angularSum(l *Lattice, s *State, cx, cy float64) float64 {
	own := l.Owned()

	var sum float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)
			px, py := l.TileCoordinate(x, y)
			px, py = px-cx, py-cy

			dxr := (s.Real[k+1] - s.Real[k-1]) / (2 * l.DeltaX)
			dxi := (s.Imag[k+1] - s.Imag[k-1]) / (2 * l.DeltaX)
			dyr := (s.Real[k+l.DimX] - s.Real[k-l.DimX]) / (2 * l.DeltaY)
			dyi := (s.Imag[k+l.DimX] - s.Imag[k-l.DimX]) / (2 * l.DeltaY)

			lr := px*dyr - py*dxr
			li := px*dyi - py*dxi
			sum += s.Real[k]*li - s.Imag[k]*lr
		}
	}

	return sum * l.DeltaX * l.DeltaY
}

// potentialSums returns sum V |psi|^2 dx dy and sum |psi|^4 dx dy.
func potentialSums(l *Lattice, s *State, pot []float64, fn PotentialFunc) (float64, float64) {
	own := l.Owned()

	var sv, s4 float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)
			d := s.Real[k]*s.Real[k] + s.Imag[k]*s.Imag[k]

			v := 0.0
			switch {
			case fn != nil:
				v = fn(l.TileCoordinate(x, y))
			case pot != nil:
				v = pot[k]
			}

			sv += v * d
			s4 += d * d
		}
	}

	area := l.DeltaX * l.DeltaY

	return sv * area, s4 * area
}

// KineticEnergy returns <T>/norm2 by finite differences over the bonds the
// solver evolves.
func KineticEnergy(l *Lattice, s *State, h *Hamiltonian, norm2 float64, global bool) (float64, error) {
	n, err := resolveNorm(l, norm2, global, s)
	if err != nil {
		return 0, err
	}

	vals, err := reduce(l, global, kineticSum(l, s, h.Mass))
	if err != nil {
		return 0, err
	}

	return vals[0] / n, nil
}

// RotationalEnergy returns -Omega <Lz>/norm2 by central differences.
func RotationalEnergy(l *Lattice, s *State, h *Hamiltonian, norm2 float64, global bool) (float64, error) {
	n, err := resolveNorm(l, norm2, global, s)
	if err != nil {
		return 0, err
	}

	if h.AngularVelocity == 0 {
		return 0, nil
	}

	vals, err := reduce(l, global, angularSum(l, s, h.RotCoordX, h.RotCoordY))
	if err != nil {
		return 0, err
	}

	return -h.AngularVelocity * vals[0] / n, nil
}

func energyPotential(h *Hamiltonian, potB []float64, opts []EnergyOption) (*energyOptions, error) {
	o := energyOptions{pot: h.ExternalPot, potB: potB}
	for _, opt := range opts {
		opt(&o)
	}

	n := h.Lattice.TileSize()

	for _, p := range []struct {
		fn  PotentialFunc
		pot []float64
	}{{o.fn, o.pot}, {o.fnB, o.potB}} {
		if p.fn == nil && p.pot != nil && len(p.pot) != n {
			return nil, fmt.Errorf("%w: potential of %d values", ErrShapeMismatch, len(p.pot))
		}
	}

	return &o, nil
}

// TotalEnergy returns the kinetic, potential, interaction and rotational
// energy per unit norm.
func TotalEnergy(l *Lattice, s *State, h *Hamiltonian, norm2 float64, global bool, opts ...EnergyOption) (float64, error) {
	o, err := energyPotential(h, nil, opts)
	if err != nil {
		return 0, err
	}

	n, err := resolveNorm(l, norm2, global, s)
	if err != nil {
		return 0, err
	}

	sv, s4 := potentialSums(l, s, o.pot, o.fn)
	e := kineticSum(l, s, h.Mass) + sv + 0.5*h.CouplingA*s4

	if h.AngularVelocity != 0 {
		e -= h.AngularVelocity * angularSum(l, s, h.RotCoordX, h.RotCoordY)
	}

	vals, err := reduce(l, global, e)
	if err != nil {
		return 0, err
	}

	return vals[0] / n, nil
}

// TotalEnergyTwoComponent returns the energy of both species, their
// interaction and the Rabi coupling, per unit of combined norm. The plain
// potential options apply to species A, the B options to species B; each
// defaults to its Hamiltonian array.
func TotalEnergyTwoComponent(l *Lattice, a, b *State, h *TwoComponentHamiltonian, norm2 float64, global bool, opts ...EnergyOption) (float64, error) {
	o, err := energyPotential(&h.Hamiltonian, h.ExternalPotB, opts)
	if err != nil {
		return 0, err
	}

	n, err := resolveNorm(l, norm2, global, a, b)
	if err != nil {
		return 0, err
	}

	svA, s4A := potentialSums(l, a, o.pot, o.fn)
	svB, s4B := potentialSums(l, b, o.potB, o.fnB)

	e := kineticSum(l, a, h.Mass) + kineticSum(l, b, h.MassB) +
		svA + svB + 0.5*h.CouplingA*s4A + 0.5*h.CouplingB*s4B

	if h.AngularVelocity != 0 {
		e -= h.AngularVelocity * (angularSum(l, a, h.RotCoordX, h.RotCoordY) + angularSum(l, b, h.RotCoordX, h.RotCoordY))
	}

	own := l.Owned()

	var cross, rabi float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)
			da := a.Real[k]*a.Real[k] + a.Imag[k]*a.Imag[k]
			db := b.Real[k]*b.Real[k] + b.Imag[k]*b.Imag[k]
			cross += da * db

			// Re(conj(b) w a)
			wr := h.OmegaR*a.Real[k] - h.OmegaI*a.Imag[k]
			wi := h.OmegaR*a.Imag[k] + h.OmegaI*a.Real[k]
			rabi += b.Real[k]*wr + b.Imag[k]*wi
		}
	}

	e += (h.CouplingAB*cross + 2*rabi) * l.DeltaX * l.DeltaY

	vals, err := reduce(l, global, e)
	if err != nil {
		return 0, err
	}

	return vals[0] / n, nil
}

// MeanPosition returns the normalised position moments.
func MeanPosition(l *Lattice, s *State, norm2 float64, global bool) (Moments, error) {
	n, err := resolveNorm(l, norm2, global, s)
	if err != nil {
		return Moments{}, err
	}

	own := l.Owned()

	var sx, sy, sxx, syy float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)
			d := s.Real[k]*s.Real[k] + s.Imag[k]*s.Imag[k]
			px, py := l.TileCoordinate(x, y)
			sx += px * d
			sy += py * d
			sxx += px * px * d
			syy += py * py * d
		}
	}

	area := l.DeltaX * l.DeltaY
	vals, err := reduce(l, global, sx*area, sy*area, sxx*area, syy*area)
	if err != nil {
		return Moments{}, err
	}

	floats.Scale(1/n, vals)

	return Moments{
		X: vals[0], Y: vals[1],
		VarX: vals[2] - vals[0]*vals[0],
		VarY: vals[3] - vals[1]*vals[1],
	}, nil
}

// MeanMomentum returns the normalised momentum moments. The mean uses
// central differences, the second moment forward differences.
func MeanMomentum(l *Lattice, s *State, norm2 float64, global bool) (Moments, error) {
	n, err := resolveNorm(l, norm2, global, s)
	if err != nil {
		return Moments{}, err
	}

	g := l.geometry()
	own := g.Owned

	var px, py, pxx, pyy float64

	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			k := l.Index(x, y)
			re, im := s.Real[k], s.Imag[k]

			// Im(conj(psi) dpsi)
			dxr := (s.Real[k+1] - s.Real[k-1]) / (2 * l.DeltaX)
			dxi := (s.Imag[k+1] - s.Imag[k-1]) / (2 * l.DeltaX)
			px += re*dxi - im*dxr

			dyr := (s.Real[k+l.DimX] - s.Real[k-l.DimX]) / (2 * l.DeltaY)
			dyi := (s.Imag[k+l.DimX] - s.Imag[k-l.DimX]) / (2 * l.DeltaY)
			py += re*dyi - im*dyr

			if g.BondActiveX(l.StartX + x) {
				fr, fi := (s.Real[k+1]-re)/l.DeltaX, (s.Imag[k+1]-im)/l.DeltaX
				pxx += fr*fr + fi*fi
			}

			if g.BondActiveY(l.StartY + y) {
				fr, fi := (s.Real[k+l.DimX]-re)/l.DeltaY, (s.Imag[k+l.DimX]-im)/l.DeltaY
				pyy += fr*fr + fi*fi
			}
		}
	}

	area := l.DeltaX * l.DeltaY
	vals, err := reduce(l, global, px*area, py*area, pxx*area, pyy*area)
	if err != nil {
		return Moments{}, err
	}

	floats.Scale(1/n, vals)

	return Moments{
		X: vals[0], Y: vals[1],
		VarX: vals[2] - vals[0]*vals[0],
		VarY: vals[3] - vals[1]*vals[1],
	}, nil
}

// spectrum returns the 2D discrete Fourier coefficients of the owned field
// and the angular wave numbers per axis. Only single-rank lattices periodic
// on both axes qualify.
func spectrum(l *Lattice, s *State) ([]complex128, []float64, []float64, error) {
	if l.Procs != 1 || !l.Periods[0] || !l.Periods[1] {
		return nil, nil, nil, fmt.Errorf("%w: spectral observables need one rank and periodic axes", ErrUnsupported)
	}

	nx, ny := l.GlobalDimX, l.GlobalDimY
	own := l.Owned()
	data := make([]complex128, nx*ny)

	for y := range ny {
		for x := range nx {
			k := l.Index(own.X0+x, own.Y0+y)
			data[y*nx+x] = complex(s.Real[k], s.Imag[k])
		}
	}

	fx := fourier.NewCmplxFFT(nx)
	row := make([]complex128, nx)

	for y := range ny {
		fx.Coefficients(row, data[y*nx:(y+1)*nx])
		copy(data[y*nx:], row)
	}

	fy := fourier.NewCmplxFFT(ny)
	col := make([]complex128, ny)
	out := make([]complex128, ny)

	for x := range nx {
		for y := range ny {
			col[y] = data[y*nx+x]
		}

		fy.Coefficients(out, col)

		for y := range ny {
			data[y*nx+x] = out[y]
		}
	}

	kx := make([]float64, nx)
	for i := range kx {
		kx[i] = 2 * math.Pi * fx.Freq(i) / l.DeltaX
	}

	ky := make([]float64, ny)
	for i := range ky {
		ky[i] = 2 * math.Pi * fy.Freq(i) / l.DeltaY
	}

	return data, kx, ky, nil
}

// SpectralKineticEnergy returns <T> from the Fourier spectrum of the field.
func SpectralKineticEnergy(l *Lattice, s *State, h *Hamiltonian) (float64, error) {
	data, kx, ky, err := spectrum(l, s)
	if err != nil {
		return 0, err
	}

	var num, den float64

	for y, qy := range ky {
		for x, qx := range kx {
			c := data[y*len(kx)+x]
			p := real(c)*real(c) + imag(c)*imag(c)
			num += (qx*qx + qy*qy) * p
			den += p
		}
	}

	if den == 0 {
		return 0, fmt.Errorf("%w: zero norm", ErrInvalidArgument)
	}

	return num / (2 * h.Mass * den), nil
}

// SpectralMeanMomentum returns the momentum moments from the Fourier
// spectrum of the field.
func SpectralMeanMomentum(l *Lattice, s *State) (Moments, error) {
	data, kx, ky, err := spectrum(l, s)
	if err != nil {
		return Moments{}, err
	}

	var sx, sy, sxx, syy, den float64

	for y, qy := range ky {
		for x, qx := range kx {
			c := data[y*len(kx)+x]
			p := real(c)*real(c) + imag(c)*imag(c)
			sx += qx * p
			sy += qy * p
			sxx += qx * qx * p
			syy += qy * qy * p
			den += p
		}
	}

	if den == 0 {
		return Moments{}, fmt.Errorf("%w: zero norm", ErrInvalidArgument)
	}

	mx, my := sx/den, sy/den

	return Moments{X: mx, Y: my, VarX: sxx/den - mx*mx, VarY: syy/den - my*my}, nil
}
