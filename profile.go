package trottersuzuki

import (
	"math"
	"math/cmplx"
)

// Profile is a closed-form initial wavefunction. Sampler returns the
// amplitude at physical coordinates for the given lattice.
type Profile interface {
	Sampler(l *Lattice) func(x, y float64) complex128
}

// ExponentialProfile is the plane wave
//
//	sqrt(N/(Lx Ly)) exp(i (2 pi NX x/Lx + 2 pi NY y/Ly + Phase))
//
// A zero Norm means 1.
type ExponentialProfile struct {
	NX, NY int
	Norm   float64
	Phase  float64
}

// Sampler implements Profile.
func (p ExponentialProfile) Sampler(l *Lattice) func(x, y float64) complex128 {
	amp := math.Sqrt(orOne(p.Norm) / (l.LengthX * l.LengthY))
	kx := 2 * math.Pi * float64(p.NX) / l.LengthX
	ky := 2 * math.Pi * float64(p.NY) / l.LengthY

	return func(x, y float64) complex128 {
		return complex(amp, 0) * cmplx.Exp(complex(0, kx*x+ky*y+p.Phase))
	}
}

// GaussianProfile is the harmonic ground state
//
//	sqrt(N Omega/pi) exp(-Omega ((x-MeanX)^2 + (y-MeanY)^2)/2) exp(i Phase)
//
// A zero Omega or Norm means 1.
type GaussianProfile struct {
	Omega        float64
	MeanX, MeanY float64
	Norm         float64
	Phase        float64
}

// Sampler implements Profile.
func (p GaussianProfile) Sampler(_ *Lattice) func(x, y float64) complex128 {
	omega := orOne(p.Omega)
	amp := math.Sqrt(orOne(p.Norm) * omega / math.Pi)
	phase := cmplx.Exp(complex(0, p.Phase))

	return func(x, y float64) complex128 {
		dx, dy := x-p.MeanX, y-p.MeanY

		return complex(amp*math.Exp(-0.5*omega*(dx*dx+dy*dy)), 0) * phase
	}
}

// SinusoidProfile is the standing wave
//
//	2 sqrt(N/(Lx Ly)) sin(2 pi NX x/Lx) sin(2 pi NY y/Ly) exp(i Phase)
//
// A zero Norm means 1.
type SinusoidProfile struct {
	NX, NY int
	Norm   float64
	Phase  float64
}

// Sampler implements Profile.
func (p SinusoidProfile) Sampler(l *Lattice) func(x, y float64) complex128 {
	amp := 2 * math.Sqrt(orOne(p.Norm)/(l.LengthX*l.LengthY))
	kx := 2 * math.Pi * float64(p.NX) / l.LengthX
	ky := 2 * math.Pi * float64(p.NY) / l.LengthY
	phase := cmplx.Exp(complex(0, p.Phase))

	return func(x, y float64) complex128 {
		return complex(amp*math.Sin(kx*x)*math.Sin(ky*y), 0) * phase
	}
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}

	return v
}

// NewProfileState returns a state initialised from p.
func NewProfileState(l *Lattice, p Profile, opts ...StateOption) (*State, error) {
	s, err := NewState(l, opts...)
	if err != nil {
		return nil, err
	}

	s.Init(p.Sampler(l))

	return s, nil
}

// NewExponentialState returns a plane-wave state.
func NewExponentialState(l *Lattice, p ExponentialProfile, opts ...StateOption) (*State, error) {
	return NewProfileState(l, p, opts...)
}

// NewGaussianState returns a Gaussian state.
func NewGaussianState(l *Lattice, p GaussianProfile, opts ...StateOption) (*State, error) {
	return NewProfileState(l, p, opts...)
}

// NewSinusoidState returns a standing-wave state.
func NewSinusoidState(l *Lattice, p SinusoidProfile, opts ...StateOption) (*State, error) {
	return NewProfileState(l, p, opts...)
}
