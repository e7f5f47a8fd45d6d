package trottersuzuki

import (
	"fmt"
	"io"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
)

// PotentialFunc is a static potential sampled at physical coordinates.
type PotentialFunc func(x, y float64) float64

// PotentialEvolver is a time-dependent potential: it is sampled at physical
// coordinates for step t of length deltaT.
type PotentialEvolver func(x, y, deltaT float64, t int) float64

// Hamiltonian holds the coefficients and external potential of a
// single-component system. ExternalPot is aligned with the lattice tile.
type Hamiltonian struct {
	Lattice         *Lattice
	Mass            float64
	CouplingA       float64
	AngularVelocity float64
	RotCoordX       float64
	RotCoordY       float64
	ExternalPot     []float64
	EvolvePotential PotentialEvolver
}

// Component selects one species of a two-component system.
type Component int

const (
	ComponentA Component = iota
	ComponentB
)

// TwoComponentHamiltonian adds a second species, the inter-species
// interaction and the Rabi coupling OmegaR + i OmegaI.
type TwoComponentHamiltonian struct {
	Hamiltonian

	MassB            float64
	CouplingAB       float64
	CouplingB        float64
	OmegaR, OmegaI   float64
	ExternalPotB     []float64
	EvolvePotentialB PotentialEvolver
}

type hamiltonianConfig struct {
	h     Hamiltonian
	massB float64
	gAB   float64
	gB    float64
	rabi  [2]float64
	potB  []float64
	evB   PotentialEvolver
	omega *float64
}

// HamiltonianOption configures NewHamiltonian and NewTwoComponentHamiltonian.
// Options naming the second species are ignored by NewHamiltonian.
type HamiltonianOption func(*hamiltonianConfig)

// WithMass sets the particle mass (default 1).
func WithMass(m float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.h.Mass = m }
}

// WithMassB sets the second species' mass (default 1).
func WithMassB(m float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.massB = m }
}

// WithCoupling sets the self-interaction strength.
func WithCoupling(g float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.h.CouplingA = g }
}

// WithCouplingB sets the second species' self-interaction.
func WithCouplingB(g float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.gB = g }
}

// WithCouplingAB sets the interaction between the species.
func WithCouplingAB(g float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.gAB = g }
}

// WithRabi sets the Rabi coupling omegaR + i omegaI.
func WithRabi(omegaR, omegaI float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.rabi = [2]float64{omegaR, omegaI} }
}

// WithAngularVelocity sets the frame rotation rate; it defaults to the
// lattice's rotation.
func WithAngularVelocity(omega float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.omega = &omega }
}

// WithRotationCenter moves the rotation axis away from the origin.
func WithRotationCenter(x, y float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.h.RotCoordX, c.h.RotCoordY = x, y }
}

// WithExternalPotential uses pot, a tile-shaped array, as the potential.
func WithExternalPotential(pot []float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.h.ExternalPot = pot }
}

// WithExternalPotentialB is WithExternalPotential for the second species.
func WithExternalPotentialB(pot []float64) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.potB = pot }
}

// WithEvolvingPotential registers a time-dependent potential.
func WithEvolvingPotential(fn PotentialEvolver) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.h.EvolvePotential = fn }
}

// WithEvolvingPotentialB registers the second species' time-dependent potential.
func WithEvolvingPotentialB(fn PotentialEvolver) HamiltonianOption {
	return func(c *hamiltonianConfig) { c.evB = fn }
}

func newHamiltonianConfig(l *Lattice, opts []HamiltonianOption) (*hamiltonianConfig, error) {
	c := &hamiltonianConfig{h: Hamiltonian{Lattice: l, Mass: 1}, massB: 1}
	for _, opt := range opts {
		opt(c)
	}

	c.h.AngularVelocity = l.Omega
	if c.omega != nil {
		c.h.AngularVelocity = *c.omega
	}

	if !(c.h.Mass > 0) || !(c.massB > 0) {
		return nil, fmt.Errorf("%w: masses %g/%g", ErrInvalidArgument, c.h.Mass, c.massB)
	}

	if c.h.AngularVelocity != 0 && (l.Periods[0] || l.Periods[1]) {
		return nil, fmt.Errorf("%w: rotation requires closed boundaries", ErrInvalidGeometry)
	}

	var err error
	if c.h.ExternalPot, err = tileArray(l, c.h.ExternalPot); err != nil {
		return nil, err
	}

	if c.potB, err = tileArray(l, c.potB); err != nil {
		return nil, err
	}

	return c, nil
}

// tileArray returns a zero tile array for nil and checks the shape otherwise.
func tileArray(l *Lattice, a []float64) ([]float64, error) {
	if a == nil {
		return make([]float64, l.TileSize()), nil
	}

	if len(a) != l.TileSize() {
		return nil, fmt.Errorf("%w: %d values for a %dx%d tile", ErrShapeMismatch, len(a), l.DimX, l.DimY)
	}

	return a, nil
}

// NewHamiltonian returns a single-component Hamiltonian on l.
func NewHamiltonian(l *Lattice, opts ...HamiltonianOption) (*Hamiltonian, error) {
	c, err := newHamiltonianConfig(l, opts)
	if err != nil {
		return nil, err
	}

	return &c.h, nil
}

// NewTwoComponentHamiltonian returns a two-component Hamiltonian on l.
func NewTwoComponentHamiltonian(l *Lattice, opts ...HamiltonianOption) (*TwoComponentHamiltonian, error) {
	c, err := newHamiltonianConfig(l, opts)
	if err != nil {
		return nil, err
	}

	return &TwoComponentHamiltonian{
		Hamiltonian:      c.h,
		MassB:            c.massB,
		CouplingAB:       c.gAB,
		CouplingB:        c.gB,
		OmegaR:           c.rabi[0],
		OmegaI:           c.rabi[1],
		ExternalPotB:     c.potB,
		EvolvePotentialB: c.evB,
	}, nil
}

// sampleTile evaluates fn at every in-domain tile cell; wall halo cells get 0.
func sampleTile(l *Lattice, dst []float64, fn func(x, y float64) float64) {
	for y := range l.DimY {
		for x := range l.DimX {
			gx, gy := l.StartX+x, l.StartY+y
			k := l.Index(x, y)

			if !l.InDomain(gx, gy) {
				dst[k] = 0
				continue
			}

			dst[k] = fn(l.Coordinate(gx, gy))
		}
	}
}

// InitializePotential samples fn onto the tile.
func (h *Hamiltonian) InitializePotential(fn PotentialFunc) {
	sampleTile(h.Lattice, h.ExternalPot, fn)
}

// ReadPotential loads the potential from a global real matrix in text form.
func (h *Hamiltonian) ReadPotential(r io.Reader) error {
	l := h.Lattice

	pot, err := matrixio.ReadReal(r, l.GlobalDimX, l.GlobalDimY, 0)
	if err != nil {
		return fmt.Errorf("read potential: %w", err)
	}

	scatterGlobal(l, pot, h.ExternalPot)

	return nil
}

// SetPotential copies a tile-shaped potential.
func (h *Hamiltonian) SetPotential(pot []float64) error {
	if len(pot) != h.Lattice.TileSize() {
		return fmt.Errorf("%w: %d values for a %dx%d tile",
			ErrShapeMismatch, len(pot), h.Lattice.DimX, h.Lattice.DimY)
	}

	copy(h.ExternalPot, pot)

	return nil
}

// TimeDependent reports whether a potential evaluator is registered.
func (h *Hamiltonian) TimeDependent() bool {
	return h.EvolvePotential != nil
}

// UpdatePotential resamples the time-dependent potential for the given step.
// It is a no-op without an evaluator.
func (h *Hamiltonian) UpdatePotential(deltaT float64, iteration int) {
	if h.EvolvePotential == nil {
		return
	}

	fn := h.EvolvePotential
	sampleTile(h.Lattice, h.ExternalPot, func(x, y float64) float64 {
		return fn(x, y, deltaT, iteration)
	})
}

// InitializeComponentPotential samples fn onto the potential of one species.
func (h *TwoComponentHamiltonian) InitializeComponentPotential(which Component, fn PotentialFunc) error {
	switch which {
	case ComponentA:
		sampleTile(h.Lattice, h.ExternalPot, fn)
	case ComponentB:
		sampleTile(h.Lattice, h.ExternalPotB, fn)
	default:
		return fmt.Errorf("%w: component %d", ErrInvalidArgument, which)
	}

	return nil
}

// TimeDependent reports whether either species has a potential evaluator.
func (h *TwoComponentHamiltonian) TimeDependent() bool {
	return h.EvolvePotential != nil || h.EvolvePotentialB != nil
}

// UpdatePotential resamples both species' time-dependent potentials.
func (h *TwoComponentHamiltonian) UpdatePotential(deltaT float64, iteration int) {
	h.Hamiltonian.UpdatePotential(deltaT, iteration)

	if h.EvolvePotentialB == nil {
		return
	}

	fn := h.EvolvePotentialB
	sampleTile(h.Lattice, h.ExternalPotB, func(x, y float64) float64 {
		return fn(x, y, deltaT, iteration)
	})
}

// species describes one component's coefficients for the solver.
type species struct {
	mass     float64
	coupling float64
	pot      []float64
}

func (h *Hamiltonian) species() []species {
	return []species{{mass: h.Mass, coupling: h.CouplingA, pot: h.ExternalPot}}
}

func (h *TwoComponentHamiltonian) species() []species {
	return []species{
		{mass: h.Mass, coupling: h.CouplingA, pot: h.ExternalPot},
		{mass: h.MassB, coupling: h.CouplingB, pot: h.ExternalPotB},
	}
}
