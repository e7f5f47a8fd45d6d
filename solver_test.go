package trottersuzuki

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgnanonana/trotter-suzuki-mpi/cluster"
)

type system struct {
	lattice *Lattice
	states  []*State
	solver  *Solver
}

// rotatingSystem is a two-component condensate in a rotating harmonic trap
// with interactions and Rabi coupling, exercising every term of the step.
func rotatingSystem(t *testing.T, kernel string) *system {
	t.Helper()

	l, err := NewLattice(nil, 32, 8, 8, WithRotation(0.4))
	require.NoError(t, err)

	a, err := NewGaussianState(l, GaussianProfile{Omega: 1, MeanX: 0.5, Norm: 0.6})
	require.NoError(t, err)

	b, err := NewGaussianState(l, GaussianProfile{Omega: 1.5, MeanY: -0.5, Norm: 0.4, Phase: 0.3})
	require.NoError(t, err)

	h, err := NewTwoComponentHamiltonian(l,
		WithCoupling(2), WithCouplingB(1), WithCouplingAB(0.5),
		WithMassB(1.5), WithRabi(0.3, 0.2), WithRotationCenter(0.1, -0.1))
	require.NoError(t, err)

	h.InitializePotential(harmonic(1))
	require.NoError(t, h.InitializeComponentPotential(ComponentB, harmonic(1.2)))

	s, err := NewTwoComponentSolver(l, a, b, h, 0.005, kernel, WithBlockSize(8, 4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &system{lattice: l, states: []*State{a, b}, solver: s}
}

func TestSolver_KernelsAgreeBitForBit(t *testing.T) {
	t.Parallel()

	for _, imagTime := range []bool{false, true} {
		ref := rotatingSystem(t, "cpu")
		require.NoError(t, ref.solver.Evolve(12, imagTime))

		for _, name := range []string{"gpu", "hybrid"} {
			sys := rotatingSystem(t, name)
			require.NoError(t, sys.solver.Evolve(12, imagTime))

			for c := range sys.states {
				require.Equal(t, ref.states[c].Real, sys.states[c].Real, "%s imag=%t component %d", name, imagTime, c)
				require.Equal(t, ref.states[c].Imag, sys.states[c].Imag, "%s imag=%t component %d", name, imagTime, c)
			}
		}
	}
}

func TestSolver_RealTimeConservesNorm(t *testing.T) {
	t.Parallel()

	for _, name := range allKernels {
		t.Run(name, func(t *testing.T) {
			sys := rotatingSystem(t, name)

			n0, err := sys.solver.SquaredNorm()
			require.NoError(t, err)

			for range 5 {
				require.NoError(t, sys.solver.Evolve(10, false))

				n, err := sys.solver.SquaredNorm()
				require.NoError(t, err)
				assertClose(t, n0, n, 1e-10*n0, "norm after real-time steps")
			}

			assert.Equal(t, 50, sys.solver.Iterations())
			assert.InDelta(t, 0.25, sys.solver.CurrentEvolutionTime, 1e-12)
		})
	}
}

func TestSolver_ImaginaryTimeNormalisesEveryStep(t *testing.T) {
	t.Parallel()

	for _, name := range allKernels {
		t.Run(name, func(t *testing.T) {
			sys := rotatingSystem(t, name)

			for range 4 {
				require.NoError(t, sys.solver.Evolve(1, true))

				n, err := sys.solver.SquaredNorm()
				require.NoError(t, err)
				assertClose(t, 1, n, 1e-12, "norm after imaginary-time step")
			}
		})
	}
}

func TestSolver_SwitchingTimeModeRebuildsOperators(t *testing.T) {
	t.Parallel()

	sys := rotatingSystem(t, "cpu")

	require.NoError(t, sys.solver.Evolve(2, false))
	rt := sys.solver.KineticOperators()
	require.Len(t, rt, 2)

	require.NoError(t, sys.solver.Evolve(2, true))
	it := sys.solver.KineticOperators()

	assert.Greater(t, it[0][0].A, 1.0, "cosh")
	assert.Less(t, rt[0][0].A, 1.0, "cos")
	assert.Equal(t, 4, sys.solver.Iterations())
}

func TestSolver_PlaneWavePhaseAdvance(t *testing.T) {
	t.Parallel()

	const (
		n     = 64
		steps = 100
		dt    = 0.01
	)

	l := periodicLattice(t, n, n)
	s, err := NewExponentialState(l, ExponentialProfile{NX: 1, NY: 1})
	require.NoError(t, err)

	initial := s.Clone()

	h, err := NewHamiltonian(l)
	require.NoError(t, err)

	solver, err := NewSolver(l, s, h, dt, "cpu")
	require.NoError(t, err)
	defer solver.Close()

	n0, err := s.SquaredNorm(true)
	require.NoError(t, err)

	require.NoError(t, solver.Evolve(steps, false))

	n1, err := s.SquaredNorm(true)
	require.NoError(t, err)
	assertClose(t, n0, n1, 1e-10, "plane-wave norm")

	// The phase turns at the energy the observables report, which is the
	// lattice dispersion 2 kappa (2 - cos kx dx - cos ky dy).
	kappa := 1 / (2 * l.DeltaX * l.DeltaX)
	k := 2 * math.Pi / l.LengthX
	energy := 2 * kappa * (2 - math.Cos(k*l.DeltaX) - math.Cos(k*l.DeltaY))

	reported, err := TotalEnergy(l, initial, h, 0, true)
	require.NoError(t, err)
	assert.InDelta(t, energy, reported, 1e-12)

	var overlap complex128
	own := l.Owned()
	for y := own.Y0; y < own.Y1; y++ {
		for x := own.X0; x < own.X1; x++ {
			i := l.Index(x, y)
			overlap += cmplx.Conj(complex(initial.Real[i], initial.Imag[i])) * complex(s.Real[i], s.Imag[i])
		}
	}

	overlap *= complex(l.DeltaX*l.DeltaY/n0, 0)
	want := cmplx.Exp(complex(0, -energy*steps*dt))

	assert.InDelta(t, 0, cmplx.Abs(overlap-want), 1e-5, "overlap %v want %v", overlap, want)
	assert.InDelta(t, steps*dt, solver.CurrentEvolutionTime, 1e-12)
}

func TestSolver_GaussianImaginaryTimeRelaxes(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 64, 16)
	s, err := NewGaussianState(l, GaussianProfile{Omega: 0.6, MeanX: 1})
	require.NoError(t, err)

	h, err := NewHamiltonian(l)
	require.NoError(t, err)
	h.InitializePotential(harmonic(1))

	solver, err := NewSolver(l, s, h, 0.01, "cpu")
	require.NoError(t, err)
	defer solver.Close()

	prev, err := solver.TotalEnergy()
	require.NoError(t, err)

	for range 30 {
		require.NoError(t, solver.Evolve(20, true))

		e, err := solver.TotalEnergy()
		require.NoError(t, err)
		require.LessOrEqual(t, e, prev+1e-7, "energy must not increase")

		prev = e
	}

	assert.InDelta(t, 1.0, prev, 2e-2, "harmonic ground-state energy")

	m, err := MeanPosition(l, s, 0, true)
	require.NoError(t, err)
	assert.InDelta(t, 0, m.X, 1e-2)
	assert.InDelta(t, 0.5, m.VarX, 1e-2)
	assert.InDelta(t, 0.5, m.VarY, 1e-2)
}

func TestSolver_DecoupledComponentsMatchIndependentSolves(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 32, 8)
	profA := GaussianProfile{Omega: 1, MeanX: 1}
	profB := ExponentialProfile{NX: 1}

	a, err := NewGaussianState(l, profA)
	require.NoError(t, err)
	b, err := NewExponentialState(l, profB)
	require.NoError(t, err)

	h2, err := NewTwoComponentHamiltonian(l, WithMassB(2))
	require.NoError(t, err)
	h2.InitializePotential(harmonic(1))
	require.NoError(t, h2.InitializeComponentPotential(ComponentB, harmonic(0.5)))

	two, err := NewTwoComponentSolver(l, a, b, h2, 0.01, "cpu")
	require.NoError(t, err)
	defer two.Close()
	require.NoError(t, two.Evolve(25, false))

	single := func(p Profile, mass float64, pot PotentialFunc) *State {
		st, err := NewProfileState(l, p)
		require.NoError(t, err)

		h, err := NewHamiltonian(l, WithMass(mass))
		require.NoError(t, err)
		h.InitializePotential(pot)

		s, err := NewSolver(l, st, h, 0.01, "cpu")
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Evolve(25, false))

		return st
	}

	wantA := single(profA, 1, harmonic(1))
	wantB := single(profB, 2, harmonic(0.5))

	assert.Equal(t, wantA.Real, a.Real)
	assert.Equal(t, wantA.Imag, a.Imag)
	assert.Equal(t, wantB.Real, b.Real)
	assert.Equal(t, wantB.Imag, b.Imag)
}

func TestSolver_TimeDependentPotentialSeesEveryIteration(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 16, 4)
	s, err := NewGaussianState(l, GaussianProfile{})
	require.NoError(t, err)

	var seen []int

	h, err := NewHamiltonian(l, WithEvolvingPotential(func(x, y, dt float64, it int) float64 {
		if len(seen) == 0 || seen[len(seen)-1] != it {
			seen = append(seen, it)
		}

		return 0.1 * float64(it) * (x*x + y*y)
	}))
	require.NoError(t, err)

	solver, err := NewSolver(l, s, h, 0.01, "hybrid")
	require.NoError(t, err)
	defer solver.Close()

	require.NoError(t, solver.Evolve(3, false))
	require.NoError(t, solver.Evolve(2, false))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestNewSolver_Errors(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 16, 4)
	other := periodicLattice(t, 16, 4)

	s, err := NewState(l)
	require.NoError(t, err)
	h, err := NewHamiltonian(l)
	require.NoError(t, err)

	_, err = NewSolver(l, s, h, 0.01, "fpga")
	require.ErrorIs(t, err, ErrUnknownKernel)

	_, err = NewSolver(l, s, h, 0, "cpu")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewSolver(other, s, h, 0.01, "cpu")
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewSolver(l, nil, h, 0.01, "cpu")
	require.ErrorIs(t, err, ErrInvalidArgument)

	solver, err := NewSolver(l, s, h, 0.01, "cpu")
	require.NoError(t, err)
	require.ErrorIs(t, solver.Evolve(-1, false), ErrInvalidArgument)
	assert.Nil(t, solver.Kernel())
	assert.Equal(t, "cpu", solver.KernelName())
	assert.InDelta(t, 0.01, solver.DeltaT(), 0)
	require.NoError(t, solver.Close())
}

func TestSolver_MultiRankMatchesSingleRank(t *testing.T) {
	t.Parallel()

	const n = 32

	run := func(l *Lattice, kernel string, imagTime bool) (*State, error) {
		s, err := NewGaussianState(l, GaussianProfile{Omega: 1, MeanX: 0.7, MeanY: -0.3})
		if err != nil {
			return nil, err
		}

		h, err := NewHamiltonian(l, WithCoupling(3))
		if err != nil {
			return nil, err
		}

		h.InitializePotential(harmonic(1))

		solver, err := NewSolver(l, s, h, 0.005, kernel)
		if err != nil {
			return nil, err
		}
		defer solver.Close()

		return s, solver.Evolve(15, imagTime)
	}

	for _, imagTime := range []bool{false, true} {
		ref := periodicLattice(t, n, 8)
		want, err := run(ref, "cpu", imagTime)
		require.NoError(t, err)

		wantRe := ownedValues(ref, want.Real)
		wantIm := ownedValues(ref, want.Imag)

		for _, kernel := range allKernels {
			w, err := cluster.NewWorld(4)
			require.NoError(t, err)

			var (
				mu     sync.Mutex
				gotRe  []float64
				gotIm  []float64
				energy float64
			)

			err = w.Run(context.Background(), func(_ context.Context, c *cluster.Comm) error {
				l, err := NewLattice(c, n, 8, 8, WithPeriodic(true, true))
				if err != nil {
					return err
				}

				s, err := run(l, kernel, imagTime)
				if err != nil {
					return err
				}

				re, im, err := s.Gather(0)
				if err != nil {
					return err
				}

				if re != nil {
					mu.Lock()
					gotRe, gotIm = re, im
					mu.Unlock()
				}

				h, err := NewHamiltonian(l, WithCoupling(3))
				if err != nil {
					return err
				}

				h.InitializePotential(harmonic(1))

				e, err := TotalEnergy(l, s, h, 0, true)
				if err != nil {
					return err
				}

				if c.Rank() == 0 {
					mu.Lock()
					energy = e
					mu.Unlock()
				}

				return nil
			})
			require.NoError(t, err)

			if imagTime {
				// global norms are summed in a different order
				require.InDeltaSlice(t, wantRe, gotRe, 1e-12)
				require.InDeltaSlice(t, wantIm, gotIm, 1e-12)
			} else {
				require.Equal(t, wantRe, gotRe, "kernel %s", kernel)
				require.Equal(t, wantIm, gotIm, "kernel %s", kernel)
			}

			hRef, err := NewHamiltonian(ref, WithCoupling(3))
			require.NoError(t, err)
			hRef.InitializePotential(harmonic(1))

			eRef, err := TotalEnergy(ref, want, hRef, 0, true)
			require.NoError(t, err)
			assert.InDelta(t, eRef, energy, 1e-10)
		}
	}
}

func TestSolver_HaloExchangeMatchesNeighbours(t *testing.T) {
	t.Parallel()

	value := func(gx, gy int) (float64, float64) {
		return float64(gx*1000+gy) + 0.25, -float64(gy*1000+gx) - 0.5
	}

	for _, name := range allKernels {
		t.Run(name, func(t *testing.T) {
			w, err := cluster.NewWorld(6)
			require.NoError(t, err)

			err = w.Run(context.Background(), func(_ context.Context, c *cluster.Comm) error {
				l, err := NewLattice(c, 36, 9, 6, WithGlobalDims(36, 24), WithPeriodic(true, true))
				if err != nil {
					return err
				}

				// owned cells only; the halo starts at zero
				s, err := NewState(l)
				if err != nil {
					return err
				}

				own := l.Owned()
				for y := own.Y0; y < own.Y1; y++ {
					for x := own.X0; x < own.X1; x++ {
						k := l.Index(x, y)
						s.Real[k], s.Imag[k] = value(l.StartX+x, l.StartY+y)
					}
				}

				h, err := NewHamiltonian(l)
				if err != nil {
					return err
				}

				solver, err := NewSolver(l, s, h, 0.01, name)
				if err != nil {
					return err
				}
				defer solver.Close()

				if err := solver.Evolve(0, false); err != nil {
					return err
				}

				mismatches := 0

				for y := range l.DimY {
					for x := range l.DimX {
						re, im := value(wrap(l.StartX+x, l.GlobalDimX), wrap(l.StartY+y, l.GlobalDimY))
						k := l.Index(x, y)

						if s.Real[k] != re || s.Imag[k] != im {
							mismatches++
						}
					}
				}

				assert.Zero(t, mismatches, "rank %d", c.Rank())

				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestOnsite_CountsActiveBonds(t *testing.T) {
	t.Parallel()

	const kx, ky = 2.0, 3.0

	closed := closedLattice(t, 8, 8)
	g := closed.geometry()

	assert.InDelta(t, kx+ky, onsite(g, 0, 0, kx, ky), 0, "corner")
	assert.InDelta(t, kx+2*ky, onsite(g, 7, 3, kx, ky), 0, "edge")
	assert.InDelta(t, 2*kx+2*ky, onsite(g, 3, 4, kx, ky), 0, "bulk")
	assert.InDelta(t, 2*ky, onsite(g, -1, 3, kx, ky), 0, "wall halo has no x bonds")

	periodic := periodicLattice(t, 8, 8)
	assert.InDelta(t, 2*kx+2*ky, onsite(periodic.geometry(), 0, 7, kx, ky), 0)
}

func TestSolver_RabiMixingIsSymmetric(t *testing.T) {
	t.Parallel()

	const (
		v     = 1.0
		wr    = 0.5
		wi    = 0.3
		dt    = 0.05
		steps = 20
	)

	for _, name := range allKernels {
		t.Run(name, func(t *testing.T) {
			// uniform fields: hopping and the on-site term cancel, leaving a
			// two-level system with a detuning v on species A
			l := periodicLattice(t, 16, 4)

			a, err := NewExponentialState(l, ExponentialProfile{})
			require.NoError(t, err)

			b, err := NewState(l)
			require.NoError(t, err)

			h, err := NewTwoComponentHamiltonian(l, WithRabi(wr, wi))
			require.NoError(t, err)
			require.NoError(t, h.InitializeComponentPotential(ComponentA, func(x, y float64) float64 { return v }))

			solver, err := NewTwoComponentSolver(l, a, b, h, dt, name)
			require.NoError(t, err)
			defer solver.Close()

			// two chunks meet with two half turns
			require.NoError(t, solver.Evolve(steps/2, false))
			require.NoError(t, solver.Evolve(steps/2, false))

			w := complex(wr, wi)
			tt := steps * dt
			omega := math.Sqrt(v*v/4 + wr*wr + wi*wi)
			sn, cs := math.Sincos(omega * tt)
			phase := cmplx.Exp(complex(0, -v/2*tt))
			wantA := phase * complex(cs, -sn/omega*v/2)
			wantB := phase * complex(0, -sn/omega) * w

			amp := math.Sqrt(1 / (l.LengthX * l.LengthY))
			k := l.Index(l.HaloX+3, l.HaloY+5)
			gotA := complex(a.Real[k], a.Imag[k]) / complex(amp, 0)
			gotB := complex(b.Real[k], b.Imag[k]) / complex(amp, 0)

			// a one-sided split is off by about 1.5e-2 here
			assert.InDelta(t, 0, cmplx.Abs(gotA-wantA), 2e-3, "A %v want %v", gotA, wantA)
			assert.InDelta(t, 0, cmplx.Abs(gotB-wantB), 2e-3, "B %v want %v", gotB, wantB)
		})
	}
}
