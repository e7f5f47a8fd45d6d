package trottersuzuki

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
)

func TestNewHamiltonian_Defaults(t *testing.T) {
	t.Parallel()

	l, err := NewLattice(nil, 16, 4, 4, WithRotation(0.3))
	require.NoError(t, err)

	h, err := NewHamiltonian(l)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, h.Mass, 0)
	assert.InDelta(t, 0.3, h.AngularVelocity, 0)
	assert.Len(t, h.ExternalPot, l.TileSize())
	assert.False(t, h.TimeDependent())

	h, err = NewHamiltonian(l, WithAngularVelocity(0))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, h.AngularVelocity, 0)
}

func TestNewHamiltonian_Errors(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 16, 4)

	_, err := NewHamiltonian(l, WithMass(0))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTwoComponentHamiltonian(l, WithMassB(-1))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewHamiltonian(l, WithAngularVelocity(1))
	require.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = NewHamiltonian(l, WithExternalPotential(make([]float64, 3)))
	require.ErrorIs(t, err, ErrShapeMismatch)

	h, err := NewHamiltonian(l)
	require.NoError(t, err)
	require.ErrorIs(t, h.SetPotential(make([]float64, 5)), ErrShapeMismatch)
}

func TestHamiltonian_InitializeAndUpdatePotential(t *testing.T) {
	t.Parallel()

	l := closedLattice(t, 8, 8)

	var steps []int

	h, err := NewHamiltonian(l, WithEvolvingPotential(func(x, y, dt float64, it int) float64 {
		if len(steps) == 0 || steps[len(steps)-1] != it {
			steps = append(steps, it)
		}

		return x + float64(it)*dt
	}))
	require.NoError(t, err)
	require.True(t, h.TimeDependent())

	h.InitializePotential(harmonic(2))

	k := l.Index(l.HaloX, l.HaloY)
	x, y := l.TileCoordinate(l.HaloX, l.HaloY)
	assert.InDelta(t, 2*(x*x+y*y), h.ExternalPot[k], 1e-12)
	assert.InDelta(t, 0.0, h.ExternalPot[0], 0, "wall halo")

	h.UpdatePotential(0.5, 3)
	assert.InDelta(t, x+1.5, h.ExternalPot[k], 1e-12)
	assert.Equal(t, []int{3}, steps)
}

func TestHamiltonian_ReadPotential(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 8, 1)
	pot := make([]float64, 64)
	for i := range pot {
		pot[i] = float64(i) * 0.5
	}

	var buf bytes.Buffer
	require.NoError(t, matrixio.WriteReal(&buf, pot, 8, 8))

	h, err := NewHamiltonian(l)
	require.NoError(t, err)
	require.NoError(t, h.ReadPotential(&buf))

	assert.InDelta(t, 13*0.5, h.ExternalPot[l.Index(l.HaloX+5, l.HaloY+1)], 0)
}

func TestTwoComponentHamiltonian_ComponentPotentials(t *testing.T) {
	t.Parallel()

	l := closedLattice(t, 8, 8)

	h, err := NewTwoComponentHamiltonian(l,
		WithMassB(2), WithCouplingAB(0.5), WithCouplingB(3), WithRabi(0.1, -0.2))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, h.MassB, 0)
	assert.InDelta(t, 0.5, h.CouplingAB, 0)
	assert.InDelta(t, 3.0, h.CouplingB, 0)
	assert.InDelta(t, 0.1, h.OmegaR, 0)
	assert.InDelta(t, -0.2, h.OmegaI, 0)

	require.NoError(t, h.InitializeComponentPotential(ComponentB, func(x, y float64) float64 { return 7 }))

	k := l.Index(l.HaloX, l.HaloY)
	assert.InDelta(t, 7.0, h.ExternalPotB[k], 0)
	assert.InDelta(t, 0.0, h.ExternalPot[k], 0)

	require.ErrorIs(t, h.InitializeComponentPotential(Component(5), harmonic(1)), ErrInvalidArgument)

	sp := h.species()
	require.Len(t, sp, 2)
	assert.InDelta(t, 2.0, sp[1].mass, 0)
}
