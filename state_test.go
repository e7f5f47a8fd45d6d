package trottersuzuki

import (
	"bytes"
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgnanonana/trotter-suzuki-mpi/cluster"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
)

func TestNewState_BorrowedBuffers(t *testing.T) {
	t.Parallel()

	l := closedLattice(t, 8, 1)
	re := make([]float64, l.TileSize())
	im := make([]float64, l.TileSize())

	s, err := NewState(l, WithBuffers(re, im))
	require.NoError(t, err)
	assert.Equal(t, Borrowed, s.Ownership())
	assert.Equal(t, "borrowed", s.Ownership().String())

	s.Init(func(x, y float64) complex128 { return complex(1, 2) })
	assert.InDelta(t, 1.0, re[l.Index(4, 4)], 0)
	assert.InDelta(t, 2.0, im[l.Index(4, 4)], 0)

	_, err = NewState(l, WithBuffers(re[:10], im))
	require.ErrorIs(t, err, ErrShapeMismatch)

	c := s.Clone()
	assert.Equal(t, Owned, c.Ownership())
	c.Real[0] = 42
	assert.NotEqual(t, 42.0, re[0])
}

func TestState_InitZeroesWallHalo(t *testing.T) {
	t.Parallel()

	l := closedLattice(t, 8, 1)
	s, err := NewState(l)
	require.NoError(t, err)

	s.Init(func(x, y float64) complex128 { return 1 })

	assert.InDelta(t, 0.0, s.Real[l.Index(0, 0)], 0)
	assert.InDelta(t, 0.0, s.Real[l.Index(l.HaloX-1, l.HaloY)], 0)
	assert.InDelta(t, 1.0, s.Real[l.Index(l.HaloX, l.HaloY)], 0)

	norm, err := s.SquaredNorm(true)
	require.NoError(t, err)
	assertClose(t, 1.0, norm, 1e-12, "unit field on unit square")
}

func TestState_PeriodicHaloMatchesWrappedCell(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 16, 4)
	s, err := NewGaussianState(l, GaussianProfile{MeanX: 1.5, Omega: 2})
	require.NoError(t, err)

	own := l.Owned()
	left := l.Index(own.X0-1, own.Y0+3)
	right := l.Index(own.X1-1, own.Y0+3)
	assert.InDelta(t, s.Real[right], s.Real[left], 0)
}

func TestProfiles_AnalyticValuesAndNorm(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 64, 8)

	plane, err := NewExponentialState(l, ExponentialProfile{NX: 1, NY: 2, Norm: 3, Phase: 0.25})
	require.NoError(t, err)

	x, y := l.TileCoordinate(10, 7)
	amp := math.Sqrt(3.0 / 64)
	want := complex(amp, 0) * cmplx.Exp(complex(0, 2*math.Pi*x/8+4*math.Pi*y/8+0.25))
	k := l.Index(10, 7)
	assert.InDelta(t, real(want), plane.Real[k], 1e-15)
	assert.InDelta(t, imag(want), plane.Imag[k], 1e-15)

	norm, err := plane.SquaredNorm(true)
	require.NoError(t, err)
	assertClose(t, 3, norm, 1e-12, "plane wave norm")

	sine, err := NewSinusoidState(l, SinusoidProfile{NX: 1, NY: 1})
	require.NoError(t, err)

	norm, err = sine.SquaredNorm(true)
	require.NoError(t, err)
	assertClose(t, 1, norm, 1e-12, "standing wave norm")

	wide := closedLattice(t, 64, 16)
	gauss, err := NewGaussianState(wide, GaussianProfile{Omega: 1})
	require.NoError(t, err)

	norm, err = gauss.SquaredNorm(false)
	require.NoError(t, err)
	assertClose(t, 1, norm, 1e-6, "gaussian norm")
}

func TestState_DensityAndPhase(t *testing.T) {
	t.Parallel()

	l := closedLattice(t, 8, 1)
	s, err := NewState(l)
	require.NoError(t, err)

	s.Init(func(x, y float64) complex128 { return complex(0, -2) })

	k := l.Index(5, 5)
	density := s.ParticleDensity(nil)
	phase := s.Phase(make([]float64, l.TileSize()))

	assert.InDelta(t, 4.0, density[k], 0)
	assert.InDelta(t, -math.Pi/2, phase[k], 1e-15)
	assert.InDelta(t, -2.0, s.Imag[k], 0, "density and phase must not mutate the state")
}

func TestState_ReadScattersGlobalMatrix(t *testing.T) {
	t.Parallel()

	l := periodicLattice(t, 8, 1)
	n := 64
	re := make([]float64, n)
	im := make([]float64, n)

	for i := range n {
		re[i] = float64(i)
		im[i] = -float64(i) / 2
	}

	var buf bytes.Buffer
	buf.WriteString("header line\n")
	require.NoError(t, matrixio.WriteComplex(&buf, re, im, 8, 8))

	s, err := NewState(l)
	require.NoError(t, err)
	require.NoError(t, s.Read(&buf, 1))

	assert.InDelta(t, 19.0, s.Real[l.Index(l.HaloX+3, l.HaloY+2)], 0)
	assert.InDelta(t, -9.5, s.Imag[l.Index(l.HaloX+3, l.HaloY+2)], 0)
	// periodic halo column left of x=0 holds x=7
	assert.InDelta(t, 23.0, s.Real[l.Index(l.HaloX-1, l.HaloY+2)], 0)

	require.Error(t, s.Read(bytes.NewBufferString("1 2 3\n"), 0))
}

func TestState_GatherAssemblesGlobalField(t *testing.T) {
	t.Parallel()

	w, err := cluster.NewWorld(4)
	require.NoError(t, err)

	fn := func(x, y float64) complex128 { return complex(x, 10*y) }

	ref := periodicLattice(t, 32, 4)
	refState, err := NewState(ref)
	require.NoError(t, err)
	refState.Init(fn)

	err = w.Run(context.Background(), func(_ context.Context, c *cluster.Comm) error {
		l, err := NewLattice(c, 32, 4, 4, WithPeriodic(true, true))
		if err != nil {
			return err
		}

		s, err := NewState(l)
		if err != nil {
			return err
		}

		s.Init(fn)

		re, im, err := s.Gather(0)
		if err != nil {
			return err
		}

		// collective: every rank takes part before root checks
		norm, err := s.SquaredNorm(true)
		if err != nil {
			return err
		}

		if c.Rank() != 0 {
			assert.Nil(t, re)
			assert.Nil(t, im)

			return nil
		}

		assert.Equal(t, ownedValues(ref, refState.Real), re)
		assert.Equal(t, ownedValues(ref, refState.Imag), im)

		want, err := refState.SquaredNorm(false)
		if err != nil {
			return err
		}

		assert.InDelta(t, want, norm, 1e-12)

		return nil
	})
	require.NoError(t, err)
}
