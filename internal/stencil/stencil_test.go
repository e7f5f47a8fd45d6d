package stencil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry(n, halo int, periodic bool) *Geometry {
	return &Geometry{
		Width: n + 2*halo, Height: n + 2*halo,
		OriginX: -halo, OriginY: -halo,
		GlobalX: n, GlobalY: n,
		PeriodicX: periodic, PeriodicY: periodic,
		HaloX: halo, HaloY: halo,
		Owned: Rect{X0: halo, Y0: halo, X1: n + halo, Y1: n + halo},
	}
}

func randomField(rnd *rand.Rand, g *Geometry) Field {
	f := Field{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())}
	for y := g.Owned.Y0; y < g.Owned.Y1; y++ {
		for x := g.Owned.X0; x < g.Owned.X1; x++ {
			f.Real[y*g.Width+x] = rnd.NormFloat64()
			f.Imag[y*g.Width+x] = rnd.NormFloat64()
		}
	}

	return f
}

func uniformParams(g *Geometry, comps int, theta, dt float64, imagTime bool) *Params {
	op := NewBondOp(theta, 0, imagTime)
	p := &Params{ImagTime: imagTime, DeltaT: dt, Components: comps}

	for range comps {
		xb := make([]BondOp, g.Height)
		yb := make([]BondOp, g.Width)
		pr := make([]float64, g.Len())
		pi := make([]float64, g.Len())

		for i := range xb {
			xb[i] = op
		}
		for i := range yb {
			yb[i] = op
		}
		for i := range pr {
			pr[i] = 1
		}

		p.XBonds = append(p.XBonds, xb)
		p.YBonds = append(p.YBonds, yb)
		p.PotReal = append(p.PotReal, pr)
		p.PotImag = append(p.PotImag, pi)
	}

	return p
}

func TestNewBondOp_ReducesToKineticRotation(t *testing.T) {
	t.Parallel()

	op := NewBondOp(0.3, 0, false)
	assert.InDelta(t, math.Cos(0.3), op.C, 1e-15)
	assert.InDelta(t, math.Sin(0.3), op.Xi, 1e-15)
	assert.InDelta(t, math.Sin(0.3), op.Yi, 1e-15)
	assert.Zero(t, op.Yr)

	op = NewBondOp(0.3, 0, true)
	assert.InDelta(t, math.Cosh(0.3), op.C, 1e-15)
	assert.InDelta(t, math.Sinh(0.3), op.Xr, 1e-15)
	assert.InDelta(t, math.Sinh(0.3), op.Yr, 1e-15)
}

func TestBondOp_RealTimeIsUnitary(t *testing.T) {
	t.Parallel()

	for _, rot := range []float64{0, 0.2, -1.3} {
		op := NewBondOp(0.7, rot, false)
		re := []float64{0.3, -1.1}
		im := []float64{0.8, 0.25}
		before := re[0]*re[0] + re[1]*re[1] + im[0]*im[0] + im[1]*im[1]

		op.apply(re, im, 0, 1)

		after := re[0]*re[0] + re[1]*re[1] + im[0]*im[0] + im[1]*im[1]
		assert.InDelta(t, before, after, 1e-14, "rot=%v", rot)
	}
}

func TestGeometry_BandAndInteriorPartitionOwned(t *testing.T) {
	t.Parallel()

	g := testGeometry(20, 4, true)
	in := g.Interior()
	require.False(t, in.Empty())

	seen := make(map[int]int)
	mark := func(r Rect) {
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				seen[y*g.Width+x]++
			}
		}
	}

	mark(in)
	for _, r := range g.Band() {
		mark(r)
	}

	assert.Len(t, seen, g.Owned.Area())
	for k, n := range seen {
		assert.Equal(t, 1, n, "cell %d covered %d times", k, n)
	}
}

func TestGeometry_SmallTileHasNoInterior(t *testing.T) {
	t.Parallel()

	g := testGeometry(6, 4, true)
	assert.True(t, g.Interior().Empty())
	assert.Equal(t, []Rect{g.Owned}, g.Band())
}

func TestStepBlock_BlockSizeDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(3))
	g := testGeometry(24, 4, false)
	src := []Field{randomField(rnd, g)}
	p := uniformParams(g, 1, 0.05, 0.01, false)
	p.Coupling[0] = 2

	whole := Field{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())}
	s := GetScratch()
	StepBlock(g, p, 0, src, whole, g.Owned, s)

	blocked := Field{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())}
	for _, b := range Blocks(g.Owned, 5, 7) {
		StepBlock(g, p, 0, src, blocked, b, s)
	}
	PutScratch(s)

	assert.Equal(t, whole.Real, blocked.Real)
	assert.Equal(t, whole.Imag, blocked.Imag)
}

func TestStepBlock_WallsConserveNorm(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(5))
	g := testGeometry(16, 4, false)
	src := []Field{randomField(rnd, g)}
	p := uniformParams(g, 1, 0.2, 0.01, false)

	dst := Field{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())}
	s := GetScratch()
	StepBlock(g, p, 0, src, dst, g.Owned, s)
	PutScratch(s)

	assert.InEpsilon(t, SquaredNorm(g, src[0]), SquaredNorm(g, dst), 1e-12)
}

func TestRabi_ConservesTotalNormInRealTime(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(9))
	g := testGeometry(8, 4, true)
	a, b := randomField(rnd, g), randomField(rnd, g)
	before := SquaredNorm(g, a) + SquaredNorm(g, b)

	Rabi(g, a, b, g.Owned, 0.7, -0.4, 0.3, false)

	assert.InEpsilon(t, before, SquaredNorm(g, a)+SquaredNorm(g, b), 1e-12)
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1))
	g := testGeometry(10, 4, true)
	src := []Field{randomField(rnd, g), randomField(rnd, g)}
	dst := []Field{
		{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())},
		{Real: make([]float64, g.Len()), Imag: make([]float64, g.Len())},
	}

	r := g.SendRect(Direction{DX: 1, DY: 0})
	buf := make([]float64, 4*r.Area())
	Pack(buf, g, src, r)
	Unpack(buf, g, dst, r)

	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			k := y*g.Width + x
			assert.Equal(t, src[1].Imag[k], dst[1].Imag[k])
			assert.Equal(t, src[0].Real[k], dst[0].Real[k])
		}
	}
}

func TestDirections_OppositeAndRects(t *testing.T) {
	t.Parallel()

	for i, d := range Directions {
		o := Directions[Opposite(i)]
		assert.Equal(t, Direction{-d.DX, -d.DY}, o)
	}

	g := testGeometry(12, 4, true)
	for _, d := range Directions {
		assert.Equal(t, g.SendRect(d).Area(), g.RecvRect(d).Area())
		assert.True(t, g.Owned.Contains(g.SendRect(d)))
		assert.True(t, g.Owned.Intersect(g.RecvRect(d)).Empty())
	}
}
