package trottersuzuki

import (
	"fmt"
	"math"

	"github.com/orgnanonana/trotter-suzuki-mpi/cluster"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// DefaultHalo is the halo width of one full step: each of the four bond
// sweeps along an axis moves information by one cell.
const DefaultHalo = 4

// Rect is a half-open rectangle of tile-local cells.
type Rect = stencil.Rect

// Lattice is the global grid and this rank's tile of it. All index fields are
// global cell indices; a tile covers [Start, End) per axis, of which
// [InnerStart, InnerEnd) is owned and the rest is halo.
//
// A Lattice is immutable after construction.
type Lattice struct {
	LengthX, LengthY       float64
	DeltaX, DeltaY         float64
	DimX, DimY             int
	GlobalDimX, GlobalDimY int
	Periods                [2]bool
	Omega                  float64
	HaloX, HaloY           int

	StartX, EndX, InnerStartX, InnerEndX int
	StartY, EndY, InnerStartY, InnerEndY int

	Coords, Dims [2]int
	Rank, Procs  int

	comm *cluster.Comm
	cart *cluster.Cart
	geo  stencil.Geometry
}

type latticeOptions struct {
	periods    [2]bool
	omega      float64
	halo       int
	globalDims [2]int
}

// LatticeOption configures NewLattice.
type LatticeOption func(*latticeOptions)

// WithPeriodic sets periodic boundary conditions per axis.
func WithPeriodic(x, y bool) LatticeOption {
	return func(o *latticeOptions) { o.periods = [2]bool{x, y} }
}

// WithRotation sets the angular velocity of the rotating frame.
func WithRotation(omega float64) LatticeOption {
	return func(o *latticeOptions) { o.omega = omega }
}

// WithHalo overrides the halo width. Widths below DefaultHalo break the
// equivalence of tiled and whole-domain steps.
func WithHalo(width int) LatticeOption {
	return func(o *latticeOptions) { o.halo = width }
}

// WithGlobalDims makes the grid nx by ny instead of dim by dim.
func WithGlobalDims(nx, ny int) LatticeOption {
	return func(o *latticeOptions) { o.globalDims = [2]int{nx, ny} }
}

// NewLattice decomposes a dim x dim grid of physical size lengthX x lengthY
// over the ranks of comm and returns the calling rank's tile.
func NewLattice(comm *cluster.Comm, dim int, lengthX, lengthY float64, opts ...LatticeOption) (*Lattice, error) {
	o := latticeOptions{halo: DefaultHalo, globalDims: [2]int{dim, dim}}
	for _, opt := range opts {
		opt(&o)
	}

	if comm == nil {
		comm = cluster.Self()
	}

	nx, ny := o.globalDims[0], o.globalDims[1]

	switch {
	case nx < 1 || ny < 1:
		return nil, fmt.Errorf("%w: global dims %dx%d", ErrInvalidGeometry, nx, ny)
	case !(lengthX > 0) || !(lengthY > 0):
		return nil, fmt.Errorf("%w: lengths %gx%g", ErrInvalidGeometry, lengthX, lengthY)
	case o.halo < 1:
		return nil, fmt.Errorf("%w: halo width %d", ErrInvalidGeometry, o.halo)
	case o.periods[0] && nx%2 != 0, o.periods[1] && ny%2 != 0:
		return nil, fmt.Errorf("%w: periodic axis needs an even dimension, got %dx%d", ErrInvalidGeometry, nx, ny)
	case o.omega != 0 && (o.periods[0] || o.periods[1]):
		return nil, fmt.Errorf("%w: rotation requires closed boundaries", ErrInvalidGeometry)
	}

	dims, err := ProcessGrid(comm.Size(), nx, ny, o.halo)
	if err != nil {
		return nil, err
	}

	cart, err := cluster.NewCart(comm.Rank(), dims, o.periods)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopology, err)
	}

	l := &Lattice{
		LengthX: lengthX, LengthY: lengthY,
		DeltaX: lengthX / float64(nx), DeltaY: lengthY / float64(ny),
		GlobalDimX: nx, GlobalDimY: ny,
		Periods: o.periods,
		Omega:   o.omega,
		HaloX:   o.halo, HaloY: o.halo,
		Coords: cart.Coords, Dims: dims,
		Rank: comm.Rank(), Procs: comm.Size(),
		comm: comm,
		cart: cart,
	}

	l.InnerStartX, l.InnerEndX = split(nx, dims[0], cart.Coords[0])
	l.InnerStartY, l.InnerEndY = split(ny, dims[1], cart.Coords[1])
	l.StartX, l.EndX = l.InnerStartX-l.HaloX, l.InnerEndX+l.HaloX
	l.StartY, l.EndY = l.InnerStartY-l.HaloY, l.InnerEndY+l.HaloY
	l.DimX, l.DimY = l.EndX-l.StartX, l.EndY-l.StartY

	l.geo = stencil.Geometry{
		Width: l.DimX, Height: l.DimY,
		OriginX: l.StartX, OriginY: l.StartY,
		GlobalX: nx, GlobalY: ny,
		PeriodicX: o.periods[0], PeriodicY: o.periods[1],
		HaloX: l.HaloX, HaloY: l.HaloY,
		Owned: Rect{
			X0: l.HaloX, Y0: l.HaloY,
			X1: l.DimX - l.HaloX, Y1: l.DimY - l.HaloY,
		},
	}

	return l, nil
}

// split returns the owned range of part p when n cells are cut into parts
// pieces; the first n%parts pieces get one extra cell.
func split(n, parts, p int) (int, int) {
	base, rem := n/parts, n%parts
	start := p*base + min(p, rem)
	size := base
	if p < rem {
		size++
	}

	return start, start + size
}

// ProcessGrid chooses the process grid (px, py) for procs ranks on an nx by
// ny lattice. Candidates are the factor pairs of procs in which every tile
// owns at least halo cells per axis; among them the one with the smallest
// largest-tile half perimeter wins, then the most square, then the one with
// more ranks along x.
func ProcessGrid(procs, nx, ny, halo int) ([2]int, error) {
	if procs < 1 {
		return [2]int{}, fmt.Errorf("%w: %d processes", ErrTopology, procs)
	}

	best := [2]int{}
	bestCost, bestSkew := math.MaxInt, math.MaxInt

	for _, f := range cluster.Factorizations(procs) {
		px, py := f[0], f[1]
		if nx/px < halo || ny/py < halo {
			continue
		}

		cost := ceilDiv(nx, px) + ceilDiv(ny, py)
		skew := px - py
		if skew < 0 {
			skew = -skew
		}

		better := cost < bestCost ||
			(cost == bestCost && skew < bestSkew) ||
			(cost == bestCost && skew == bestSkew && px > best[0])
		if better {
			best, bestCost, bestSkew = [2]int{px, py}, cost, skew
		}
	}

	if best[0] == 0 {
		return [2]int{}, fmt.Errorf("%w: %d processes on %dx%d with halo %d", ErrTopology, procs, nx, ny, halo)
	}

	return best, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Comm returns the communicator the lattice was built over.
func (l *Lattice) Comm() *cluster.Comm {
	return l.comm
}

// Neighbor returns the rank displaced by (dx, dy) on the process grid, or
// false past a closed boundary.
func (l *Lattice) Neighbor(dx, dy int) (int, bool) {
	return l.cart.Shift(dx, dy)
}

// TileSize returns the number of cells in the tile, halo included.
func (l *Lattice) TileSize() int {
	return l.DimX * l.DimY
}

// Index returns the offset of tile-local cell (x, y) in a tile array.
func (l *Lattice) Index(x, y int) int {
	return y*l.DimX + x
}

// Owned returns the owned cells in tile-local coordinates.
func (l *Lattice) Owned() Rect {
	return l.geo.Owned
}

// InDomain reports whether global index (gx, gy) refers to a lattice cell,
// either directly or through a periodic wrap.
func (l *Lattice) InDomain(gx, gy int) bool {
	okX := l.Periods[0] || (gx >= 0 && gx < l.GlobalDimX)
	okY := l.Periods[1] || (gy >= 0 && gy < l.GlobalDimY)

	return okX && okY
}

// Coordinate returns the physical centre of global cell (gx, gy). Periodic
// axes wrap the index first.
func (l *Lattice) Coordinate(gx, gy int) (float64, float64) {
	if l.Periods[0] {
		gx = wrap(gx, l.GlobalDimX)
	}

	if l.Periods[1] {
		gy = wrap(gy, l.GlobalDimY)
	}

	return -0.5*l.LengthX + (float64(gx)+0.5)*l.DeltaX,
		-0.5*l.LengthY + (float64(gy)+0.5)*l.DeltaY
}

// TileCoordinate is Coordinate for tile-local cell (x, y).
func (l *Lattice) TileCoordinate(x, y int) (float64, float64) {
	return l.Coordinate(l.StartX+x, l.StartY+y)
}

func wrap(g, n int) int {
	return ((g % n) + n) % n
}

func (l *Lattice) geometry() *stencil.Geometry {
	return &l.geo
}

func (l *Lattice) String() string {
	return fmt.Sprintf("rank %d/%d at %v of %v: x[%d,%d) y[%d,%d) of %dx%d",
		l.Rank, l.Procs, l.Coords, l.Dims,
		l.InnerStartX, l.InnerEndX, l.InnerStartY, l.InnerEndY,
		l.GlobalDimX, l.GlobalDimY)
}
