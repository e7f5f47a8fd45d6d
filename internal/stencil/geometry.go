// Package stencil holds the arithmetic shared by every compute backend: the
// tile geometry, the pairwise bond operators of the Trotter-Suzuki splitting,
// the block step, and the reductions and copies around it. Backends differ only
// in where the buffers live and how blocks are scheduled; they all call into
// this package so their results agree bit for bit.
package stencil

// Rect is a half-open rectangle [X0, X1) x [Y0, Y1) of tile cells.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Width returns the number of columns in r.
func (r Rect) Width() int {
	if r.X1 <= r.X0 {
		return 0
	}

	return r.X1 - r.X0
}

// Height returns the number of rows in r.
func (r Rect) Height() int {
	if r.Y1 <= r.Y0 {
		return 0
	}

	return r.Y1 - r.Y0
}

// Area returns the number of cells in r.
func (r Rect) Area() int {
	return r.Width() * r.Height()
}

// Empty reports whether r contains no cells.
func (r Rect) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}

// Expand grows r by nx columns and ny rows on each side.
func (r Rect) Expand(nx, ny int) Rect {
	return Rect{X0: r.X0 - nx, Y0: r.Y0 - ny, X1: r.X1 + nx, Y1: r.Y1 + ny}
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
	if out.Empty() {
		return Rect{}
	}

	return out
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

// Geometry describes one rank's tile. Tile cell (0, 0) sits at global index
// (OriginX, OriginY); global indices outside [0, Global) are halo cells that
// either mirror a periodic neighbour or form a wall.
type Geometry struct {
	Width, Height    int
	OriginX, OriginY int
	GlobalX, GlobalY int
	PeriodicX        bool
	PeriodicY        bool
	HaloX, HaloY     int
	Owned            Rect
}

// Len returns the number of cells in the tile.
func (g *Geometry) Len() int {
	return g.Width * g.Height
}

// Tile returns the rectangle covering the whole tile.
func (g *Geometry) Tile() Rect {
	return Rect{X1: g.Width, Y1: g.Height}
}

// Interior returns the owned cells at least one halo width away from the
// owned edge. They can be advanced without any halo data.
func (g *Geometry) Interior() Rect {
	in := Rect{
		X0: g.Owned.X0 + g.HaloX,
		Y0: g.Owned.Y0 + g.HaloY,
		X1: g.Owned.X1 - g.HaloX,
		Y1: g.Owned.Y1 - g.HaloY,
	}
	if in.Empty() {
		return Rect{}
	}

	return in
}

// Band returns the owned cells outside Interior as up to four disjoint
// rectangles: bottom and top strips spanning the owned width, then the left
// and right strips between them.
func (g *Geometry) Band() []Rect {
	in := g.Interior()
	if in.Empty() {
		return []Rect{g.Owned}
	}

	o := g.Owned
	parts := []Rect{
		{X0: o.X0, Y0: o.Y0, X1: o.X1, Y1: in.Y0},
		{X0: o.X0, Y0: in.Y1, X1: o.X1, Y1: o.Y1},
		{X0: o.X0, Y0: in.Y0, X1: in.X0, Y1: in.Y1},
		{X0: in.X1, Y0: in.Y0, X1: o.X1, Y1: in.Y1},
	}

	out := parts[:0]
	for _, p := range parts {
		if !p.Empty() {
			out = append(out, p)
		}
	}

	return out
}

// bondActiveX reports whether the bond between global columns gx and gx+1
// takes part in the evolution. Bonds reaching past a wall are frozen.
func (g *Geometry) bondActiveX(gx int) bool {
	return g.PeriodicX || (gx >= 0 && gx+1 < g.GlobalX)
}

func (g *Geometry) bondActiveY(gy int) bool {
	return g.PeriodicY || (gy >= 0 && gy+1 < g.GlobalY)
}

// BondActiveX is the exported form of the bond test, used by observables
// that must sum over the same bonds the step evolves.
func (g *Geometry) BondActiveX(gx int) bool { return g.bondActiveX(gx) }

// BondActiveY is BondActiveX along y.
func (g *Geometry) BondActiveY(gy int) bool { return g.bondActiveY(gy) }

// Blocks tiles r into rectangles no larger than bw x bh.
func Blocks(r Rect, bw, bh int) []Rect {
	if r.Empty() {
		return nil
	}

	if bw < 1 {
		bw = r.Width()
	}

	if bh < 1 {
		bh = r.Height()
	}

	var out []Rect

	for y := r.Y0; y < r.Y1; y += bh {
		for x := r.X0; x < r.X1; x += bw {
			out = append(out, Rect{X0: x, Y0: y, X1: min(x+bw, r.X1), Y1: min(y+bh, r.Y1)})
		}
	}

	return out
}

func parity(g int) int {
	return ((g % 2) + 2) % 2
}
