package stencil

// Direction points from a tile to one of its eight neighbours.
type Direction struct {
	DX, DY int
}

// Directions lists the eight neighbour directions in a fixed order; the index
// of a direction doubles as its message tag.
var Directions = [8]Direction{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Opposite returns the index of the direction pointing the other way.
func Opposite(i int) int {
	return len(Directions) - 1 - i
}

func span(lo, hi, halo, d int, inner bool) (int, int) {
	switch {
	case d < 0 && inner:
		return lo, lo + halo
	case d < 0:
		return lo - halo, lo
	case d > 0 && inner:
		return hi - halo, hi
	case d > 0:
		return hi, hi + halo
	default:
		return lo, hi
	}
}

// SendRect returns the owned boundary strip facing direction d.
func (g *Geometry) SendRect(d Direction) Rect {
	x0, x1 := span(g.Owned.X0, g.Owned.X1, g.HaloX, d.DX, true)
	y0, y1 := span(g.Owned.Y0, g.Owned.Y1, g.HaloY, d.DY, true)

	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// RecvRect returns the halo region on side d, filled by the neighbour there.
func (g *Geometry) RecvRect(d Direction) Rect {
	x0, x1 := span(g.Owned.X0, g.Owned.X1, g.HaloX, d.DX, false)
	y0, y1 := span(g.Owned.Y0, g.Owned.Y1, g.HaloY, d.DY, false)

	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Pack writes the cells r of every field into buf: for each field the real
// plane then the imaginary plane, each row-major over r.
func Pack(buf []float64, g *Geometry, fields []Field, r Rect) {
	n := r.Area()
	for i, f := range fields {
		CopyRect(buf[(2*i)*n:], r.Width(), f.Real, g.Width, r)
		CopyRect(buf[(2*i+1)*n:], r.Width(), f.Imag, g.Width, r)
	}
}

// Unpack is the inverse of Pack.
func Unpack(buf []float64, g *Geometry, fields []Field, r Rect) {
	n := r.Area()
	for i, f := range fields {
		PasteRect(f.Real, g.Width, buf[(2*i)*n:], r.Width(), r)
		PasteRect(f.Imag, g.Width, buf[(2*i+1)*n:], r.Width(), r)
	}
}
