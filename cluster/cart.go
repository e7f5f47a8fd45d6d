package cluster

import "fmt"

// Cart is a two-dimensional Cartesian process grid. Ranks are laid out with
// the x coordinate varying fastest: rank = y*Dims[0] + x.
type Cart struct {
	Dims    [2]int
	Periods [2]bool
	Coords  [2]int
	Rank    int
}

// NewCart places rank on a dims[0] x dims[1] grid.
func NewCart(rank int, dims [2]int, periods [2]bool) (*Cart, error) {
	if dims[0] < 1 || dims[1] < 1 {
		return nil, fmt.Errorf("%w: dims %v", ErrInvalidSize, dims)
	}

	size := dims[0] * dims[1]
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: %d of %d", ErrRankOutOfRange, rank, size)
	}

	return &Cart{
		Dims:    dims,
		Periods: periods,
		Coords:  [2]int{rank % dims[0], rank / dims[0]},
		Rank:    rank,
	}, nil
}

// RankOf returns the rank at coords, or false when coords fall off a
// non-periodic edge of the grid.
func (c *Cart) RankOf(coords [2]int) (int, bool) {
	for axis := range 2 {
		n := c.Dims[axis]
		if coords[axis] < 0 || coords[axis] >= n {
			if !c.Periods[axis] {
				return 0, false
			}

			coords[axis] = ((coords[axis] % n) + n) % n
		}
	}

	return coords[1]*c.Dims[0] + coords[0], true
}

// Shift returns the rank displaced by (dx, dy) from this rank.
func (c *Cart) Shift(dx, dy int) (int, bool) {
	return c.RankOf([2]int{c.Coords[0] + dx, c.Coords[1] + dy})
}

// Factorizations lists every ordered pair (px, py) with px*py == n.
func Factorizations(n int) [][2]int {
	var out [][2]int

	for px := 1; px <= n; px++ {
		if n%px == 0 {
			out = append(out, [2]int{px, n / px})
		}
	}

	return out
}
