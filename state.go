package trottersuzuki

import (
	"fmt"
	"io"
	"math"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// Field is one wavefunction component as real and imaginary tile planes.
type Field = stencil.Field

// Ownership records whether a State allocated its buffers or views the
// caller's.
type Ownership uint8

const (
	// Owned buffers were allocated by the State.
	Owned Ownership = iota
	// Borrowed buffers belong to the caller and must outlive the State.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}

	return "owned"
}

// State is the wavefunction on one tile: two planes of Lattice.TileSize()
// values, row-major with x fastest.
type State struct {
	Real, Imag []float64

	lattice   *Lattice
	ownership Ownership
}

type stateOptions struct {
	re, im []float64
}

// StateOption configures NewState.
type StateOption func(*stateOptions)

// WithBuffers makes the State a borrowed view over re and im.
func WithBuffers(re, im []float64) StateOption {
	return func(o *stateOptions) {
		o.re, o.im = re, im
	}
}

// NewState returns a zero wavefunction on l's tile.
func NewState(l *Lattice, opts ...StateOption) (*State, error) {
	var o stateOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := l.TileSize()

	if o.re != nil || o.im != nil {
		if len(o.re) != n || len(o.im) != n {
			return nil, fmt.Errorf("%w: buffers of %d/%d values for a %dx%d tile",
				ErrShapeMismatch, len(o.re), len(o.im), l.DimX, l.DimY)
		}

		return &State{Real: o.re, Imag: o.im, lattice: l, ownership: Borrowed}, nil
	}

	return &State{
		Real:      make([]float64, n),
		Imag:      make([]float64, n),
		lattice:   l,
		ownership: Owned,
	}, nil
}

// Lattice returns the lattice the state lives on.
func (s *State) Lattice() *Lattice {
	return s.lattice
}

// Ownership reports whether the state owns its buffers.
func (s *State) Ownership() Ownership {
	return s.ownership
}

// Field returns the state's planes.
func (s *State) Field() Field {
	return Field{Real: s.Real, Imag: s.Imag}
}

// Clone returns an owned deep copy.
func (s *State) Clone() *State {
	return &State{
		Real:      append([]float64(nil), s.Real...),
		Imag:      append([]float64(nil), s.Imag...),
		lattice:   s.lattice,
		ownership: Owned,
	}
}

// Init samples fn at the centre of every tile cell. Halo cells past a closed
// boundary are set to zero; periodic halo cells sample the wrapped cell.
func (s *State) Init(fn func(x, y float64) complex128) {
	l := s.lattice

	for y := range l.DimY {
		for x := range l.DimX {
			k := l.Index(x, y)
			gx, gy := l.StartX+x, l.StartY+y

			if !l.InDomain(gx, gy) {
				s.Real[k], s.Imag[k] = 0, 0
				continue
			}

			v := fn(l.Coordinate(gx, gy))
			s.Real[k], s.Imag[k] = real(v), imag(v)
		}
	}
}

// Read loads the tile from a global complex matrix in text form, after
// skipping offset leading rows of r.
func (s *State) Read(r io.Reader, offset int) error {
	l := s.lattice

	re, im, err := matrixio.ReadComplex(r, l.GlobalDimX, l.GlobalDimY, offset)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	scatterGlobal(l, re, s.Real)
	scatterGlobal(l, im, s.Imag)

	return nil
}

// scatterGlobal copies the cells of a global row-major array that fall on
// l's tile into dst, wrapping periodic halos and zeroing wall halos.
func scatterGlobal(l *Lattice, global, dst []float64) {
	for y := range l.DimY {
		for x := range l.DimX {
			gx, gy := l.StartX+x, l.StartY+y
			k := l.Index(x, y)

			if !l.InDomain(gx, gy) {
				dst[k] = 0
				continue
			}

			gx, gy = wrap(gx, l.GlobalDimX), wrap(gy, l.GlobalDimY)
			dst[k] = global[gy*l.GlobalDimX+gx]
		}
	}
}

// SquaredNorm returns the sum of |psi|^2 dx dy over the owned cells, reduced
// over all ranks when global is set.
func (s *State) SquaredNorm(global bool) (float64, error) {
	l := s.lattice
	local := stencil.SquaredNorm(l.geometry(), s.Field()) * l.DeltaX * l.DeltaY

	if !global {
		return local, nil
	}

	return l.Comm().AllreduceSum(local)
}

// ParticleDensity writes |psi|^2 for every tile cell into dst, allocating it
// when nil.
func (s *State) ParticleDensity(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(s.Real))
	}

	for i := range s.Real {
		dst[i] = s.Real[i]*s.Real[i] + s.Imag[i]*s.Imag[i]
	}

	return dst
}

// Phase writes arg(psi) for every tile cell into dst, allocating it when nil.
func (s *State) Phase(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(s.Real))
	}

	for i := range s.Real {
		dst[i] = math.Atan2(s.Imag[i], s.Real[i])
	}

	return dst
}

// Gather assembles the owned cells of every rank into global row-major
// planes on root. Other ranks get nil planes. Every rank must call it.
func (s *State) Gather(root int) ([]float64, []float64, error) {
	parts, err := s.lattice.GatherPlanes(root, s.Real, s.Imag)
	if err != nil {
		return nil, nil, err
	}

	if parts == nil {
		return nil, nil, nil
	}

	return parts[0], parts[1], nil
}

// GatherPlanes assembles the owned cells of tile-shaped planes into global
// row-major planes on root; other ranks get nil. Each rank sends its owned
// global bounds followed by the owned cells of every plane. Every rank must
// call it with the same number of planes.
func (l *Lattice) GatherPlanes(root int, planes ...[]float64) ([][]float64, error) {
	for _, p := range planes {
		if len(p) != l.TileSize() {
			return nil, fmt.Errorf("%w: plane of %d values for a %dx%d tile", ErrShapeMismatch, len(p), l.DimX, l.DimY)
		}
	}

	own := l.Owned()
	n := own.Area()

	msg := make([]float64, 4+len(planes)*n)
	msg[0], msg[1] = float64(l.InnerStartX), float64(l.InnerEndX)
	msg[2], msg[3] = float64(l.InnerStartY), float64(l.InnerEndY)

	for i, p := range planes {
		stencil.CopyRect(msg[4+i*n:], own.Width(), p, l.DimX, own)
	}

	parts, err := l.Comm().Gather(root, msg)
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}

	if parts == nil {
		return nil, nil
	}

	nx := l.GlobalDimX
	out := make([][]float64, len(planes))

	for i := range out {
		out[i] = make([]float64, nx*l.GlobalDimY)
	}

	for _, part := range parts {
		x0, x1 := int(part[0]), int(part[1])
		y0, y1 := int(part[2]), int(part[3])
		w, m := x1-x0, (x1-x0)*(y1-y0)

		for i := range out {
			stencil.PasteRect(out[i], nx, part[4+i*m:], w, Rect{X0: x0, Y0: y0, X1: x1, Y1: y1})
		}
	}

	return out, nil
}
