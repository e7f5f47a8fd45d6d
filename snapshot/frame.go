// Package snapshot records the evolution of a wavefunction: gathered global
// frames written as text matrices or msgpack files, and a SQLite store that
// indexes the frames of each run with their norm and energy.
package snapshot

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
)

// Frame is one gathered global field. Imag is nil for real-valued frames.
type Frame struct {
	Tag       string    `msgpack:"tag"`
	Iteration int       `msgpack:"iteration"`
	NX        int       `msgpack:"nx"`
	NY        int       `msgpack:"ny"`
	LengthX   float64   `msgpack:"length_x"`
	LengthY   float64   `msgpack:"length_y"`
	Real      []float64 `msgpack:"real"`
	Imag      []float64 `msgpack:"imag,omitempty"`
}

// Density returns |psi|^2 per cell.
func (f *Frame) Density() []float64 {
	out := make([]float64, len(f.Real))
	for i, re := range f.Real {
		out[i] = re * re
		if f.Imag != nil {
			out[i] += f.Imag[i] * f.Imag[i]
		}
	}

	return out
}

// Phase returns arg(psi) per cell.
func (f *Frame) Phase() []float64 {
	out := make([]float64, len(f.Real))
	for i, re := range f.Real {
		im := 0.0
		if f.Imag != nil {
			im = f.Imag[i]
		}

		out[i] = math.Atan2(im, re)
	}

	return out
}

func (f *Frame) validate() error {
	n := f.NX * f.NY
	if f.NX < 1 || f.NY < 1 || len(f.Real) != n || (f.Imag != nil && len(f.Imag) != n) {
		return fmt.Errorf("%w: frame %dx%d with %d/%d values", matrixio.ErrFormat, f.NX, f.NY, len(f.Real), len(f.Imag))
	}

	return nil
}

// WriteFrame encodes f as msgpack.
func WriteFrame(w io.Writer, f *Frame) error {
	return msgpack.NewEncoder(w).Encode(f)
}

// ReadFrame decodes a msgpack frame.
func ReadFrame(r io.Reader) (*Frame, error) {
	var f Frame
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// ReadFrameFile decodes the msgpack frame stored at path.
func ReadFrameFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadFrame(file)
}

// ReadComplexMatrix reads an nx by ny text matrix of complex values.
func ReadComplexMatrix(r io.Reader, nx, ny int) ([]float64, []float64, error) {
	return matrixio.ReadComplex(r, nx, ny, 0)
}

// ReadRealMatrix reads an nx by ny text matrix of real values.
func ReadRealMatrix(r io.Reader, nx, ny int) ([]float64, error) {
	return matrixio.ReadReal(r, nx, ny, 0)
}
