// Package matrixio reads and writes the plain-text matrix format used for
// snapshots, initial states and potentials: one matrix row per line (y
// fixed, x increasing), entries separated by blanks. Complex entries are
// written as (re,im); a bare number is read as a real complex value.
package matrixio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrFormat is returned for malformed or truncated matrices.
var ErrFormat = errors.New("matrixio: malformed matrix")

const maxLine = 64 << 20

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	return sc
}

// scanRows calls fn for the fields of rows offset .. offset+ny-1, skipping
// blank lines.
func scanRows(r io.Reader, ny, offset int, fn func(y int, fields []string) error) error {
	sc := newScanner(r)
	row := 0

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		if row >= offset {
			if err := fn(row-offset, fields); err != nil {
				return err
			}
		}

		row++
		if row == offset+ny {
			return nil
		}
	}

	if err := sc.Err(); err != nil {
		return err
	}

	return fmt.Errorf("%w: got %d rows, want %d after offset %d", ErrFormat, max(row-offset, 0), ny, offset)
}

// ReadReal reads an nx by ny real matrix after skipping offset rows.
func ReadReal(r io.Reader, nx, ny, offset int) ([]float64, error) {
	out := make([]float64, nx*ny)

	err := scanRows(r, ny, offset, func(y int, fields []string) error {
		if len(fields) != nx {
			return fmt.Errorf("%w: row %d has %d entries, want %d", ErrFormat, y, len(fields), nx)
		}

		for x, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("%w: row %d: %w", ErrFormat, y, err)
			}

			out[y*nx+x] = v
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ReadComplex reads an nx by ny complex matrix after skipping offset rows
// and returns its real and imaginary planes.
func ReadComplex(r io.Reader, nx, ny, offset int) ([]float64, []float64, error) {
	re := make([]float64, nx*ny)
	im := make([]float64, nx*ny)

	err := scanRows(r, ny, offset, func(y int, fields []string) error {
		if len(fields) != nx {
			return fmt.Errorf("%w: row %d has %d entries, want %d", ErrFormat, y, len(fields), nx)
		}

		for x, f := range fields {
			c, err := parseComplex(f)
			if err != nil {
				return fmt.Errorf("%w: row %d: %w", ErrFormat, y, err)
			}

			re[y*nx+x] = real(c)
			im[y*nx+x] = imag(c)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return re, im, nil
}

// parseComplex accepts (re,im) pairs and anything strconv.ParseComplex does.
func parseComplex(s string) (complex128, error) {
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		if re, im, ok := strings.Cut(s[1:len(s)-1], ","); ok {
			r, err := strconv.ParseFloat(re, 64)
			if err != nil {
				return 0, err
			}

			i, err := strconv.ParseFloat(im, 64)
			if err != nil {
				return 0, err
			}

			return complex(r, i), nil
		}
	}

	return strconv.ParseComplex(s, 128)
}

// WriteReal writes an nx by ny real matrix.
func WriteReal(w io.Writer, data []float64, nx, ny int) error {
	if len(data) != nx*ny {
		return fmt.Errorf("%w: %d values for %dx%d", ErrFormat, len(data), nx, ny)
	}

	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)

	for y := range ny {
		for x := range nx {
			if x > 0 {
				_ = bw.WriteByte(' ')
			}

			buf = strconv.AppendFloat(buf[:0], data[y*nx+x], 'g', -1, 64)
			_, _ = bw.Write(buf)
		}

		_ = bw.WriteByte('\n')
	}

	return bw.Flush()
}

// WriteComplex writes an nx by ny complex matrix given as two planes.
func WriteComplex(w io.Writer, re, im []float64, nx, ny int) error {
	if len(re) != nx*ny || len(im) != nx*ny {
		return fmt.Errorf("%w: %d/%d values for %dx%d", ErrFormat, len(re), len(im), nx, ny)
	}

	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)

	for y := range ny {
		for x := range nx {
			if x > 0 {
				_ = bw.WriteByte(' ')
			}

			k := y*nx + x
			buf = append(buf[:0], '(')
			buf = strconv.AppendFloat(buf, re[k], 'g', -1, 64)
			buf = append(buf, ',')
			buf = strconv.AppendFloat(buf, im[k], 'g', -1, 64)
			buf = append(buf, ')')
			_, _ = bw.Write(buf)
		}

		_ = bw.WriteByte('\n')
	}

	return bw.Flush()
}
