package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	trottersuzuki "github.com/orgnanonana/trotter-suzuki-mpi"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/matrixio"
)

// Format selects the on-disk frame encoding.
type Format string

const (
	// FormatText writes plain-text matrices, one row per line.
	FormatText Format = "text"
	// FormatMsgpack writes one msgpack Frame per file.
	FormatMsgpack Format = "msgpack"
)

// Root is the rank that assembles and writes frames.
const Root = 0

// Writer stamps frames into Dir. Every rank must call its methods; only Root
// touches the file system.
type Writer struct {
	Dir    string
	Format Format
}

// Stamp gathers the state and writes it. In text format the density, phase
// and complex field go to <tag>-<iteration>-{density,phase,state}.dat; in
// msgpack format the frame goes to <tag>-<iteration>.msgpack. Root gets the
// frame and the paths written, other ranks nil.
func (w *Writer) Stamp(l *trottersuzuki.Lattice, s *trottersuzuki.State, tag string, iteration int) (*Frame, []string, error) {
	re, im, err := s.Gather(Root)
	if err != nil {
		return nil, nil, err
	}

	if re == nil {
		return nil, nil, nil
	}

	f := newFrame(l, tag, iteration, re, im)
	base := fmt.Sprintf("%s-%d", tag, iteration)

	if w.Format == FormatMsgpack {
		path, err := w.writeMsgpack(base, f)
		if err != nil {
			return nil, nil, err
		}

		return f, []string{path}, nil
	}

	outputs := []struct {
		suffix string
		write  func(*bufio.Writer) error
	}{
		{"density", func(b *bufio.Writer) error { return matrixio.WriteReal(b, f.Density(), f.NX, f.NY) }},
		{"phase", func(b *bufio.Writer) error { return matrixio.WriteReal(b, f.Phase(), f.NX, f.NY) }},
		{"state", func(b *bufio.Writer) error { return matrixio.WriteComplex(b, f.Real, f.Imag, f.NX, f.NY) }},
	}

	paths := make([]string, 0, len(outputs))

	for _, out := range outputs {
		path, err := w.writeText(base+"-"+out.suffix+".dat", out.write)
		if err != nil {
			return nil, nil, err
		}

		paths = append(paths, path)
	}

	return f, paths, nil
}

// StampReal gathers a tile-shaped real array and writes it to
// <fileTag>-<iteration>.dat or .msgpack.
func (w *Writer) StampReal(l *trottersuzuki.Lattice, data []float64, iteration int, fileTag string) (*Frame, string, error) {
	parts, err := l.GatherPlanes(Root, data)
	if err != nil {
		return nil, "", err
	}

	if parts == nil {
		return nil, "", nil
	}

	f := newFrame(l, fileTag, iteration, parts[0], nil)
	base := fmt.Sprintf("%s-%d", fileTag, iteration)

	if w.Format == FormatMsgpack {
		path, err := w.writeMsgpack(base, f)
		return f, path, err
	}

	path, err := w.writeText(base+".dat", func(b *bufio.Writer) error {
		return matrixio.WriteReal(b, f.Real, f.NX, f.NY)
	})

	return f, path, err
}

func newFrame(l *trottersuzuki.Lattice, tag string, iteration int, re, im []float64) *Frame {
	return &Frame{
		Tag:       tag,
		Iteration: iteration,
		NX:        l.GlobalDimX,
		NY:        l.GlobalDimY,
		LengthX:   l.LengthX,
		LengthY:   l.LengthY,
		Real:      re,
		Imag:      im,
	}
}

func (w *Writer) create(name string) (*os.File, string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("snapshot dir: %w", err)
	}

	path := filepath.Join(w.Dir, name)

	file, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot file: %w", err)
	}

	return file, path, nil
}

func (w *Writer) writeText(name string, write func(*bufio.Writer) error) (string, error) {
	file, path, err := w.create(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	b := bufio.NewWriter(file)
	if err := write(b); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	if err := b.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, file.Close()
}

func (w *Writer) writeMsgpack(base string, f *Frame) (string, error) {
	file, path, err := w.create(base + ".msgpack")
	if err != nil {
		return "", err
	}
	defer file.Close()

	b := bufio.NewWriter(file)
	if err := WriteFrame(b, f); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	if err := b.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, file.Close()
}
