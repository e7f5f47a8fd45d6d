// Package cpu reports host processor features and derives the block shape the
// cpu and hybrid kernels use when the caller does not set one.
package cpu

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/cpu"
)

// Features describes the SIMD capabilities of the host.
type Features struct {
	HasSSE2   bool
	HasAVX    bool
	HasAVX2   bool
	HasAVX512 bool
	HasFMA    bool
	HasNEON   bool

	Architecture string
	CacheLine    int
	Cores        int
}

var (
	detected Features
	once     sync.Once
)

// DetectFeatures reports the available CPU features for the current process.
// The result is computed once and cached.
func DetectFeatures() Features {
	once.Do(func() {
		detected = Features{
			HasSSE2:      cpu.X86.HasSSE2,
			HasAVX:       cpu.X86.HasAVX,
			HasAVX2:      cpu.X86.HasAVX2,
			HasAVX512:    cpu.X86.HasAVX512F,
			HasFMA:       cpu.X86.HasFMA || cpu.ARM64.HasFPHP,
			HasNEON:      cpu.ARM64.HasASIMD,
			Architecture: runtime.GOARCH,
			CacheLine:    cacheLine(),
			Cores:        runtime.NumCPU(),
		}
	})

	return detected
}

func cacheLine() int {
	if runtime.GOARCH == "arm64" && runtime.GOOS == "darwin" {
		return 128
	}

	return 64
}

// VectorWidth returns the number of float64 lanes of the widest vector unit.
func (f Features) VectorWidth() int {
	switch {
	case f.HasAVX512:
		return 8
	case f.HasAVX2, f.HasAVX:
		return 4
	case f.HasSSE2, f.HasNEON:
		return 2
	default:
		return 1
	}
}

// BlockShape returns the default block width and height for a tile step.
// Width is a multiple of both the cache line (in float64s) and the vector
// width; height keeps one block's scratch window within a typical L2 share.
func (f Features) BlockShape() (width, height int) {
	lane := max(f.CacheLine/8, f.VectorWidth())
	width = 16 * lane
	height = width / 2

	if f.Cores > 1 && height > 16 {
		height /= 2
	}

	return width, height
}

// String renders the feature set on one line, for logs.
func (f Features) String() string {
	var have []string

	for _, e := range []struct {
		name string
		ok   bool
	}{
		{"sse2", f.HasSSE2}, {"avx", f.HasAVX}, {"avx2", f.HasAVX2},
		{"avx512", f.HasAVX512}, {"fma", f.HasFMA}, {"neon", f.HasNEON},
	} {
		if e.ok {
			have = append(have, e.name)
		}
	}

	if len(have) == 0 {
		have = append(have, "generic")
	}

	return fmt.Sprintf("%s/%d cores [%s]", f.Architecture, f.Cores, strings.Join(have, " "))
}
