package cpu

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFeatures(t *testing.T) {
	t.Parallel()

	f := DetectFeatures()
	assert.Equal(t, runtime.GOARCH, f.Architecture)
	assert.Equal(t, runtime.NumCPU(), f.Cores)
	assert.Positive(t, f.CacheLine)
	assert.Equal(t, f, DetectFeatures())
}

func TestBlockShape(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		f    Features
		w, h int
	}{
		{"generic single core", Features{CacheLine: 64, Cores: 1}, 128, 64},
		{"avx512 multicore", Features{HasAVX512: true, CacheLine: 64, Cores: 8}, 128, 32},
		{"apple line", Features{HasNEON: true, CacheLine: 128, Cores: 1}, 256, 128},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, h := tc.f.BlockShape()
			assert.Equal(t, tc.w, w)
			assert.Equal(t, tc.h, h)
		})
	}
}

func TestVectorWidthAndString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Features{}.VectorWidth())
	assert.Equal(t, 4, Features{HasAVX2: true}.VectorWidth())
	assert.Contains(t, Features{Architecture: "amd64", Cores: 2}.String(), "generic")
	assert.Contains(t, Features{Architecture: "amd64", HasAVX2: true}.String(), "avx2")
}
