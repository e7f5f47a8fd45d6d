package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Ranks)
	assert.Equal(t, 128, cfg.Dim)
	assert.Equal(t, "cpu", cfg.Kernel)
	assert.Equal(t, "text", cfg.SnapshotFormat)
	assert.InDelta(t, 1e-3, cfg.DeltaT, 0)
	assert.False(t, cfg.ImagTime)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TS_RANKS", "4")
	t.Setenv("TS_DIM", "256")
	t.Setenv("TS_PERIODIC_X", "true")
	t.Setenv("TS_DELTA_T", "0.005")
	t.Setenv("TS_KERNEL", "hybrid")
	t.Setenv("TS_IMAG_TIME", "1")
	t.Setenv("TS_ITERATIONS", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Ranks)
	assert.Equal(t, 256, cfg.Dim)
	assert.True(t, cfg.PeriodicX)
	assert.InDelta(t, 0.005, cfg.DeltaT, 0)
	assert.Equal(t, "hybrid", cfg.Kernel)
	assert.True(t, cfg.ImagTime)
	assert.Equal(t, 1000, cfg.Iterations, "unparsable values fall back to the default")
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.env")
	require.NoError(t, os.WriteFile(path, []byte("TS_STATE=exp\nTS_OMEGA=0.7\n"), 0o600))

	t.Setenv("TS_STATE", "")
	t.Setenv("TS_OMEGA", "")
	require.NoError(t, os.Unsetenv("TS_STATE"))
	require.NoError(t, os.Unsetenv("TS_OMEGA"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "exp", cfg.State)
	assert.InDelta(t, 0.7, cfg.Omega, 0)

	require.NoError(t, os.Unsetenv("TS_STATE"))
	require.NoError(t, os.Unsetenv("TS_OMEGA"))
}

func TestValidate(t *testing.T) {
	base := Config{
		Ranks: 1, Dim: 16, LengthX: 1, LengthY: 1, DeltaT: 0.1,
		Snapshots: 1, OutputDir: "out", SnapshotFormat: "text", State: "gauss",
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"ranks":  func(c *Config) { c.Ranks = 0 },
		"dim":    func(c *Config) { c.Dim = 0 },
		"length": func(c *Config) { c.LengthY = -1 },
		"dt":     func(c *Config) { c.DeltaT = 0 },
		"iters":  func(c *Config) { c.Iterations = -1 },
		"snaps":  func(c *Config) { c.Snapshots = 0 },
		"format": func(c *Config) { c.SnapshotFormat = "hdf5" },
		"state":  func(c *Config) { c.State = "vortex" },
		"output": func(c *Config) { c.OutputDir = "" },
	}

	for name, mutate := range cases {
		c := base
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
