// Package config loads the tssolve run configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds a run configuration.
type Config struct {
	Ranks      int
	Dim        int
	LengthX    float64
	LengthY    float64
	PeriodicX  bool
	PeriodicY  bool
	Kernel     string
	DeltaT     float64
	Iterations int
	Snapshots  int
	ImagTime   bool
	Omega      float64
	Coupling   float64
	State      string

	OutputDir      string
	SnapshotFormat string
	StorePath      string

	LogLevel string
	DevMode  bool
}

// Load reads configuration from a .env file, if present, and the
// environment.
func Load(files ...string) (*Config, error) {
	// a missing .env is not an error
	_ = godotenv.Load(files...)

	cfg := &Config{
		Ranks:          getEnvAsInt("TS_RANKS", 1),
		Dim:            getEnvAsInt("TS_DIM", 128),
		LengthX:        getEnvAsFloat("TS_LENGTH_X", 20),
		LengthY:        getEnvAsFloat("TS_LENGTH_Y", 20),
		PeriodicX:      getEnvAsBool("TS_PERIODIC_X", false),
		PeriodicY:      getEnvAsBool("TS_PERIODIC_Y", false),
		Kernel:         getEnv("TS_KERNEL", "cpu"),
		DeltaT:         getEnvAsFloat("TS_DELTA_T", 1e-3),
		Iterations:     getEnvAsInt("TS_ITERATIONS", 1000),
		Snapshots:      getEnvAsInt("TS_SNAPSHOTS", 10),
		ImagTime:       getEnvAsBool("TS_IMAG_TIME", false),
		Omega:          getEnvAsFloat("TS_OMEGA", 0),
		Coupling:       getEnvAsFloat("TS_COUPLING", 0),
		State:          getEnv("TS_STATE", "gauss"),
		OutputDir:      getEnv("TS_OUTPUT_DIR", "./out"),
		SnapshotFormat: getEnv("TS_SNAPSHOT_FORMAT", "text"),
		StorePath:      getEnv("TS_STORE_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	switch {
	case c.Ranks < 1:
		return fmt.Errorf("TS_RANKS must be positive, got %d", c.Ranks)
	case c.Dim < 1:
		return fmt.Errorf("TS_DIM must be positive, got %d", c.Dim)
	case c.LengthX <= 0 || c.LengthY <= 0:
		return fmt.Errorf("TS_LENGTH_X and TS_LENGTH_Y must be positive")
	case c.DeltaT <= 0:
		return fmt.Errorf("TS_DELTA_T must be positive, got %g", c.DeltaT)
	case c.Iterations < 0:
		return fmt.Errorf("TS_ITERATIONS must not be negative, got %d", c.Iterations)
	case c.Snapshots < 1:
		return fmt.Errorf("TS_SNAPSHOTS must be positive, got %d", c.Snapshots)
	case c.OutputDir == "":
		return fmt.Errorf("TS_OUTPUT_DIR is required")
	}

	switch c.SnapshotFormat {
	case "text", "msgpack":
	default:
		return fmt.Errorf("TS_SNAPSHOT_FORMAT must be text or msgpack, got %q", c.SnapshotFormat)
	}

	switch c.State {
	case "gauss", "exp", "sinus":
	default:
		return fmt.Errorf("TS_STATE must be gauss, exp or sinus, got %q", c.State)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}

	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}

	return defaultValue
}
