package gpu

import (
	"sync"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// Geometry, Params, Rect and Field are the tile description and step
// parameters shared with the host kernels.
type (
	Geometry = stencil.Geometry
	Params   = stencil.Params
	Rect     = stencil.Rect
	Field    = stencil.Field
)

// DeviceInfo describes a GPU device.
type DeviceInfo struct {
	Name       string
	Vendor     string
	Driver     string
	MemoryMB   int
	ComputeCap string
}

// BackendInfo describes a backend implementation.
type BackendInfo struct {
	Name        string
	Version     string
	Description string
}

// Backend is implemented by device drivers (CUDA, OpenCL, the mock).
// It is responsible for device discovery and context creation.
type Backend interface {
	Info() BackendInfo
	Available() bool
	Devices() ([]DeviceInfo, error)
	NewContext(deviceIndex int) (Context, error)
}

// Context represents a backend-specific context tied to one device.
type Context interface {
	Device() DeviceInfo
	// NewBuffer allocates a device buffer of n float64 values.
	NewBuffer(n int) (Buffer, error)
	// NewStream creates an ordered execution queue.
	NewStream() (Stream, error)
	// NewStepPlan compiles the step for one tile and parameter set.
	NewStepPlan(desc StepDesc) (StepPlan, error)
	Close() error
}

// Buffer is a device buffer. Rectangle transfers treat host and device
// memory as tiles with the same row stride.
type Buffer interface {
	Len() int
	Upload(s Stream, src []float64) error
	Download(s Stream, dst []float64) error
	UploadRect(s Stream, src []float64, stride int, r Rect) error
	DownloadRect(s Stream, dst []float64, stride int, r Rect) error
	Close() error
}

// Stream represents an execution queue.
type Stream interface {
	Synchronize() error
	Close() error
}

// FieldBuffer holds one wavefunction component on the device.
type FieldBuffer struct {
	Real, Imag Buffer
}

// StepDesc describes the tile a StepPlan advances.
type StepDesc struct {
	Geometry    Geometry
	Params      *Params
	BlockWidth  int
	BlockHeight int
}

// StepPlan runs the per-tile operations on device buffers. Every method
// except SquaredNorm only enqueues work on s.
type StepPlan interface {
	// Step advances component c over the rectangles out, reading src (one
	// FieldBuffer per component) and writing dst.
	Step(s Stream, c int, src []FieldBuffer, dst FieldBuffer, out []Rect) error
	// Rabi mixes two components inside r.
	Rabi(s Stream, a, b FieldBuffer, r Rect, omegaR, omegaI, t float64) error
	// Scale multiplies the whole buffer by factor.
	Scale(s Stream, f FieldBuffer, factor float64) error
	// SquaredNorm waits for s and returns the sum of |psi|^2 over owned cells.
	SquaredNorm(s Stream, f FieldBuffer) (float64, error)
	// UpdatePotential replaces the potential exponentials of every component.
	UpdatePotential(s Stream, potReal, potImag [][]float64) error
	Close() error
}

var (
	backendMu sync.RWMutex
	backend   Backend
)

// RegisterBackend registers a GPU backend. Passing nil clears the backend.
func RegisterBackend(b Backend) {
	backendMu.Lock()
	backend = b
	backendMu.Unlock()
}

// CurrentBackendInfo reports the currently registered backend, if any.
func CurrentBackendInfo() (BackendInfo, bool) {
	backendMu.RLock()
	b := backend
	backendMu.RUnlock()

	if b == nil {
		return BackendInfo{}, false
	}

	return b.Info(), true
}

func getBackend() Backend {
	backendMu.RLock()
	b := backend
	backendMu.RUnlock()

	return b
}
