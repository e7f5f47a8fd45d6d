package trottersuzuki

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// StepParams is the per-step operator set a kernel applies: bond tables,
// potential exponentials and interaction strengths per component.
type StepParams = stencil.Params

// Kernel advances the fields of one tile. A step is the sequence
//
//	RunKernel, StartHaloExchange, RunKernelOnHalo, FinishHaloExchange, WaitForCompletion
//
// and StartHaloExchange, FinishHaloExchange, WaitForCompletion alone refresh
// the halo without stepping. Any other order returns ErrKernelState; the
// remaining methods are only valid between steps.
type Kernel interface {
	// RunKernel launches the interior update. It returns before the update
	// completes.
	RunKernel() error
	// StartHaloExchange posts the boundary strips to the neighbours and the
	// receives for the halo.
	StartHaloExchange() error
	// RunKernelOnHalo waits for this step's halo data and updates the
	// boundary band.
	RunKernelOnHalo() error
	// FinishHaloExchange completes the sends, and the receives when the halo
	// step was skipped.
	FinishHaloExchange() error
	// WaitForCompletion joins the interior update, commits the new field,
	// renormalises it in imaginary time and synchronises all ranks.
	WaitForCompletion() error

	// GetSample copies the cells r of each component's field into dst, rows
	// stride values apart.
	GetSample(r Rect, stride int, dst ...Field) error
	// Normalization rescales the fields so the global norm is 1.
	Normalization() error
	// RabiCoupling mixes the two components for fraction*deltaT.
	RabiCoupling(fraction, deltaT float64) error
	// SquaredNorm returns the summed norm of all components.
	SquaredNorm(global bool) (float64, error)
	// UpdatePotential replaces the potential exponentials, per component.
	UpdatePotential(potReal, potImag [][]float64) error

	RunsInPlace() bool
	Name() string
	Close() error
}

// Loader is implemented by kernels that keep their own copy of the field;
// Load copies the bound State buffers in again.
type Loader interface {
	Load() error
}

// KernelConfig is what a kernel is bound to.
type KernelConfig struct {
	Lattice *Lattice
	// Fields are the State buffers, one per component.
	Fields []Field
	Params *StepParams
	// Rabi coupling, used by two-component kernels.
	OmegaR, OmegaI float64
	// Block shape for the tile step; zero picks a host-dependent default.
	BlockWidth, BlockHeight int
	// Device index for accelerator kernels.
	Device int
	Logger zerolog.Logger
}

// KernelFactory builds a kernel for a configuration.
type KernelFactory func(cfg KernelConfig) (Kernel, error)

var (
	kernelsMu sync.RWMutex
	kernels   = map[string]KernelFactory{}
)

// RegisterKernel makes a kernel available under name. Registering an
// existing name replaces it; a nil factory removes it.
func RegisterKernel(name string, f KernelFactory) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()

	if f == nil {
		delete(kernels, name)
		return
	}

	kernels[name] = f
}

// Kernels lists the registered kernel names in sorted order.
func Kernels() []string {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()

	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func lookupKernel(name string) (KernelFactory, error) {
	kernelsMu.RLock()
	f, ok := kernels[name]
	kernelsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownKernel, name, Kernels())
	}

	return f, nil
}

// NewKernel builds the kernel registered under name.
func NewKernel(name string, cfg KernelConfig) (Kernel, error) {
	f, err := lookupKernel(name)
	if err != nil {
		return nil, err
	}

	if cfg.Lattice == nil || cfg.Params == nil {
		return nil, fmt.Errorf("%w: kernel needs a lattice and step parameters", ErrInvalidArgument)
	}

	if len(cfg.Fields) != cfg.Params.Components || len(cfg.Fields) < 1 || len(cfg.Fields) > 2 {
		return nil, fmt.Errorf("%w: %d fields for %d components", ErrInvalidArgument, len(cfg.Fields), cfg.Params.Components)
	}

	n := cfg.Lattice.TileSize()
	for _, f := range cfg.Fields {
		if len(f.Real) != n || len(f.Imag) != n {
			return nil, fmt.Errorf("%w: field of %d/%d values for %d cells", ErrShapeMismatch, len(f.Real), len(f.Imag), n)
		}
	}

	if err := checkPotential(cfg.Lattice, cfg.Params.Components, cfg.Params.PotReal, cfg.Params.PotImag); err != nil {
		return nil, err
	}

	return f(cfg)
}

// contract tracks where a kernel is in the step sequence.
type contract struct {
	interior bool
	exchange bool
	halo     bool
}

func (c *contract) errorf(op string) error {
	return fmt.Errorf("%w: %s (interior=%t exchange=%t halo=%t)", ErrKernelState, op, c.interior, c.exchange, c.halo)
}

func (c *contract) idle() bool {
	return !c.interior && !c.exchange && !c.halo
}

func (c *contract) runKernel() error {
	if c.interior || c.halo {
		return c.errorf("RunKernel")
	}

	c.interior = true

	return nil
}

func (c *contract) startExchange() error {
	if c.exchange || c.halo {
		return c.errorf("StartHaloExchange")
	}

	c.exchange = true

	return nil
}

func (c *contract) runOnHalo() error {
	if !c.interior || !c.exchange || c.halo {
		return c.errorf("RunKernelOnHalo")
	}

	c.halo = true

	return nil
}

func (c *contract) finishExchange() error {
	if !c.exchange {
		return c.errorf("FinishHaloExchange")
	}

	c.exchange = false

	return nil
}

// wait reports whether a step is to be committed.
func (c *contract) wait() (bool, error) {
	if c.exchange || c.interior != c.halo {
		return false, c.errorf("WaitForCompletion")
	}

	stepped := c.interior
	c.interior, c.halo = false, false

	return stepped, nil
}

func (c *contract) between(op string) error {
	if !c.idle() {
		return c.errorf(op)
	}

	return nil
}

// checkSample validates a GetSample request against the tile.
func checkSample(l *Lattice, comps int, r Rect, stride int, dst []Field) error {
	tile := Rect{X1: l.DimX, Y1: l.DimY}

	switch {
	case r.Empty() || !tile.Contains(r):
		return fmt.Errorf("%w: sample %+v outside %dx%d tile", ErrInvalidArgument, r, l.DimX, l.DimY)
	case stride < r.Width():
		return fmt.Errorf("%w: stride %d below sample width %d", ErrInvalidArgument, stride, r.Width())
	case len(dst) < 1 || len(dst) > comps:
		return fmt.Errorf("%w: %d destinations for %d components", ErrInvalidArgument, len(dst), comps)
	}

	need := (r.Height()-1)*stride + r.Width()
	for _, f := range dst {
		if len(f.Real) < need || len(f.Imag) < need {
			return fmt.Errorf("%w: sample needs %d values", ErrShapeMismatch, need)
		}
	}

	return nil
}

func checkPotential(l *Lattice, comps int, potReal, potImag [][]float64) error {
	if len(potReal) != comps || len(potImag) != comps {
		return fmt.Errorf("%w: potential for %d/%d components, want %d", ErrShapeMismatch, len(potReal), len(potImag), comps)
	}

	for c := range comps {
		if len(potReal[c]) != l.TileSize() || len(potImag[c]) != l.TileSize() {
			return fmt.Errorf("%w: potential of component %d", ErrShapeMismatch, c)
		}
	}

	return nil
}

// normFactor returns the factor that brings a squared norm to 1.
func normFactor(norm2 float64) float64 {
	if norm2 <= 0 {
		return 1
	}

	return 1 / math.Sqrt(norm2)
}

func newFields(comps, n int) []Field {
	out := make([]Field, comps)
	for i := range out {
		out[i] = Field{Real: make([]float64, n), Imag: make([]float64, n)}
	}

	return out
}

func copyFields(dst, src []Field) {
	for i := range dst {
		copy(dst[i].Real, src[i].Real)
		copy(dst[i].Imag, src[i].Imag)
	}
}
