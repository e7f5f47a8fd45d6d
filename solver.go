package trottersuzuki

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// KineticOperator is the pair rotation of one half step along one axis:
// (cos, sin) of kappa*dt/2 in real time, (cosh, sinh) in imaginary time.
type KineticOperator struct {
	A, B float64
}

type solverOptions struct {
	logger zerolog.Logger
	blockW int
	blockH int
	device int
}

// SolverOption configures NewSolver and NewTwoComponentSolver.
type SolverOption func(*solverOptions)

// WithLogger sets the logger the solver and its kernel write to.
func WithLogger(log zerolog.Logger) SolverOption {
	return func(o *solverOptions) { o.logger = log }
}

// WithBlockSize sets the tile step block shape.
func WithBlockSize(width, height int) SolverOption {
	return func(o *solverOptions) { o.blockW, o.blockH = width, height }
}

// WithGPUDevice selects the accelerator device for the gpu and hybrid kernels.
func WithGPUDevice(index int) SolverOption {
	return func(o *solverOptions) { o.device = index }
}

// Solver evolves one or two States under a Hamiltonian with one kernel.
//
// A Solver is not safe for concurrent use.
type Solver struct {
	// CurrentEvolutionTime is the simulated time evolved so far.
	CurrentEvolutionTime float64

	lattice *Lattice
	states  []*State
	ham     *Hamiltonian
	ham2    *TwoComponentHamiltonian
	deltaT  float64
	name    string
	opts    solverOptions

	kernel     Kernel
	params     *StepParams
	imagTime   bool
	firstRun   bool
	iterations int
	kinetic    [][2]KineticOperator
}

// NewSolver returns a solver for one component.
func NewSolver(l *Lattice, s *State, h *Hamiltonian, deltaT float64, kernelType string, opts ...SolverOption) (*Solver, error) {
	if s == nil || h == nil {
		return nil, fmt.Errorf("%w: nil state or Hamiltonian", ErrInvalidArgument)
	}

	return newSolver(l, []*State{s}, h, nil, deltaT, kernelType, opts)
}

// NewTwoComponentSolver returns a solver for two components.
func NewTwoComponentSolver(l *Lattice, a, b *State, h *TwoComponentHamiltonian, deltaT float64, kernelType string, opts ...SolverOption) (*Solver, error) {
	if a == nil || b == nil || h == nil {
		return nil, fmt.Errorf("%w: nil state or Hamiltonian", ErrInvalidArgument)
	}

	return newSolver(l, []*State{a, b}, &h.Hamiltonian, h, deltaT, kernelType, opts)
}

func newSolver(l *Lattice, states []*State, h *Hamiltonian, h2 *TwoComponentHamiltonian,
	deltaT float64, kernelType string, opts []SolverOption,
) (*Solver, error) {
	if _, err := lookupKernel(kernelType); err != nil {
		return nil, err
	}

	if !(deltaT > 0) {
		return nil, fmt.Errorf("%w: time step %g", ErrInvalidArgument, deltaT)
	}

	for _, s := range states {
		if s.Lattice() != l {
			return nil, fmt.Errorf("%w: state on a different lattice", ErrShapeMismatch)
		}
	}

	if h.Lattice != l {
		return nil, fmt.Errorf("%w: Hamiltonian on a different lattice", ErrShapeMismatch)
	}

	o := solverOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Solver{
		lattice:  l,
		states:   states,
		ham:      h,
		ham2:     h2,
		deltaT:   deltaT,
		name:     kernelType,
		opts:     o,
		firstRun: true,
	}, nil
}

func (s *Solver) species() []species {
	if s.ham2 != nil {
		return s.ham2.species()
	}

	return s.ham.species()
}

func (s *Solver) timeDependent() bool {
	if s.ham2 != nil {
		return s.ham2.TimeDependent()
	}

	return s.ham.TimeDependent()
}

func (s *Solver) updateHamiltonian(iteration int) {
	if s.ham2 != nil {
		s.ham2.UpdatePotential(s.deltaT, iteration)
		return
	}

	s.ham.UpdatePotential(s.deltaT, iteration)
}

// buildParams derives the bond tables and potential exponentials.
func (s *Solver) buildParams(imagTime bool) *StepParams {
	l := s.lattice
	sp := s.species()
	t := s.deltaT / 2
	omega := s.ham.AngularVelocity

	p := &StepParams{
		ImagTime:   imagTime,
		DeltaT:     s.deltaT,
		Components: len(sp),
	}

	s.kinetic = make([][2]KineticOperator, len(sp))

	for c, sc := range sp {
		kx := 1 / (2 * sc.mass * l.DeltaX * l.DeltaX)
		ky := 1 / (2 * sc.mass * l.DeltaY * l.DeltaY)

		s.kinetic[c] = [2]KineticOperator{kineticOperator(kx*t, imagTime), kineticOperator(ky*t, imagTime)}

		xb := make([]stencil.BondOp, l.DimY)
		for y := range xb {
			_, cy := l.TileCoordinate(0, y)
			rot := omega * (cy - s.ham.RotCoordY) / (2 * l.DeltaX)
			xb[y] = stencil.NewBondOp(kx*t, rot*t, imagTime)
		}

		yb := make([]stencil.BondOp, l.DimX)
		for x := range yb {
			cx, _ := l.TileCoordinate(x, 0)
			rot := -omega * (cx - s.ham.RotCoordX) / (2 * l.DeltaY)
			yb[x] = stencil.NewBondOp(ky*t, rot*t, imagTime)
		}

		p.XBonds = append(p.XBonds, xb)
		p.YBonds = append(p.YBonds, yb)
		p.Coupling[c] = sc.coupling
	}

	if s.ham2 != nil {
		p.CouplingAB = s.ham2.CouplingAB
	}

	p.PotReal, p.PotImag = s.potentialExponentials(imagTime)

	return p
}

func kineticOperator(theta float64, imagTime bool) KineticOperator {
	if imagTime {
		return KineticOperator{A: math.Cosh(theta), B: math.Sinh(theta)}
	}

	return KineticOperator{A: math.Cos(theta), B: math.Sin(theta)}
}

// potentialExponentials returns exp(-i dt V') or exp(-dt V') per component,
// where V' adds the diagonal of the bond Laplacian to the external potential.
func (s *Solver) potentialExponentials(imagTime bool) ([][]float64, [][]float64) {
	l := s.lattice
	g := l.geometry()
	sp := s.species()
	re := make([][]float64, len(sp))
	im := make([][]float64, len(sp))

	for c, sc := range sp {
		kx := 1 / (2 * sc.mass * l.DeltaX * l.DeltaX)
		ky := 1 / (2 * sc.mass * l.DeltaY * l.DeltaY)

		re[c] = make([]float64, len(sc.pot))
		im[c] = make([]float64, len(sc.pot))

		for i, v := range sc.pot {
			v += onsite(g, l.StartX+i%l.DimX, l.StartY+i/l.DimX, kx, ky)

			if imagTime {
				re[c][i] = math.Exp(-s.deltaT * v)
				continue
			}

			sn, cs := math.Sincos(s.deltaT * v)
			re[c][i], im[c][i] = cs, -sn
		}
	}

	return re, im
}

// onsite returns kappa for every active bond touching global cell (gx, gy).
// With it the step evolves the same Laplacian KineticEnergy measures.
func onsite(g *stencil.Geometry, gx, gy int, kx, ky float64) float64 {
	var d float64

	for _, active := range [2]bool{g.BondActiveX(gx - 1), g.BondActiveX(gx)} {
		if active {
			d += kx
		}
	}

	for _, active := range [2]bool{g.BondActiveY(gy - 1), g.BondActiveY(gy)} {
		if active {
			d += ky
		}
	}

	return d
}

func (s *Solver) fields() []Field {
	out := make([]Field, len(s.states))
	for i, st := range s.states {
		out[i] = st.Field()
	}

	return out
}

// bind builds the kernel on the first Evolve and whenever the time mode
// changes; later calls reload the State into kernels that keep a copy.
func (s *Solver) bind(imagTime bool) error {
	if !s.firstRun && s.imagTime == imagTime {
		s.params.PotReal, s.params.PotImag = s.potentialExponentials(imagTime)
		if err := s.kernel.UpdatePotential(s.params.PotReal, s.params.PotImag); err != nil {
			return err
		}

		if ld, ok := s.kernel.(Loader); ok {
			return ld.Load()
		}

		return nil
	}

	if s.kernel != nil {
		if err := s.kernel.Close(); err != nil {
			return err
		}

		s.kernel = nil
	}

	s.params = s.buildParams(imagTime)

	var omegaR, omegaI float64
	if s.ham2 != nil {
		omegaR, omegaI = s.ham2.OmegaR, s.ham2.OmegaI
	}

	k, err := NewKernel(s.name, KernelConfig{
		Lattice:     s.lattice,
		Fields:      s.fields(),
		Params:      s.params,
		OmegaR:      omegaR,
		OmegaI:      omegaI,
		BlockWidth:  s.opts.blockW,
		BlockHeight: s.opts.blockH,
		Device:      s.opts.device,
		Logger:      s.opts.logger,
	})
	if err != nil {
		return err
	}

	s.kernel = k
	s.imagTime = imagTime
	s.firstRun = false

	s.opts.logger.Debug().
		Str("kernel", k.Name()).
		Bool("imag_time", imagTime).
		Float64("delta_t", s.deltaT).
		Int("components", len(s.states)).
		Msg("evolution operators built")

	return nil
}

// Evolve advances the states by iterations steps, in imaginary time when
// imagTime is set. The states hold the result, halos included, when it
// returns.
func (s *Solver) Evolve(iterations int, imagTime bool) error {
	if iterations < 0 {
		return fmt.Errorf("%w: %d iterations", ErrInvalidArgument, iterations)
	}

	if err := s.bind(imagTime); err != nil {
		return err
	}

	k := s.kernel
	rabi := s.ham2 != nil && (s.ham2.OmegaR != 0 || s.ham2.OmegaI != 0)

	for i := range iterations {
		if s.timeDependent() {
			s.updateHamiltonian(s.iterations)
			s.params.PotReal, s.params.PotImag = s.potentialExponentials(imagTime)

			if err := k.UpdatePotential(s.params.PotReal, s.params.PotImag); err != nil {
				return err
			}
		}

		// Rabi mixing brackets the steps symmetrically: half turns at both
		// ends of the call, full turns between steps.
		if rabi {
			if err := k.RabiCoupling(rabiFraction(i), s.deltaT); err != nil {
				return err
			}
		}

		if err := step(k); err != nil {
			return fmt.Errorf("iteration %d: %w", s.iterations, err)
		}

		s.iterations++
		s.CurrentEvolutionTime += s.deltaT
	}

	if rabi && iterations > 0 {
		if err := k.RabiCoupling(0.5, s.deltaT); err != nil {
			return err
		}

		if imagTime {
			if err := k.Normalization(); err != nil {
				return err
			}
		}
	}

	if err := refreshHalo(k); err != nil {
		return err
	}

	if k.RunsInPlace() {
		return nil
	}

	tile := Rect{X1: s.lattice.DimX, Y1: s.lattice.DimY}

	return k.GetSample(tile, s.lattice.DimX, s.fields()...)
}

func rabiFraction(i int) float64 {
	if i == 0 {
		return 0.5
	}

	return 1
}

// step runs the five phases of one iteration.
func step(k Kernel) error {
	for _, phase := range []func() error{
		k.RunKernel,
		k.StartHaloExchange,
		k.RunKernelOnHalo,
		k.FinishHaloExchange,
		k.WaitForCompletion,
	} {
		if err := phase(); err != nil {
			return err
		}
	}

	return nil
}

func refreshHalo(k Kernel) error {
	if err := k.StartHaloExchange(); err != nil {
		return err
	}

	if err := k.FinishHaloExchange(); err != nil {
		return err
	}

	return k.WaitForCompletion()
}

// Iterations returns the number of steps evolved so far.
func (s *Solver) Iterations() int {
	return s.iterations
}

// KernelName returns the backend the solver was built for.
func (s *Solver) KernelName() string {
	return s.name
}

// Kernel returns the bound kernel, or nil before the first Evolve.
func (s *Solver) Kernel() Kernel {
	return s.kernel
}

// DeltaT returns the time step.
func (s *Solver) DeltaT() float64 {
	return s.deltaT
}

// KineticOperators returns the half-step pair rotations per component and
// axis (x, y) of the current time mode. It is nil before the first Evolve.
func (s *Solver) KineticOperators() [][2]KineticOperator {
	return s.kinetic
}

// SquaredNorm returns the global squared norm of all components.
func (s *Solver) SquaredNorm() (float64, error) {
	var sum float64

	for _, st := range s.states {
		n, err := st.SquaredNorm(true)
		if err != nil {
			return 0, err
		}

		sum += n
	}

	return sum, nil
}

// TotalEnergy returns the global energy of the current states under the
// solver's Hamiltonian.
func (s *Solver) TotalEnergy() (float64, error) {
	if s.ham2 != nil {
		return TotalEnergyTwoComponent(s.lattice, s.states[0], s.states[1], s.ham2, 0, true)
	}

	return TotalEnergy(s.lattice, s.states[0], s.ham, 0, true)
}

// Close releases the kernel.
func (s *Solver) Close() error {
	if s.kernel == nil {
		return nil
	}

	err := s.kernel.Close()
	s.kernel = nil
	s.firstRun = true

	return err
}
