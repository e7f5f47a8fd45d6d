package trottersuzuki

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/cpu"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

func init() {
	RegisterKernel("cpu", newCPUKernel)
}

// blockShape resolves the configured block shape, falling back to the host
// default.
func blockShape(cfg KernelConfig) (int, int) {
	w, h := cpu.DetectFeatures().BlockShape()
	if cfg.BlockWidth > 0 {
		w = cfg.BlockWidth
	}

	if cfg.BlockHeight > 0 {
		h = cfg.BlockHeight
	}

	return w, h
}

// hostStepper runs tile steps on host goroutines.
type hostStepper struct {
	geo    *stencil.Geometry
	params *StepParams
	bw, bh int
	limit  int
}

// step advances every component over the rectangles out, from src into dst.
func (s *hostStepper) step(src, dst []Field, out []Rect) error {
	var g errgroup.Group
	g.SetLimit(s.limit)

	for c := range dst {
		for _, r := range out {
			for _, blk := range stencil.Blocks(r, s.bw, s.bh) {
				g.Go(func() error {
					sc := stencil.GetScratch()
					stencil.StepBlock(s.geo, s.params, c, src, dst[c], blk, sc)
					stencil.PutScratch(sc)

					return nil
				})
			}
		}
	}

	return g.Wait()
}

// cpuKernel steps the State buffers in place. The new field is built in a
// private buffer and its owned cells are copied back at commit.
type cpuKernel struct {
	contract

	l      *Lattice
	geo    *stencil.Geometry
	cur    []Field
	next   []Field
	ex     *exchanger
	host   hostStepper
	omegaR float64
	omegaI float64
	log    zerolog.Logger

	pending chan error
}

func newCPUKernel(cfg KernelConfig) (Kernel, error) {
	l := cfg.Lattice
	bw, bh := blockShape(cfg)

	k := &cpuKernel{
		l:    l,
		geo:  l.geometry(),
		cur:  cfg.Fields,
		next: newFields(len(cfg.Fields), l.TileSize()),
		ex:   newExchanger(l, len(cfg.Fields)),
		host: hostStepper{
			geo:    l.geometry(),
			params: cfg.Params.Clone(),
			bw:     bw,
			bh:     bh,
			limit:  runtime.GOMAXPROCS(0),
		},
		omegaR: cfg.OmegaR,
		omegaI: cfg.OmegaI,
		log:    cfg.Logger.With().Str("kernel", "cpu").Logger(),
	}

	k.log.Debug().
		Int("block_width", bw).
		Int("block_height", bh).
		Str("host", cpu.DetectFeatures().String()).
		Msg("kernel bound")

	return k, nil
}

func (k *cpuKernel) RunKernel() error {
	if err := k.runKernel(); err != nil {
		return err
	}

	done := make(chan error, 1)
	k.pending = done

	in := k.geo.Interior()
	go func() {
		if in.Empty() {
			done <- nil
			return
		}

		done <- k.host.step(k.cur, k.next, []Rect{in})
	}()

	return nil
}

func (k *cpuKernel) StartHaloExchange() error {
	if err := k.startExchange(); err != nil {
		return err
	}

	return k.ex.start(k.cur)
}

func (k *cpuKernel) RunKernelOnHalo() error {
	if err := k.runOnHalo(); err != nil {
		return err
	}

	if err := k.ex.deliver(k.cur); err != nil {
		return err
	}

	return k.host.step(k.cur, k.next, k.geo.Band())
}

func (k *cpuKernel) FinishHaloExchange() error {
	if err := k.finishExchange(); err != nil {
		return err
	}

	if err := k.ex.deliver(k.cur); err != nil {
		return err
	}

	return k.ex.finish()
}

func (k *cpuKernel) WaitForCompletion() error {
	stepped, err := k.wait()
	if err != nil {
		return err
	}

	if stepped {
		if err := <-k.pending; err != nil {
			return fmt.Errorf("interior step: %w", err)
		}

		for c := range k.cur {
			stencil.CopyFieldRect(k.geo, k.cur[c], k.next[c], k.geo.Owned)
		}

		if k.host.params.ImagTime {
			if err := k.Normalization(); err != nil {
				return err
			}
		}
	}

	return k.l.Comm().Barrier()
}

func (k *cpuKernel) GetSample(r Rect, stride int, dst ...Field) error {
	if err := k.between("GetSample"); err != nil {
		return err
	}

	if err := checkSample(k.l, len(k.cur), r, stride, dst); err != nil {
		return err
	}

	for i, f := range dst {
		stencil.CopyRect(f.Real, stride, k.cur[i].Real, k.l.DimX, r)
		stencil.CopyRect(f.Imag, stride, k.cur[i].Imag, k.l.DimX, r)
	}

	return nil
}

func (k *cpuKernel) Normalization() error {
	if err := k.between("Normalization"); err != nil {
		return err
	}

	norm2, err := k.SquaredNorm(true)
	if err != nil {
		return err
	}

	factor := normFactor(norm2)
	for _, f := range k.cur {
		stencil.Scale(f, factor)
	}

	return nil
}

func (k *cpuKernel) RabiCoupling(fraction, deltaT float64) error {
	if len(k.cur) != 2 {
		return fmt.Errorf("%w: Rabi coupling on a single-component kernel", ErrUnsupported)
	}

	if err := k.between("RabiCoupling"); err != nil {
		return err
	}

	stencil.Rabi(k.geo, k.cur[0], k.cur[1], k.geo.Tile(), k.omegaR, k.omegaI, fraction*deltaT, k.host.params.ImagTime)

	return nil
}

func (k *cpuKernel) SquaredNorm(global bool) (float64, error) {
	var sum float64
	for _, f := range k.cur {
		sum += stencil.SquaredNorm(k.geo, f)
	}

	sum *= k.l.DeltaX * k.l.DeltaY

	if !global {
		return sum, nil
	}

	return k.l.Comm().AllreduceSum(sum)
}

func (k *cpuKernel) UpdatePotential(potReal, potImag [][]float64) error {
	if err := k.between("UpdatePotential"); err != nil {
		return err
	}

	if err := checkPotential(k.l, len(k.cur), potReal, potImag); err != nil {
		return err
	}

	k.host.params.SetPotential(potReal, potImag)

	return nil
}

func (k *cpuKernel) RunsInPlace() bool { return true }

func (k *cpuKernel) Name() string { return "cpu" }

func (k *cpuKernel) Close() error {
	if k.pending != nil && k.interior {
		<-k.pending
	}

	return nil
}
