package trottersuzuki

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/orgnanonana/trotter-suzuki-mpi/gpu"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

func init() {
	RegisterKernel("gpu", newGPUKernel)
}

const (
	computeStream = 0
	haloStream    = 1
)

// device is the accelerator side shared by the gpu and hybrid kernels: a
// session with a compute and a halo stream, a step plan, and two generations
// of device fields.
type device struct {
	sess *gpu.Session
	plan gpu.StepPlan
	cur  []gpu.FieldBuffer
	next []gpu.FieldBuffer
}

func openDevice(cfg KernelConfig, params *StepParams, bw, bh int) (*device, error) {
	sess, err := gpu.Open(gpu.Options{DeviceIndex: cfg.Device, StreamCount: 2})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	d := &device{sess: sess}

	d.plan, err = sess.Context().NewStepPlan(gpu.StepDesc{
		Geometry:    *cfg.Lattice.geometry(),
		Params:      params,
		BlockWidth:  bw,
		BlockHeight: bh,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	n := cfg.Lattice.TileSize()
	for range cfg.Fields {
		cur, err := sess.NewFieldBuffer(n)
		if err != nil {
			_ = d.Close()
			return nil, err
		}

		d.cur = append(d.cur, cur)

		next, err := sess.NewFieldBuffer(n)
		if err != nil {
			_ = d.Close()
			return nil, err
		}

		d.next = append(d.next, next)
	}

	return d, nil
}

func (d *device) stream(i int) gpu.Stream {
	return d.sess.Stream(i)
}

// upload copies host fields into the current device generation and waits.
func (d *device) upload(src []Field) error {
	s := d.stream(computeStream)
	for c, f := range src {
		if err := d.cur[c].Upload(s, f); err != nil {
			return err
		}
	}

	return s.Synchronize()
}

// step enqueues the update of rects for every component on stream i.
func (d *device) step(i int, out []Rect) error {
	for c := range d.cur {
		if err := d.plan.Step(d.stream(i), c, d.cur, d.next[c], out); err != nil {
			return err
		}
	}

	return nil
}

func (d *device) swap() {
	d.cur, d.next = d.next, d.cur
}

func (d *device) squaredNorm() (float64, error) {
	var sum float64

	for _, f := range d.cur {
		n, err := d.plan.SquaredNorm(d.stream(computeStream), f)
		if err != nil {
			return 0, err
		}

		sum += n
	}

	return sum, nil
}

func (d *device) scale(factor float64) error {
	for _, f := range d.cur {
		if err := d.plan.Scale(d.stream(computeStream), f, factor); err != nil {
			return err
		}
	}

	return nil
}

func (d *device) Close() error {
	var errs []error

	for _, f := range append(d.cur, d.next...) {
		errs = append(errs, f.Close())
	}

	if d.plan != nil {
		errs = append(errs, d.plan.Close())
	}

	errs = append(errs, d.sess.Close())

	return errors.Join(errs...)
}

// gpuKernel keeps the field on the device. Halo strips travel through a host
// staging tile; the State buffers are only read at Load and written by the
// caller through GetSample.
type gpuKernel struct {
	contract

	l      *Lattice
	geo    *stencil.Geometry
	state  []Field
	stage  []Field
	dev    *device
	ex     *exchanger
	imag   bool
	omegaR float64
	omegaI float64
	log    zerolog.Logger
}

func newGPUKernel(cfg KernelConfig) (Kernel, error) {
	l := cfg.Lattice
	bw, bh := blockShape(cfg)

	dev, err := openDevice(cfg, cfg.Params, bw, bh)
	if err != nil {
		return nil, err
	}

	k := &gpuKernel{
		l:      l,
		geo:    l.geometry(),
		state:  cfg.Fields,
		stage:  newFields(len(cfg.Fields), l.TileSize()),
		dev:    dev,
		ex:     newExchanger(l, len(cfg.Fields)),
		imag:   cfg.Params.ImagTime,
		omegaR: cfg.OmegaR,
		omegaI: cfg.OmegaI,
		log:    cfg.Logger.With().Str("kernel", "gpu").Logger(),
	}

	if err := k.Load(); err != nil {
		_ = dev.Close()
		return nil, err
	}

	k.log.Debug().
		Str("device", dev.sess.Device().Name).
		Str("memory", humanize.IBytes(uint64(4*len(cfg.Fields)*l.TileSize()*8))).
		Msg("kernel bound")

	return k, nil
}

// Load copies the State buffers to the device.
func (k *gpuKernel) Load() error {
	if err := k.between("Load"); err != nil {
		return err
	}

	return k.dev.upload(k.state)
}

func (k *gpuKernel) RunKernel() error {
	if err := k.runKernel(); err != nil {
		return err
	}

	in := k.geo.Interior()
	if in.Empty() {
		return nil
	}

	return k.dev.step(computeStream, []Rect{in})
}

func (k *gpuKernel) StartHaloExchange() error {
	if err := k.startExchange(); err != nil {
		return err
	}

	s := k.dev.stream(haloStream)
	for c, f := range k.dev.cur {
		for _, r := range k.ex.sendRects() {
			if err := f.DownloadRect(s, k.stage[c], k.l.DimX, r); err != nil {
				return err
			}
		}
	}

	if err := s.Synchronize(); err != nil {
		return err
	}

	return k.ex.start(k.stage)
}

// receive delivers this exchange's halo into the staging tile and uploads it.
func (k *gpuKernel) receive() error {
	if k.ex.delivered {
		return nil
	}

	if err := k.ex.deliver(k.stage); err != nil {
		return err
	}

	s := k.dev.stream(haloStream)
	for c, f := range k.dev.cur {
		for _, r := range k.ex.recvRects() {
			if err := f.UploadRect(s, k.stage[c], k.l.DimX, r); err != nil {
				return err
			}
		}
	}

	return nil
}

func (k *gpuKernel) RunKernelOnHalo() error {
	if err := k.runOnHalo(); err != nil {
		return err
	}

	if err := k.receive(); err != nil {
		return err
	}

	return k.dev.step(haloStream, k.geo.Band())
}

func (k *gpuKernel) FinishHaloExchange() error {
	if err := k.finishExchange(); err != nil {
		return err
	}

	if err := k.receive(); err != nil {
		return err
	}

	return k.ex.finish()
}

func (k *gpuKernel) WaitForCompletion() error {
	stepped, err := k.wait()
	if err != nil {
		return err
	}

	if err := k.dev.sess.Synchronize(); err != nil {
		return err
	}

	if stepped {
		k.dev.swap()

		if k.imag {
			if err := k.Normalization(); err != nil {
				return err
			}
		}
	}

	return k.l.Comm().Barrier()
}

func (k *gpuKernel) GetSample(r Rect, stride int, dst ...Field) error {
	if err := k.between("GetSample"); err != nil {
		return err
	}

	if err := checkSample(k.l, len(k.dev.cur), r, stride, dst); err != nil {
		return err
	}

	s := k.dev.stream(computeStream)
	for i := range dst {
		if err := k.dev.cur[i].DownloadRect(s, k.stage[i], k.l.DimX, r); err != nil {
			return err
		}
	}

	if err := s.Synchronize(); err != nil {
		return err
	}

	for i, f := range dst {
		stencil.CopyRect(f.Real, stride, k.stage[i].Real, k.l.DimX, r)
		stencil.CopyRect(f.Imag, stride, k.stage[i].Imag, k.l.DimX, r)
	}

	return nil
}

func (k *gpuKernel) Normalization() error {
	if err := k.between("Normalization"); err != nil {
		return err
	}

	norm2, err := k.SquaredNorm(true)
	if err != nil {
		return err
	}

	if err := k.dev.scale(normFactor(norm2)); err != nil {
		return err
	}

	return k.dev.stream(computeStream).Synchronize()
}

func (k *gpuKernel) RabiCoupling(fraction, deltaT float64) error {
	if len(k.dev.cur) != 2 {
		return fmt.Errorf("%w: Rabi coupling on a single-component kernel", ErrUnsupported)
	}

	if err := k.between("RabiCoupling"); err != nil {
		return err
	}

	s := k.dev.stream(computeStream)
	if err := k.dev.plan.Rabi(s, k.dev.cur[0], k.dev.cur[1], k.geo.Tile(), k.omegaR, k.omegaI, fraction*deltaT); err != nil {
		return err
	}

	return s.Synchronize()
}

func (k *gpuKernel) SquaredNorm(global bool) (float64, error) {
	sum, err := k.dev.squaredNorm()
	if err != nil {
		return 0, err
	}

	sum *= k.l.DeltaX * k.l.DeltaY

	if !global {
		return sum, nil
	}

	return k.l.Comm().AllreduceSum(sum)
}

func (k *gpuKernel) UpdatePotential(potReal, potImag [][]float64) error {
	if err := k.between("UpdatePotential"); err != nil {
		return err
	}

	if err := checkPotential(k.l, len(k.dev.cur), potReal, potImag); err != nil {
		return err
	}

	s := k.dev.stream(computeStream)
	if err := k.dev.plan.UpdatePotential(s, potReal, potImag); err != nil {
		return err
	}

	return s.Synchronize()
}

func (k *gpuKernel) RunsInPlace() bool { return false }

func (k *gpuKernel) Name() string { return "gpu" }

func (k *gpuKernel) Close() error {
	return k.dev.Close()
}
