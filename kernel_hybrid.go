package trottersuzuki

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

func init() {
	RegisterKernel("hybrid", newHybridKernel)
}

// hybridKernel splits each step: the device advances the interior while host
// goroutines advance the boundary band. A host mirror of the full tile is
// kept current; at commit the device interior is downloaded into it and the
// host band uploaded to the device.
type hybridKernel struct {
	contract

	l      *Lattice
	geo    *stencil.Geometry
	state  []Field
	cur    []Field
	next   []Field
	dev    *device
	host   hostStepper
	ex     *exchanger
	omegaR float64
	omegaI float64
	log    zerolog.Logger
}

func newHybridKernel(cfg KernelConfig) (Kernel, error) {
	l := cfg.Lattice
	bw, bh := blockShape(cfg)
	params := cfg.Params.Clone()

	dev, err := openDevice(cfg, params, bw, bh)
	if err != nil {
		return nil, err
	}

	k := &hybridKernel{
		l:     l,
		geo:   l.geometry(),
		state: cfg.Fields,
		cur:   newFields(len(cfg.Fields), l.TileSize()),
		next:  newFields(len(cfg.Fields), l.TileSize()),
		dev:   dev,
		host: hostStepper{
			geo:    l.geometry(),
			params: params,
			bw:     bw,
			bh:     bh,
			limit:  max(1, runtime.GOMAXPROCS(0)/2),
		},
		ex:     newExchanger(l, len(cfg.Fields)),
		omegaR: cfg.OmegaR,
		omegaI: cfg.OmegaI,
		log:    cfg.Logger.With().Str("kernel", "hybrid").Logger(),
	}

	if err := k.Load(); err != nil {
		_ = dev.Close()
		return nil, err
	}

	k.log.Debug().
		Str("device", dev.sess.Device().Name).
		Int("band_blocks", len(k.geo.Band())).
		Msg("kernel bound")

	return k, nil
}

// Load copies the State buffers into the host mirror and to the device.
func (k *hybridKernel) Load() error {
	if err := k.between("Load"); err != nil {
		return err
	}

	copyFields(k.cur, k.state)

	return k.dev.upload(k.cur)
}

func (k *hybridKernel) RunKernel() error {
	if err := k.runKernel(); err != nil {
		return err
	}

	in := k.geo.Interior()
	if in.Empty() {
		return nil
	}

	return k.dev.step(computeStream, []Rect{in})
}

func (k *hybridKernel) StartHaloExchange() error {
	if err := k.startExchange(); err != nil {
		return err
	}

	return k.ex.start(k.cur)
}

func (k *hybridKernel) RunKernelOnHalo() error {
	if err := k.runOnHalo(); err != nil {
		return err
	}

	if err := k.ex.deliver(k.cur); err != nil {
		return err
	}

	return k.host.step(k.cur, k.next, k.geo.Band())
}

func (k *hybridKernel) FinishHaloExchange() error {
	if err := k.finishExchange(); err != nil {
		return err
	}

	if err := k.ex.deliver(k.cur); err != nil {
		return err
	}

	return k.ex.finish()
}

func (k *hybridKernel) WaitForCompletion() error {
	stepped, err := k.wait()
	if err != nil {
		return err
	}

	if stepped {
		if err := k.commit(); err != nil {
			return err
		}

		if k.host.params.ImagTime {
			if err := k.Normalization(); err != nil {
				return err
			}
		}
	}

	return k.l.Comm().Barrier()
}

// commit merges the device interior and the host band into both copies of
// the next generation, then makes it current.
func (k *hybridKernel) commit() error {
	s := k.dev.stream(computeStream)
	in := k.geo.Interior()
	band := k.geo.Band()

	for c := range k.next {
		if !in.Empty() {
			if err := k.dev.next[c].DownloadRect(s, k.next[c], k.l.DimX, in); err != nil {
				return err
			}
		}

		for _, r := range band {
			if err := k.dev.next[c].UploadRect(s, k.next[c], k.l.DimX, r); err != nil {
				return err
			}
		}
	}

	if err := k.dev.sess.Synchronize(); err != nil {
		return err
	}

	k.cur, k.next = k.next, k.cur
	k.dev.swap()

	return nil
}

func (k *hybridKernel) GetSample(r Rect, stride int, dst ...Field) error {
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

func (k *hybridKernel) Normalization() error {
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

	if err := k.dev.scale(factor); err != nil {
		return err
	}

	return k.dev.stream(computeStream).Synchronize()
}

func (k *hybridKernel) RabiCoupling(fraction, deltaT float64) error {
	if len(k.cur) != 2 {
		return fmt.Errorf("%w: Rabi coupling on a single-component kernel", ErrUnsupported)
	}

	if err := k.between("RabiCoupling"); err != nil {
		return err
	}

	t := fraction * deltaT
	stencil.Rabi(k.geo, k.cur[0], k.cur[1], k.geo.Tile(), k.omegaR, k.omegaI, t, k.host.params.ImagTime)

	s := k.dev.stream(computeStream)
	if err := k.dev.plan.Rabi(s, k.dev.cur[0], k.dev.cur[1], k.geo.Tile(), k.omegaR, k.omegaI, t); err != nil {
		return err
	}

	return s.Synchronize()
}

func (k *hybridKernel) SquaredNorm(global bool) (float64, error) {
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

func (k *hybridKernel) UpdatePotential(potReal, potImag [][]float64) error {
	if err := k.between("UpdatePotential"); err != nil {
		return err
	}

	if err := checkPotential(k.l, len(k.cur), potReal, potImag); err != nil {
		return err
	}

	k.host.params.SetPotential(potReal, potImag)

	s := k.dev.stream(computeStream)
	if err := k.dev.plan.UpdatePotential(s, potReal, potImag); err != nil {
		return err
	}

	return s.Synchronize()
}

func (k *hybridKernel) RunsInPlace() bool { return false }

func (k *hybridKernel) Name() string { return "hybrid" }

func (k *hybridKernel) Close() error {
	return k.dev.Close()
}
