package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// MockBackend is a CPU-backed GPU backend for development and tests.
// It satisfies the GPU backend interfaces but executes on the CPU.
type MockBackend struct {
	device DeviceInfo
}

// NewMockBackend returns a mock backend with a single fake device.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		device: DeviceInfo{
			Name:       "MockGPU",
			Vendor:     "trottersuzuki",
			Driver:     "mock",
			MemoryMB:   0,
			ComputeCap: "cpu",
		},
	}
}

func (b *MockBackend) Info() BackendInfo {
	return BackendInfo{
		Name:        "mock",
		Version:     "0.2",
		Description: "CPU-backed mock GPU backend",
	}
}

func (b *MockBackend) Available() bool {
	return true
}

func (b *MockBackend) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{b.device}, nil
}

func (b *MockBackend) NewContext(deviceIndex int) (Context, error) {
	if deviceIndex != 0 {
		return nil, fmt.Errorf("mock backend: device index %d out of range", deviceIndex)
	}

	return &mockContext{device: b.device}, nil
}

// RegisterMockBackend registers the mock backend as the active backend.
func RegisterMockBackend() {
	RegisterBackend(NewMockBackend())
}

type mockContext struct {
	device DeviceInfo
}

func (c *mockContext) Device() DeviceInfo {
	return c.device
}

func (c *mockContext) NewBuffer(n int) (Buffer, error) {
	if n < 0 {
		return nil, ErrInvalidLength
	}

	return &mockBuffer{data: make([]float64, n)}, nil
}

func (c *mockContext) NewStream() (Stream, error) {
	return newMockStream(), nil
}

func (c *mockContext) NewStepPlan(desc StepDesc) (StepPlan, error) {
	if desc.Params == nil || desc.Geometry.Len() == 0 {
		return nil, ErrInvalidLength
	}

	return &mockPlan{
		geo:    desc.Geometry,
		params: desc.Params.Clone(),
		bw:     desc.BlockWidth,
		bh:     desc.BlockHeight,
	}, nil
}

func (c *mockContext) Close() error {
	return nil
}

// mockStream executes enqueued operations in order on its own goroutine.
type mockStream struct {
	ops  chan func() error
	done chan struct{}

	sendMu sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newMockStream() *mockStream {
	s := &mockStream{
		ops:  make(chan func() error, 256),
		done: make(chan struct{}),
	}

	go s.loop()

	return s
}

func (s *mockStream) loop() {
	defer close(s.done)

	for op := range s.ops {
		if err := op(); err != nil {
			s.errMu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.errMu.Unlock()
		}
	}
}

func (s *mockStream) enqueue(op func() error) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.ops <- op

	return nil
}

// Synchronize blocks until every operation enqueued so far has run and
// reports the first failure seen by the stream. Errors are sticky.
func (s *mockStream) Synchronize() error {
	fence := make(chan struct{})
	if err := s.enqueue(func() error {
		close(fence)
		return nil
	}); err != nil {
		return err
	}

	<-fence

	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err
}

func (s *mockStream) Close() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return nil
	}

	s.closed = true
	close(s.ops)
	s.sendMu.Unlock()

	<-s.done

	return nil
}

func asMockStream(s Stream) (*mockStream, error) {
	ms, ok := s.(*mockStream)
	if !ok {
		return nil, ErrForeignObject
	}

	return ms, nil
}

type mockBuffer struct {
	data []float64
}

func (b *mockBuffer) Len() int {
	return len(b.data)
}

func (b *mockBuffer) Upload(s Stream, src []float64) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if len(src) != len(b.data) {
		return ErrLengthMismatch
	}

	return ms.enqueue(func() error {
		if b.data == nil {
			return ErrClosed
		}

		copy(b.data, src)

		return nil
	})
}

func (b *mockBuffer) Download(s Stream, dst []float64) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if len(dst) != len(b.data) {
		return ErrLengthMismatch
	}

	return ms.enqueue(func() error {
		if b.data == nil {
			return ErrClosed
		}

		copy(dst, b.data)

		return nil
	})
}

func (b *mockBuffer) checkRect(host []float64, stride int, r Rect) error {
	if r.Empty() {
		return nil
	}

	if r.X0 < 0 || r.Y0 < 0 || r.X1 > stride || r.Y1*stride > len(b.data) || len(host) != len(b.data) {
		return ErrLengthMismatch
	}

	return nil
}

func (b *mockBuffer) UploadRect(s Stream, src []float64, stride int, r Rect) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if err := b.checkRect(src, stride, r); err != nil {
		return err
	}

	return ms.enqueue(func() error {
		if b.data == nil {
			return ErrClosed
		}

		copyTileRect(b.data, src, stride, r)

		return nil
	})
}

func (b *mockBuffer) DownloadRect(s Stream, dst []float64, stride int, r Rect) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if err := b.checkRect(dst, stride, r); err != nil {
		return err
	}

	return ms.enqueue(func() error {
		if b.data == nil {
			return ErrClosed
		}

		copyTileRect(dst, b.data, stride, r)

		return nil
	})
}

func (b *mockBuffer) Close() error {
	b.data = nil
	return nil
}

func copyTileRect(dst, src []float64, stride int, r Rect) {
	for y := r.Y0; y < r.Y1; y++ {
		lo, hi := y*stride+r.X0, y*stride+r.X1
		copy(dst[lo:hi], src[lo:hi])
	}
}

func asMockField(f FieldBuffer) (Field, error) {
	re, ok1 := f.Real.(*mockBuffer)
	im, ok2 := f.Imag.(*mockBuffer)

	if !ok1 || !ok2 {
		return Field{}, ErrForeignObject
	}

	if re.data == nil || im.data == nil {
		return Field{}, ErrClosed
	}

	return Field{Real: re.data, Imag: im.data}, nil
}

type mockPlan struct {
	geo    Geometry
	params *Params
	bw, bh int
	closed bool
}

func (p *mockPlan) Step(s Stream, c int, src []FieldBuffer, dst FieldBuffer, out []Rect) error {
	if p.closed {
		return ErrClosed
	}

	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if c < 0 || c >= p.params.Components || len(src) != p.params.Components {
		return ErrLengthMismatch
	}

	return ms.enqueue(func() error {
		in := make([]Field, len(src))
		for i, b := range src {
			f, err := asMockField(b)
			if err != nil {
				return err
			}

			in[i] = f
		}

		o, err := asMockField(dst)
		if err != nil {
			return err
		}

		var blocks []Rect
		for _, r := range out {
			blocks = append(blocks, stencil.Blocks(r, p.bw, p.bh)...)
		}

		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))

		for _, blk := range blocks {
			g.Go(func() error {
				sc := stencil.GetScratch()
				stencil.StepBlock(&p.geo, p.params, c, in, o, blk, sc)
				stencil.PutScratch(sc)

				return nil
			})
		}

		return g.Wait()
	})
}

func (p *mockPlan) Rabi(s Stream, a, b FieldBuffer, r Rect, omegaR, omegaI, t float64) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	imag := p.params.ImagTime

	return ms.enqueue(func() error {
		fa, err := asMockField(a)
		if err != nil {
			return err
		}

		fb, err := asMockField(b)
		if err != nil {
			return err
		}

		stencil.Rabi(&p.geo, fa, fb, r, omegaR, omegaI, t, imag)

		return nil
	})
}

func (p *mockPlan) Scale(s Stream, f FieldBuffer, factor float64) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	return ms.enqueue(func() error {
		ff, err := asMockField(f)
		if err != nil {
			return err
		}

		stencil.Scale(ff, factor)

		return nil
	})
}

func (p *mockPlan) SquaredNorm(s Stream, f FieldBuffer) (float64, error) {
	ms, err := asMockStream(s)
	if err != nil {
		return 0, err
	}

	var sum float64

	err = ms.enqueue(func() error {
		ff, err := asMockField(f)
		if err != nil {
			return err
		}

		sum = stencil.SquaredNorm(&p.geo, ff)

		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := ms.Synchronize(); err != nil {
		return 0, err
	}

	return sum, nil
}

func (p *mockPlan) UpdatePotential(s Stream, potReal, potImag [][]float64) error {
	ms, err := asMockStream(s)
	if err != nil {
		return err
	}

	if len(potReal) != p.params.Components || len(potImag) != p.params.Components {
		return ErrLengthMismatch
	}

	re := make([][]float64, len(potReal))
	im := make([][]float64, len(potImag))

	for c := range potReal {
		re[c] = append([]float64(nil), potReal[c]...)
		im[c] = append([]float64(nil), potImag[c]...)
	}

	return ms.enqueue(func() error {
		p.params.SetPotential(re, im)
		return nil
	})
}

func (p *mockPlan) Close() error {
	p.closed = true
	return nil
}
