package cluster

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// mailboxDepth bounds the number of undelivered messages per match key.
// Senders block (honouring the rank's context) once a mailbox is full.
const mailboxDepth = 16

// Internal tags. User tags must be non-negative.
const (
	tagReduce = -1 - iota
	tagBroadcast
	tagGather
)

type mailboxKey struct {
	src, dst, tag int
}

// World is a fixed set of ranks connected by message channels.
type World struct {
	size int

	mu    sync.Mutex
	boxes map[mailboxKey]chan []float64
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d ranks", ErrInvalidSize, size)
	}

	return &World{
		size:  size,
		boxes: make(map[mailboxKey]chan []float64),
	}, nil
}

// Size returns the number of ranks in the world.
func (w *World) Size() int {
	return w.size
}

// Comm returns the communicator of rank. Blocking operations on it wait until
// a message arrives or ctx is done.
func (w *World) Comm(ctx context.Context, rank int) (*Comm, error) {
	if rank < 0 || rank >= w.size {
		return nil, fmt.Errorf("%w: %d of %d", ErrRankOutOfRange, rank, w.size)
	}

	return &Comm{world: w, rank: rank, ctx: ctx}, nil
}

// Run starts fn once per rank, each in its own goroutine, and waits for all of
// them. The first error cancels the context handed to the other ranks, which
// unblocks any rank waiting on a message that will never arrive.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c *Comm) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for rank := range w.size {
		c := &Comm{world: w, rank: rank, ctx: gctx}

		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.rank, err)
			}

			return nil
		})
	}

	return g.Wait()
}

func (w *World) mailbox(src, dst, tag int) chan []float64 {
	key := mailboxKey{src: src, dst: dst, tag: tag}

	w.mu.Lock()
	defer w.mu.Unlock()

	box, ok := w.boxes[key]
	if !ok {
		box = make(chan []float64, mailboxDepth)
		w.boxes[key] = box
	}

	return box
}

// Self returns the communicator of a fresh single-rank world.
func Self() *Comm {
	w, _ := NewWorld(1)
	c, _ := w.Comm(context.Background(), 0)

	return c
}

// Comm is one rank's view of its world.
type Comm struct {
	world *World
	rank  int
	ctx   context.Context
}

// Rank returns the rank of this communicator.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks in the world.
func (c *Comm) Size() int {
	return c.world.size
}

// Context returns the context bounding blocking operations of this rank.
func (c *Comm) Context() context.Context {
	return c.ctx
}

func (c *Comm) checkPeer(peer int) error {
	if peer < 0 || peer >= c.world.size {
		return fmt.Errorf("%w: %d of %d", ErrRankOutOfRange, peer, c.world.size)
	}

	return nil
}

// Request tracks a non-blocking operation.
type Request struct {
	once sync.Once
	wait func() error
	err  error
}

// Wait blocks until the operation completed. It is safe to call more than once.
func (r *Request) Wait() error {
	if r == nil {
		return nil
	}

	r.once.Do(func() {
		if r.wait != nil {
			r.err = r.wait()
		}
	})

	return r.err
}

// WaitAll waits for every request and returns the first error.
func WaitAll(reqs ...*Request) error {
	var first error

	for _, r := range reqs {
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Isend posts a buffered send of data to dst. The payload is copied before
// Isend returns, so the caller may reuse data immediately.
func (c *Comm) Isend(dst, tag int, data []float64) (*Request, error) {
	if tag < 0 {
		return nil, fmt.Errorf("%w: %d", ErrReservedTag, tag)
	}

	return c.isend(dst, tag, data)
}

func (c *Comm) isend(dst, tag int, data []float64) (*Request, error) {
	if err := c.checkPeer(dst); err != nil {
		return nil, err
	}

	msg := make([]float64, len(data))
	copy(msg, data)
	box := c.world.mailbox(c.rank, dst, tag)

	select {
	case box <- msg:
		return &Request{}, nil
	default:
	}

	// Mailbox full: complete the send when the receiver drains it.
	return &Request{wait: func() error {
		select {
		case box <- msg:
			return nil
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}}, nil
}

// Irecv posts a receive from src into buf. The data is available in buf once
// the returned request's Wait returned nil.
func (c *Comm) Irecv(src, tag int, buf []float64) (*Request, error) {
	if tag < 0 {
		return nil, fmt.Errorf("%w: %d", ErrReservedTag, tag)
	}

	return c.irecv(src, tag, buf)
}

func (c *Comm) irecv(src, tag int, buf []float64) (*Request, error) {
	if err := c.checkPeer(src); err != nil {
		return nil, err
	}

	box := c.world.mailbox(src, c.rank, tag)

	return &Request{wait: func() error {
		select {
		case msg := <-box:
			if len(msg) != len(buf) {
				return fmt.Errorf("%w: got %d values from rank %d, want %d",
					ErrMessageSize, len(msg), src, len(buf))
			}

			copy(buf, msg)

			return nil
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}}, nil
}

// Send is the blocking form of Isend.
func (c *Comm) Send(dst, tag int, data []float64) error {
	req, err := c.Isend(dst, tag, data)
	if err != nil {
		return err
	}

	return req.Wait()
}

// Recv is the blocking form of Irecv.
func (c *Comm) Recv(src, tag int, buf []float64) error {
	req, err := c.Irecv(src, tag, buf)
	if err != nil {
		return err
	}

	return req.Wait()
}
