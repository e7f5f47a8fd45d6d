package trottersuzuki

import (
	"fmt"

	"github.com/orgnanonana/trotter-suzuki-mpi/cluster"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/stencil"
)

// link is the exchange with the neighbour in one direction.
type link struct {
	dir        int
	peer       int
	send, recv Rect
	sbuf, rbuf []float64
}

// exchanger moves boundary strips of host fields between neighbouring tiles.
// A message carries every component; its tag is the index of the direction
// the sender sent it in.
type exchanger struct {
	comm  *cluster.Comm
	geo   *stencil.Geometry
	links []link

	sends, recvs []*cluster.Request
	delivered    bool
}

func newExchanger(l *Lattice, comps int) *exchanger {
	e := &exchanger{comm: l.Comm(), geo: l.geometry()}

	for i, d := range stencil.Directions {
		peer, ok := l.Neighbor(d.DX, d.DY)
		if !ok {
			continue
		}

		send, recv := e.geo.SendRect(d), e.geo.RecvRect(d)
		e.links = append(e.links, link{
			dir:  i,
			peer: peer,
			send: send,
			recv: recv,
			sbuf: make([]float64, 2*comps*send.Area()),
			rbuf: make([]float64, 2*comps*recv.Area()),
		})
	}

	return e
}

// start posts the receives and sends for one exchange of fields.
func (e *exchanger) start(fields []Field) error {
	e.recvs = e.recvs[:0]
	e.sends = e.sends[:0]
	e.delivered = false

	for i := range e.links {
		lk := &e.links[i]

		req, err := e.comm.Irecv(lk.peer, stencil.Opposite(lk.dir), lk.rbuf)
		if err != nil {
			return fmt.Errorf("halo receive from rank %d: %w", lk.peer, err)
		}

		e.recvs = append(e.recvs, req)
	}

	for i := range e.links {
		lk := &e.links[i]
		stencil.Pack(lk.sbuf, e.geo, fields, lk.send)

		req, err := e.comm.Isend(lk.peer, lk.dir, lk.sbuf)
		if err != nil {
			return fmt.Errorf("halo send to rank %d: %w", lk.peer, err)
		}

		e.sends = append(e.sends, req)
	}

	return nil
}

// deliver waits for the receives and writes them into the halo of fields.
// Later calls for the same exchange do nothing.
func (e *exchanger) deliver(fields []Field) error {
	if e.delivered {
		return nil
	}

	for i, req := range e.recvs {
		if err := req.Wait(); err != nil {
			return fmt.Errorf("halo receive from rank %d: %w", e.links[i].peer, err)
		}

		stencil.Unpack(e.links[i].rbuf, e.geo, fields, e.links[i].recv)
	}

	e.delivered = true

	return nil
}

// finish waits for the sends.
func (e *exchanger) finish() error {
	if err := cluster.WaitAll(e.sends...); err != nil {
		return fmt.Errorf("halo send: %w", err)
	}

	e.sends = e.sends[:0]

	return nil
}

// sendRects and recvRects list the strips each exchange touches.
func (e *exchanger) sendRects() []Rect {
	out := make([]Rect, len(e.links))
	for i, lk := range e.links {
		out[i] = lk.send
	}

	return out
}

func (e *exchanger) recvRects() []Rect {
	out := make([]Rect, len(e.links))
	for i, lk := range e.links {
		out[i] = lk.recv
	}

	return out
}
