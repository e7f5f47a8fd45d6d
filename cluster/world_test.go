package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorld_InvalidSize(t *testing.T) {
	t.Parallel()

	_, err := NewWorld(0)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestComm_SendRecvCopiesPayload(t *testing.T) {
	t.Parallel()

	w, err := NewWorld(2)
	require.NoError(t, err)

	err = w.Run(context.Background(), func(_ context.Context, c *Comm) error {
		if c.Rank() == 0 {
			data := []float64{1, 2, 3}
			req, err := c.Isend(1, 7, data)
			if err != nil {
				return err
			}
			data[0] = 99

			return req.Wait()
		}

		buf := make([]float64, 3)
		if err := c.Recv(0, 7, buf); err != nil {
			return err
		}
		assert.Equal(t, []float64{1, 2, 3}, buf)

		return nil
	})
	require.NoError(t, err)
}

func TestComm_TagsAreMatchedIndependently(t *testing.T) {
	t.Parallel()

	c := Self()

	require.NoError(t, c.Send(0, 1, []float64{1}))
	require.NoError(t, c.Send(0, 2, []float64{2}))

	buf := make([]float64, 1)
	require.NoError(t, c.Recv(0, 2, buf))
	assert.Equal(t, 2.0, buf[0])
	require.NoError(t, c.Recv(0, 1, buf))
	assert.Equal(t, 1.0, buf[0])
}

func TestComm_RecvSizeMismatch(t *testing.T) {
	t.Parallel()

	c := Self()
	require.NoError(t, c.Send(0, 0, []float64{1, 2}))

	err := c.Recv(0, 0, make([]float64, 3))
	require.ErrorIs(t, err, ErrMessageSize)
}

func TestComm_ReservedTag(t *testing.T) {
	t.Parallel()

	c := Self()
	_, err := c.Isend(0, -1, nil)
	require.ErrorIs(t, err, ErrReservedTag)
	_, err = c.Irecv(0, -3, nil)
	require.ErrorIs(t, err, ErrReservedTag)
}

func TestComm_AllreduceIsIdenticalOnEveryRank(t *testing.T) {
	t.Parallel()

	const size = 5

	w, err := NewWorld(size)
	require.NoError(t, err)

	results := make([][]float64, size)
	err = w.Run(context.Background(), func(_ context.Context, c *Comm) error {
		vals := []float64{0.1 * float64(c.Rank()+1), 1e-17 * float64(c.Rank())}
		if err := c.Allreduce(vals); err != nil {
			return err
		}
		results[c.Rank()] = vals

		return c.Barrier()
	})
	require.NoError(t, err)

	for r := 1; r < size; r++ {
		assert.Equal(t, results[0], results[r], "rank %d", r)
	}
	assert.InDelta(t, 1.5, results[0][0], 1e-12)
}

func TestComm_Gather(t *testing.T) {
	t.Parallel()

	w, err := NewWorld(3)
	require.NoError(t, err)

	var got [][]float64
	err = w.Run(context.Background(), func(_ context.Context, c *Comm) error {
		data := make([]float64, c.Rank()+1)
		for i := range data {
			data[i] = float64(c.Rank())
		}
		out, err := c.Gather(0, data)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			got = out
		} else if out != nil {
			return errors.New("non-root rank received gather result")
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {1, 1}, {2, 2, 2}}, got)
}

func TestWorld_RunCancelsBlockedRanks(t *testing.T) {
	t.Parallel()

	w, err := NewWorld(2)
	require.NoError(t, err)

	boom := errors.New("boom")
	done := make(chan error, 1)

	go func() {
		done <- w.Run(context.Background(), func(_ context.Context, c *Comm) error {
			if c.Rank() == 0 {
				return boom
			}

			return c.Recv(0, 0, make([]float64, 1))
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a rank failed")
	}
}

func TestCart_ShiftWrapsPeriodicAxes(t *testing.T) {
	t.Parallel()

	cart, err := NewCart(0, [2]int{3, 2}, [2]bool{true, false})
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 0}, cart.Coords)

	left, ok := cart.Shift(-1, 0)
	require.True(t, ok)
	assert.Equal(t, 2, left)

	_, ok = cart.Shift(0, -1)
	assert.False(t, ok)

	up, ok := cart.Shift(0, 1)
	require.True(t, ok)
	assert.Equal(t, 3, up)
}

func TestFactorizations(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][2]int{{1, 6}, {2, 3}, {3, 2}, {6, 1}}, Factorizations(6))
	assert.Equal(t, [][2]int{{1, 1}}, Factorizations(1))
}
