package cluster

const rootRank = 0

// Allreduce sums vals element-wise across all ranks and stores the result in
// vals on every rank. Partial results are accumulated on rank 0 in rank
// order and broadcast back, so every rank holds bit-identical sums.
func (c *Comm) Allreduce(vals []float64) error {
	if c.world.size == 1 {
		return nil
	}

	if c.rank != rootRank {
		if err := c.sendInternal(rootRank, tagReduce, vals); err != nil {
			return err
		}

		return c.recvInternal(rootRank, tagBroadcast, vals)
	}

	part := make([]float64, len(vals))
	for src := 1; src < c.world.size; src++ {
		if err := c.recvInternal(src, tagReduce, part); err != nil {
			return err
		}

		for i, v := range part {
			vals[i] += v
		}
	}

	for dst := 1; dst < c.world.size; dst++ {
		if err := c.sendInternal(dst, tagBroadcast, vals); err != nil {
			return err
		}
	}

	return nil
}

// AllreduceSum is Allreduce for a single value.
func (c *Comm) AllreduceSum(v float64) (float64, error) {
	buf := []float64{v}
	if err := c.Allreduce(buf); err != nil {
		return 0, err
	}

	return buf[0], nil
}

// Barrier returns once every rank has entered it.
func (c *Comm) Barrier() error {
	_, err := c.AllreduceSum(0)

	return err
}

// Gather collects data from every rank on root. On root the result holds one
// slice per rank in rank order; on other ranks it is nil. Ranks may
// contribute slices of different lengths.
func (c *Comm) Gather(root int, data []float64) ([][]float64, error) {
	if err := c.checkPeer(root); err != nil {
		return nil, err
	}

	if c.rank != root {
		header := []float64{float64(len(data))}
		if err := c.sendInternal(root, tagGather, header); err != nil {
			return nil, err
		}

		return nil, c.sendInternal(root, tagGather, data)
	}

	out := make([][]float64, c.world.size)
	for src := range c.world.size {
		if src == root {
			out[src] = append([]float64(nil), data...)
			continue
		}

		header := make([]float64, 1)
		if err := c.recvInternal(src, tagGather, header); err != nil {
			return nil, err
		}

		buf := make([]float64, int(header[0]))
		if err := c.recvInternal(src, tagGather, buf); err != nil {
			return nil, err
		}

		out[src] = buf
	}

	return out, nil
}

func (c *Comm) sendInternal(dst, tag int, data []float64) error {
	req, err := c.isend(dst, tag, data)
	if err != nil {
		return err
	}

	return req.Wait()
}

func (c *Comm) recvInternal(src, tag int, buf []float64) error {
	req, err := c.irecv(src, tag, buf)
	if err != nil {
		return err
	}

	return req.Wait()
}
