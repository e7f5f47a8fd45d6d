// Package cluster provides the message-passing runtime used to run one lattice
// tile per rank.
//
// A World is a fixed set of ranks. Each rank runs in its own goroutine and sees
// only its Comm: ranks never share mutable state, every byte that crosses a
// tile boundary is copied into a message. Point-to-point messages are matched
// by (source, destination, tag) and delivered in FIFO order per match key.
// Collective operations (all-reduce, barrier, gather) are built on the same
// channels and reduce in rank order, so every rank observes bit-identical
// results.
package cluster
