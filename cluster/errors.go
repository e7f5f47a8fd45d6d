package cluster

import "errors"

var (
	// ErrRankOutOfRange is returned when a rank outside [0, size) is addressed.
	ErrRankOutOfRange = errors.New("cluster: rank out of range")

	// ErrInvalidSize is returned for worlds or topologies with no ranks.
	ErrInvalidSize = errors.New("cluster: invalid size")

	// ErrMessageSize is returned when a received message does not fit the
	// receive buffer exactly.
	ErrMessageSize = errors.New("cluster: message size mismatch")

	// ErrReservedTag is returned when user code addresses an internal tag.
	ErrReservedTag = errors.New("cluster: reserved tag")
)
