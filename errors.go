package trottersuzuki

import "errors"

// Sentinel errors returned by the solver packages. Callers match them with
// errors.Is; the returned errors usually wrap them with context.
var (
	// ErrInvalidGeometry is returned when a lattice cannot be built from the
	// requested dimensions, lengths, periodicity or rotation.
	ErrInvalidGeometry = errors.New("trottersuzuki: invalid lattice geometry")

	// ErrTopology is returned when the process count cannot tile the grid.
	ErrTopology = errors.New("trottersuzuki: process count cannot tile the lattice")

	// ErrShapeMismatch is returned when an array does not match the tile shape.
	ErrShapeMismatch = errors.New("trottersuzuki: array does not match tile shape")

	// ErrUnknownKernel is returned for an unregistered backend name.
	ErrUnknownKernel = errors.New("trottersuzuki: unknown kernel")

	// ErrUnsupported is returned when a kernel cannot perform an operation,
	// such as Rabi coupling on a single-component kernel.
	ErrUnsupported = errors.New("trottersuzuki: operation not supported by kernel")

	// ErrKernelState is returned when kernel step phases are issued out of order.
	ErrKernelState = errors.New("trottersuzuki: kernel phase out of order")

	// ErrInvalidArgument is returned for bad iteration counts, sample
	// rectangles, component selectors and similar arguments.
	ErrInvalidArgument = errors.New("trottersuzuki: invalid argument")
)
