package gpu

import "errors"

var (
	// ErrNoBackend is returned when no GPU backend is registered.
	ErrNoBackend = errors.New("trottersuzuki/gpu: no backend registered")

	// ErrBackendUnavailable is returned when the backend is registered but not available
	// on the current system (e.g., no device, driver missing).
	ErrBackendUnavailable = errors.New("trottersuzuki/gpu: backend unavailable")

	// ErrNotImplemented is returned by stubbed operations.
	ErrNotImplemented = errors.New("trottersuzuki/gpu: not implemented")

	// ErrInvalidLength is returned for invalid buffer sizes.
	ErrInvalidLength = errors.New("trottersuzuki/gpu: invalid length")

	// ErrLengthMismatch is returned when a host slice does not match the device buffer.
	ErrLengthMismatch = errors.New("trottersuzuki/gpu: length mismatch")

	// ErrForeignObject is returned when a buffer or stream from another context is used.
	ErrForeignObject = errors.New("trottersuzuki/gpu: object belongs to another backend")

	// ErrClosed is returned when using a released buffer, stream or plan.
	ErrClosed = errors.New("trottersuzuki/gpu: use of closed object")
)
