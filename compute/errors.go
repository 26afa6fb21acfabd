package compute

import "errors"

// Backend errors. Higher layers wrap these and never replace them, so
// errors.Is works across package boundaries.
var (
	// ErrInvalidSize is returned for negative or otherwise malformed sizes.
	ErrInvalidSize = errors.New("compute: invalid size")

	// ErrTypeMismatch is returned when an operand's element type does not
	// match the buffer or argument it is used with.
	ErrTypeMismatch = errors.New("compute: type mismatch")

	// ErrBufferNotFound is returned when a BufferID is unknown or freed.
	ErrBufferNotFound = errors.New("compute: buffer not found")

	// ErrOutOfRange is returned when a view exceeds its buffer.
	ErrOutOfRange = errors.New("compute: range out of bounds")

	// ErrHostKernelMissing is returned by the software backend when a kernel
	// is invoked without a registered host implementation.
	ErrHostKernelMissing = errors.New("compute: no host implementation for kernel")

	// ErrClosed is returned when a context or queue is used after Close.
	ErrClosed = errors.New("compute: backend closed")

	// ErrBackendNotAvailable is returned when no backend can be created.
	ErrBackendNotAvailable = errors.New("compute: no backend available")
)
