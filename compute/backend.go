package compute

// Context owns device memory and compiles kernels for one device.
//
// Resource lifecycle:
//   - Buffers are created with Alloc and must be released with Free
//   - Freeing a buffer that a pending kernel uses is undefined behavior
//   - IDs become invalid after Free and are never reused
type Context interface {
	// Name returns the backend identifier (e.g. "software", "wgpu").
	Name() string

	// Alloc creates a zero-initialized buffer of n elements of type dt.
	// n must be positive; callers that need an empty array allocate a small
	// default capacity instead, since some devices reject zero-size buffers.
	Alloc(label string, dt DType, n int) (BufferID, error)

	// Free releases a buffer. Unknown IDs are ignored.
	Free(id BufferID)

	// Len returns the element count and type of a live buffer.
	Len(id BufferID) (int, DType, error)

	// NewQueue creates a command queue bound to this context.
	NewQueue() (Queue, error)

	// Compile turns kernel source into an invokable kernel.
	// Compilation may be expensive; callers are expected to cache results.
	Compile(src *KernelSource) (Kernel, error)

	// Close releases every resource owned by the context.
	Close() error
}

// Queue executes transfers and reductions in issue order.
//
// Every method blocks until the operation has completed from the caller's
// point of view. No ordering is guaranteed against other queues.
type Queue interface {
	// Write copies host bytes into dst. len(data) must equal dst.ByteLen().
	Write(dst View, data []byte) error

	// Read copies src back to the host.
	Read(src View) ([]byte, error)

	// Copy copies src into dst. Both views must have the same type and length.
	Copy(dst, src View) error

	// Fill overwrites every element of dst with one encoded element.
	Fill(dst View, element []byte) error

	// Max returns the largest element of src as a float64.
	Max(src View) (float64, error)

	// Finish blocks until all previously issued work has completed.
	Finish() error
}

// Compiler is the part of a Context needed by kernel caches.
type Compiler interface {
	Compile(src *KernelSource) (Kernel, error)
}

// Kernel is a compiled elementwise kernel.
type Kernel interface {
	// Name returns the kernel (entry point) name.
	Name() string

	// Source returns the full WGSL source the kernel was built from.
	Source() string

	// Args returns the declared arguments in binding order.
	Args() []ArgSpec

	// Invoke runs the kernel for indices [0, n) on q. args are matched
	// positionally with Args(): a View for array arguments, a scalar of
	// the exact declared type for scalar arguments.
	Invoke(q Queue, n int, args ...any) error

	// Release frees device objects held by the kernel.
	Release()
}

// ArgSpec declares one kernel argument.
type ArgSpec struct {
	// Name is the identifier visible to the kernel body.
	Name string

	// Type is the element type (arrays) or value type (scalars).
	Type DType

	// Array marks a device array argument; otherwise the argument is a
	// scalar passed by value.
	Array bool

	// ReadOnly marks an array the kernel never writes.
	ReadOnly bool
}
