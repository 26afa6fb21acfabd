// Package software implements compute.Context and compute.Queue in host
// memory.
//
// It is the fallback backend when no GPU is available and the backend used
// by unit tests. Device buffers are plain byte slices in the same
// little-endian layout a GPU backend would use, so data written through one
// backend reads back identically through another.
//
// Kernels cannot execute WGSL on the host. Instead, a Go implementation is
// registered per kernel name with [Context.RegisterHostKernel] (or
// [WithHostKernel]); compiled kernels dispatch to it on Invoke. With
// [WithShaderValidation], Compile also runs the generated WGSL through naga
// so broken templates fail the same way they would on a GPU.
package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/naga"

	"github.com/gogpu/particles/compute"
)

func init() {
	compute.Register(compute.BackendSoftware, func() (compute.Context, error) {
		return New(), nil
	})
}

// HostKernel is a Go implementation of an elementwise kernel.
//
// args holds one entry per declared kernel argument: a freshly decoded typed
// slice ([]float32, []uint32, ...) for arrays and the scalar value for
// scalars. Array slices written by the function are copied back to the
// device unless the argument is declared readonly.
type HostKernel func(n int, args []any) error

// Option configures a Context.
type Option func(*Context)

// WithShaderValidation enables naga validation of generated WGSL in Compile.
func WithShaderValidation(enabled bool) Option {
	return func(c *Context) {
		c.validate = enabled
	}
}

// WithHostKernel registers a host implementation for a kernel name.
func WithHostKernel(name string, fn HostKernel) Option {
	return func(c *Context) {
		c.hostKernels[name] = fn
	}
}

// WithWorkgroupSize sets the workgroup width written into generated WGSL.
func WithWorkgroupSize(size int) Option {
	return func(c *Context) {
		if size > 0 {
			c.workgroupSize = size
		}
	}
}

// Context is a host-memory compute context.
//
// Context is safe for concurrent use; all buffer table access is guarded by
// a mutex.
type Context struct {
	mu          sync.RWMutex
	nextID      atomic.Uint64
	buffers     map[compute.BufferID]*buffer
	hostKernels map[string]HostKernel
	closed      bool

	validate      bool
	workgroupSize int
}

type buffer struct {
	label string
	dtype compute.DType
	data  []byte
}

var _ compute.Context = (*Context)(nil)

// New creates a software context.
func New(opts ...Option) *Context {
	c := &Context{
		buffers:       make(map[compute.BufferID]*buffer),
		hostKernels:   make(map[string]HostKernel),
		workgroupSize: compute.DefaultWorkgroupSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the backend identifier.
func (c *Context) Name() string { return compute.BackendSoftware }

// SetLogger sets the logger for the software backend package.
func (c *Context) SetLogger(l *slog.Logger) { setLogger(l) }

// RegisterHostKernel registers (or replaces) the host implementation used
// by kernels named name. Kernels compiled before registration pick it up.
func (c *Context) RegisterHostKernel(name string, fn HostKernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostKernels[name] = fn
}

// Alloc creates a zeroed buffer of n elements.
func (c *Context) Alloc(label string, dt compute.DType, n int) (compute.BufferID, error) {
	if !dt.Valid() {
		return compute.InvalidBuffer, fmt.Errorf("%w: alloc of %s", compute.ErrTypeMismatch, dt)
	}
	if n <= 0 {
		return compute.InvalidBuffer, fmt.Errorf("%w: alloc of %d elements", compute.ErrInvalidSize, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return compute.InvalidBuffer, compute.ErrClosed
	}

	id := compute.BufferID(c.nextID.Add(1))
	c.buffers[id] = &buffer{label: label, dtype: dt, data: make([]byte, n*dt.Size())}
	slogger().Debug("software: buffer allocated", "id", id, "label", label, "dtype", dt, "elements", n)
	return id, nil
}

// Free releases a buffer.
func (c *Context) Free(id compute.BufferID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, id)
}

// Len returns the element count and type of a buffer.
func (c *Context) Len(id compute.BufferID) (int, compute.DType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf, ok := c.buffers[id]
	if !ok {
		return 0, compute.InvalidDType, fmt.Errorf("%w: %d", compute.ErrBufferNotFound, id)
	}
	return len(buf.data) / buf.dtype.Size(), buf.dtype, nil
}

// Buffers returns the number of live buffers.
func (c *Context) Buffers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}

// NewQueue returns a queue operating on this context's memory.
func (c *Context) NewQueue() (compute.Queue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, compute.ErrClosed
	}
	return &Queue{ctx: c}, nil
}

// Compile builds a kernel that dispatches to a registered host function.
func (c *Context) Compile(src *compute.KernelSource) (compute.Kernel, error) {
	if src == nil {
		return nil, fmt.Errorf("software: nil kernel source")
	}
	wgsl := src.WGSL(c.workgroupSize)
	if c.validate {
		if _, err := naga.Compile(wgsl); err != nil {
			return nil, fmt.Errorf("software: validate %s: %w", src.Name, err)
		}
	}
	slogger().Debug("software: kernel compiled", "name", src.Name, "args", len(src.Args), "validated", c.validate)
	return &kernel{ctx: c, src: src, wgsl: wgsl}, nil
}

// Close drops every buffer. Subsequent allocations fail with ErrClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = make(map[compute.BufferID]*buffer)
	c.closed = true
	return nil
}

// resolve returns the byte range of v. Callers must hold c.mu.
func (c *Context) resolve(v compute.View) ([]byte, error) {
	buf, ok := c.buffers[v.Buffer]
	if !ok {
		return nil, fmt.Errorf("%w: %d", compute.ErrBufferNotFound, v.Buffer)
	}
	if v.DType != buf.dtype {
		return nil, fmt.Errorf("%w: view %s on %s buffer", compute.ErrTypeMismatch, v, buf.dtype)
	}
	if v.Offset < 0 || v.Len < 0 {
		return nil, fmt.Errorf("%w: view %s", compute.ErrOutOfRange, v)
	}
	start, end := v.ByteOffset(), v.ByteOffset()+v.ByteLen()
	if end > uint64(len(buf.data)) {
		return nil, fmt.Errorf("%w: view %s exceeds %d elements", compute.ErrOutOfRange, v, len(buf.data)/buf.dtype.Size())
	}
	return buf.data[start:end], nil
}

func (c *Context) hostKernel(name string) (HostKernel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.hostKernels[name]
	return fn, ok
}
