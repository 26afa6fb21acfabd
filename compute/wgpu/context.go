//go:build !nogpu

package wgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/particles/compute"
)

// fenceTimeout bounds every blocking wait on the GPU.
const fenceTimeout = 5 * time.Second

// storageOffsetAlignment is the WebGPU default minStorageBufferOffsetAlignment.
const storageOffsetAlignment = 256

// bufferUsage is the usage of every particle buffer: bindable as storage and
// usable on both ends of a copy.
const bufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

func init() {
	compute.Register(compute.BackendWGPU, func() (compute.Context, error) {
		return New()
	})
}

// Option configures a Context.
type Option func(*Context)

// WithWorkgroupSize sets the workgroup width of compiled kernels.
func WithWorkgroupSize(size int) Option {
	return func(c *Context) {
		if size > 0 {
			c.workgroupSize = size
		}
	}
}

// WithSPIRVStore persists naga output in store. The context does not close
// the store.
func WithSPIRVStore(store *SPIRVStore) Option {
	return func(c *Context) {
		c.store = store
	}
}

// WithSPIRVCacheDir opens a SPIRVStore in dir for the context. The store is
// closed with the context.
func WithSPIRVCacheDir(dir string) Option {
	return func(c *Context) {
		c.storeDir = dir
	}
}

// Context is a compute context on a hal device.
//
// Thread Safety: Context is safe for concurrent use. The buffer table is
// guarded by mu and submissions to the hal queue are serialized by submitMu.
type Context struct {
	mu       sync.RWMutex
	submitMu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	// externalDevice is true when the device belongs to a provider
	// (don't destroy on Close).
	externalDevice bool

	nextID  atomic.Uint64
	buffers map[compute.BufferID]*deviceBuffer
	closed  bool

	workgroupSize int
	store         *SPIRVStore
	storeDir      string
	ownsStore     bool
}

type deviceBuffer struct {
	buf   hal.Buffer
	label string
	dtype compute.DType
	n     int
}

var _ compute.Context = (*Context)(nil)

func newContext(opts []Option) (*Context, error) {
	c := &Context{
		buffers:       make(map[compute.BufferID]*deviceBuffer),
		workgroupSize: compute.DefaultWorkgroupSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storeDir != "" && c.store == nil {
		store, err := OpenSPIRVStore(c.storeDir)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.ownsStore = true
	}
	return c, nil
}

// closeStore closes a store opened by the context.
func (c *Context) closeStore() {
	if c.ownsStore && c.store != nil {
		if err := c.store.Close(); err != nil {
			slogger().Warn("wgpu: close spirv store", "err", err)
		}
		c.store = nil
	}
}

// New opens the first discrete or integrated GPU exposed by the Vulkan HAL
// backend, falling back to any adapter.
func New(opts ...Option) (*Context, error) {
	c, err := newContext(opts)
	if err != nil {
		return nil, err
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		c.closeStore()
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		c.closeStore()
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		c.closeStore()
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		c.closeStore()
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	c.instance = instance
	c.device = openDev.Device
	c.queue = openDev.Queue
	c.adapter = selected.Info.Name
	slogger().Info("wgpu: compute context opened", "adapter", c.adapter)
	return c, nil
}

// NewFromProvider builds a context on a device owned by provider, such as a
// gogpu window. The provider must also expose HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. The device is not
// destroyed by Close.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if provider == nil {
		return nil, fmt.Errorf("wgpu: nil device provider")
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	c, err := newContext(opts)
	if err != nil {
		return nil, err
	}
	c.device = device
	c.queue = queue
	c.externalDevice = true
	c.adapter = "external"
	slogger().Info("wgpu: compute context using shared device")
	return c, nil
}

// Name returns the backend identifier.
func (c *Context) Name() string { return compute.BackendWGPU }

// Adapter returns the name of the adapter the device was opened on.
func (c *Context) Adapter() string { return c.adapter }

// SetLogger sets the logger for the wgpu backend package.
func (c *Context) SetLogger(l *slog.Logger) { setLogger(l) }

// Alloc creates a zero-filled storage buffer of n elements.
func (c *Context) Alloc(label string, dt compute.DType, n int) (compute.BufferID, error) {
	if !dt.Valid() {
		return compute.InvalidBuffer, fmt.Errorf("%w: alloc of %s", compute.ErrTypeMismatch, dt)
	}
	if n <= 0 {
		return compute.InvalidBuffer, fmt.Errorf("%w: alloc of %d elements", compute.ErrInvalidSize, n)
	}
	size := uint64(n) * uint64(dt.Size()) //nolint:gosec // n checked positive

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return compute.InvalidBuffer, compute.ErrClosed
	}

	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: bufferUsage,
	})
	if err != nil {
		return compute.InvalidBuffer, fmt.Errorf("wgpu: create %s buffer: %w", label, err)
	}
	// Storage is not guaranteed to be cleared at the HAL level.
	c.queue.WriteBuffer(buf, 0, make([]byte, size))

	id := compute.BufferID(c.nextID.Add(1))
	c.buffers[id] = &deviceBuffer{buf: buf, label: label, dtype: dt, n: n}
	slogger().Debug("wgpu: buffer allocated", "id", id, "label", label, "dtype", dt, "bytes", size)
	return id, nil
}

// Free destroys a buffer.
func (c *Context) Free(id compute.BufferID) {
	c.mu.Lock()
	b, ok := c.buffers[id]
	if ok {
		delete(c.buffers, id)
	}
	c.mu.Unlock()

	if ok {
		c.device.DestroyBuffer(b.buf)
	}
}

// Len returns the element count and type of a buffer.
func (c *Context) Len(id compute.BufferID) (int, compute.DType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.buffers[id]
	if !ok {
		return 0, compute.InvalidDType, fmt.Errorf("%w: %d", compute.ErrBufferNotFound, id)
	}
	return b.n, b.dtype, nil
}

// NewQueue returns a queue submitting to the device queue.
func (c *Context) NewQueue() (compute.Queue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, compute.ErrClosed
	}
	return &Queue{ctx: c}, nil
}

// Close destroys every buffer and, unless the device is shared, the device
// and instance.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	for id, b := range c.buffers {
		c.device.DestroyBuffer(b.buf)
		delete(c.buffers, id)
	}
	if !c.externalDevice {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.closeStore()
	c.device = nil
	c.queue = nil
	c.instance = nil
	c.closed = true
	return nil
}

// lookup resolves a view to its hal buffer and validates its range.
func (c *Context) lookup(v compute.View) (hal.Buffer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, compute.ErrClosed
	}
	b, ok := c.buffers[v.Buffer]
	if !ok {
		return nil, fmt.Errorf("%w: %d", compute.ErrBufferNotFound, v.Buffer)
	}
	if v.DType != b.dtype {
		return nil, fmt.Errorf("%w: view %s on %s buffer", compute.ErrTypeMismatch, v, b.dtype)
	}
	if v.Offset < 0 || v.Len < 0 || v.Offset+v.Len > b.n {
		return nil, fmt.Errorf("%w: view %s exceeds %d elements", compute.ErrOutOfRange, v, b.n)
	}
	return b.buf, nil
}

// submitAndWait records commands with encode, submits them and waits for
// the GPU to finish.
func (c *Context) submitAndWait(label string, encode func(hal.CommandEncoder)) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encode(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)

	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := c.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wgpu: GPU timeout after %v", fenceTimeout)
	}
	return nil
}
