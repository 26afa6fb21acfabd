//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/compute"
)

// kernel is a compiled compute pipeline for one elementwise kernel.
type kernel struct {
	ctx  *Context
	src  *compute.KernelSource
	wgsl string

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// Compile assembles src into WGSL, compiles it to SPIR-V with naga and
// creates the compute pipeline. On failure every partially created object
// is destroyed.
func (c *Context) Compile(src *compute.KernelSource) (compute.Kernel, error) {
	if src == nil {
		return nil, fmt.Errorf("wgpu: nil kernel source")
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, compute.ErrClosed
	}

	k := &kernel{ctx: c, src: src, wgsl: src.WGSL(c.workgroupSize)}
	if err := k.build(); err != nil {
		k.Release()
		return nil, fmt.Errorf("wgpu: compile %s: %w", src.Name, err)
	}
	slogger().Debug("wgpu: kernel compiled", "name", src.Name, "args", len(src.Args))
	return k, nil
}

func (k *kernel) build() error {
	dev := k.ctx.device
	words, err := k.ctx.compileSPIRV(k.src.Name, k.wgsl)
	if err != nil {
		return err
	}

	k.shader, err = dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  k.src.Name,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	var entries []gputypes.BindGroupLayoutEntry
	binding := uint32(0)
	for _, a := range k.src.Args {
		if !a.Array {
			continue
		}
		typ := gputypes.BufferBindingTypeStorage
		if a.ReadOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding: binding, Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{Type: typ},
		})
		binding++
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding: binding, Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	})

	k.bindLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: k.src.Name + "_bind_layout", Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	k.pipeLayout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: k.src.Name + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	k.pipeline, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: k.src.Name + "_pipeline", Layout: k.pipeLayout,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: k.src.Name},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

func (k *kernel) Name() string            { return k.src.Name }
func (k *kernel) Source() string          { return k.wgsl }
func (k *kernel) Args() []compute.ArgSpec { return k.src.Args }

// Invoke binds args, uploads the parameter block and dispatches enough
// workgroups to cover n items. q must be a queue of the kernel's context.
func (k *kernel) Invoke(q compute.Queue, n int, args ...any) error {
	wq, ok := q.(*Queue)
	if !ok || wq.ctx != k.ctx {
		return fmt.Errorf("wgpu: invoke %s: queue does not belong to this context", k.src.Name)
	}
	views, params, err := compute.BindArgs(k.src.Args, n, args)
	if err != nil {
		return fmt.Errorf("wgpu: invoke %s: %w", k.src.Name, err)
	}
	if n == 0 {
		return nil
	}
	dev := k.ctx.device

	entries := make([]gputypes.BindGroupEntry, 0, len(views)+1)
	for i, v := range views {
		buf, err := k.ctx.lookup(v)
		if err != nil {
			return fmt.Errorf("wgpu: invoke %s: %w", k.src.Name, err)
		}
		if v.ByteOffset()%storageOffsetAlignment != 0 {
			return fmt.Errorf("wgpu: invoke %s: %w: view %s is not %d-byte aligned",
				k.src.Name, compute.ErrOutOfRange, v, storageOffsetAlignment)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // argument count is small
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: v.ByteOffset(), Size: v.ByteLen()},
		})
	}

	paramsBuf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: k.src.Name + "_params", Size: uint64(len(params)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: invoke %s: create params buffer: %w", k.src.Name, err)
	}
	defer dev.DestroyBuffer(paramsBuf)
	k.ctx.submitMu.Lock()
	k.ctx.queue.WriteBuffer(paramsBuf, 0, params)
	k.ctx.submitMu.Unlock()

	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(len(views)), //nolint:gosec // argument count is small
		Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: uint64(len(params))},
	})
	bg, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: k.src.Name + "_bind", Layout: k.bindLayout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: invoke %s: create bind group: %w", k.src.Name, err)
	}
	defer dev.DestroyBindGroup(bg)

	gx, gy := compute.Workgroups(n, k.ctx.workgroupSize)
	return k.ctx.submitAndWait(k.src.Name, func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: k.src.Name})
		pass.SetPipeline(k.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, 1)
		pass.End()
	})
}

// Release destroys the pipeline objects in reverse creation order.
func (k *kernel) Release() {
	dev := k.ctx.device
	if dev == nil {
		return
	}
	if k.pipeline != nil {
		dev.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		dev.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		dev.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		dev.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}
