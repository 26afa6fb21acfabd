//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/compute"
)

// Queue issues transfers on the context's device queue. Every method blocks
// until the device has finished the operation.
type Queue struct {
	ctx *Context
}

var _ compute.Queue = (*Queue)(nil)

// Context returns the context the queue was created on.
func (q *Queue) Context() compute.Context { return q.ctx }

// Write uploads data into dst.
func (q *Queue) Write(dst compute.View, data []byte) error {
	buf, err := q.ctx.lookup(dst)
	if err != nil {
		return err
	}
	if uint64(len(data)) != dst.ByteLen() {
		return fmt.Errorf("%w: writing %d bytes into %s", compute.ErrInvalidSize, len(data), dst)
	}
	if len(data) == 0 {
		return nil
	}
	q.ctx.submitMu.Lock()
	q.ctx.queue.WriteBuffer(buf, dst.ByteOffset(), data)
	q.ctx.submitMu.Unlock()
	return nil
}

// Read downloads src through a staging buffer.
func (q *Queue) Read(src compute.View) ([]byte, error) {
	buf, err := q.ctx.lookup(src)
	if err != nil {
		return nil, err
	}
	size := src.ByteLen()
	if size == 0 {
		return []byte{}, nil
	}

	staging, err := q.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "particles_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer q.ctx.device.DestroyBuffer(staging)

	err = q.ctx.submitAndWait("particles_read", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(buf, staging, []hal.BufferCopy{
			{SrcOffset: src.ByteOffset(), DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return nil, err
	}

	readback := make([]byte, size)
	if err := q.ctx.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("wgpu: readback: %w", err)
	}
	return readback, nil
}

// Copy copies src into dst on the device. Copies within one buffer go
// through the host, since WebGPU forbids a buffer on both ends of a copy.
func (q *Queue) Copy(dst, src compute.View) error {
	if dst.DType != src.DType {
		return fmt.Errorf("%w: copy %s into %s", compute.ErrTypeMismatch, src, dst)
	}
	if dst.Len != src.Len {
		return fmt.Errorf("%w: copy %s into %s", compute.ErrInvalidSize, src, dst)
	}
	if dst.Len == 0 {
		return nil
	}
	if dst.Buffer == src.Buffer {
		data, err := q.Read(src)
		if err != nil {
			return err
		}
		return q.Write(dst, data)
	}
	from, err := q.ctx.lookup(src)
	if err != nil {
		return err
	}
	to, err := q.ctx.lookup(dst)
	if err != nil {
		return err
	}
	return q.ctx.submitAndWait("particles_copy", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(from, to, []hal.BufferCopy{
			{SrcOffset: src.ByteOffset(), DstOffset: dst.ByteOffset(), Size: src.ByteLen()},
		})
	})
}

// Fill uploads element repeated across dst.
func (q *Queue) Fill(dst compute.View, element []byte) error {
	if len(element) != dst.DType.Size() {
		return fmt.Errorf("%w: %d byte element for %s", compute.ErrTypeMismatch, len(element), dst.DType)
	}
	pattern := make([]byte, dst.ByteLen())
	for off := 0; off < len(pattern); off += len(element) {
		copy(pattern[off:], element)
	}
	return q.Write(dst, pattern)
}

// Max reads src back and reduces it on the host.
func (q *Queue) Max(src compute.View) (float64, error) {
	data, err := q.Read(src)
	if err != nil {
		return 0, err
	}
	return compute.MaxOf(src.DType, data)
}

// Finish waits until previously submitted work has completed.
func (q *Queue) Finish() error {
	if q.ctx.device == nil {
		return compute.ErrClosed
	}
	return q.ctx.submitAndWait("particles_finish", func(hal.CommandEncoder) {})
}
