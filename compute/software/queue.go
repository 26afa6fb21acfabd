package software

import (
	"bytes"
	"fmt"

	"github.com/gogpu/particles/compute"
)

// Queue executes operations immediately against host memory.
type Queue struct {
	ctx *Context
}

var _ compute.Queue = (*Queue)(nil)

// Context returns the context the queue was created on.
func (q *Queue) Context() compute.Context { return q.ctx }

// Write copies data into dst.
func (q *Queue) Write(dst compute.View, data []byte) error {
	q.ctx.mu.Lock()
	defer q.ctx.mu.Unlock()
	mem, err := q.ctx.resolve(dst)
	if err != nil {
		return err
	}
	if len(data) != len(mem) {
		return fmt.Errorf("%w: writing %d bytes into %s", compute.ErrInvalidSize, len(data), dst)
	}
	copy(mem, data)
	return nil
}

// Read returns a copy of src.
func (q *Queue) Read(src compute.View) ([]byte, error) {
	q.ctx.mu.RLock()
	defer q.ctx.mu.RUnlock()
	mem, err := q.ctx.resolve(src)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(mem), nil
}

// Copy copies src into dst. Overlapping ranges of one buffer are handled
// like the built-in copy.
func (q *Queue) Copy(dst, src compute.View) error {
	if dst.DType != src.DType {
		return fmt.Errorf("%w: copy %s into %s", compute.ErrTypeMismatch, src, dst)
	}
	if dst.Len != src.Len {
		return fmt.Errorf("%w: copy %s into %s", compute.ErrInvalidSize, src, dst)
	}
	q.ctx.mu.Lock()
	defer q.ctx.mu.Unlock()
	from, err := q.ctx.resolve(src)
	if err != nil {
		return err
	}
	to, err := q.ctx.resolve(dst)
	if err != nil {
		return err
	}
	copy(to, from)
	return nil
}

// Fill repeats element across dst.
func (q *Queue) Fill(dst compute.View, element []byte) error {
	if len(element) != dst.DType.Size() {
		return fmt.Errorf("%w: %d byte element for %s", compute.ErrTypeMismatch, len(element), dst.DType)
	}
	q.ctx.mu.Lock()
	defer q.ctx.mu.Unlock()
	mem, err := q.ctx.resolve(dst)
	if err != nil {
		return err
	}
	for off := 0; off < len(mem); off += len(element) {
		copy(mem[off:], element)
	}
	return nil
}

// Max reduces src on the host.
func (q *Queue) Max(src compute.View) (float64, error) {
	q.ctx.mu.RLock()
	defer q.ctx.mu.RUnlock()
	mem, err := q.ctx.resolve(src)
	if err != nil {
		return 0, err
	}
	return compute.MaxOf(src.DType, mem)
}

// Finish is a no-op; every operation completes before returning.
func (q *Queue) Finish() error { return nil }
