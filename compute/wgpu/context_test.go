//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/particles/compute"
)

// newTestContext opens a GPU context or skips when no adapter is present.
func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := New()
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func f32Bytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestContextAllocRejectsBadSizes(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.Alloc("x", compute.Float32, 0); !errors.Is(err, compute.ErrInvalidSize) {
		t.Errorf("Alloc(0) err = %v, want ErrInvalidSize", err)
	}
	if _, err := ctx.Alloc("x", compute.InvalidDType, 4); !errors.Is(err, compute.ErrTypeMismatch) {
		t.Errorf("Alloc(invalid) err = %v, want ErrTypeMismatch", err)
	}
}

func TestQueueWriteReadCopy(t *testing.T) {
	ctx := newTestContext(t)
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatal(err)
	}
	a, err := ctx.Alloc("a", compute.Float32, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.Alloc("b", compute.Float32, 4)
	if err != nil {
		t.Fatal(err)
	}
	va := compute.View{Buffer: a, DType: compute.Float32, Len: 4}
	vb := compute.View{Buffer: b, DType: compute.Float32, Len: 4}

	zero, err := q.Read(va)
	if err != nil {
		t.Fatal(err)
	}
	if string(zero) != string(make([]byte, 16)) {
		t.Errorf("new buffer not zeroed: %x", zero)
	}

	if err := q.Write(va, f32Bytes(3, 7, -1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := q.Copy(vb, va); err != nil {
		t.Fatal(err)
	}
	got, err := q.Read(vb)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(f32Bytes(3, 7, -1, 2)) {
		t.Errorf("copy = %x", got)
	}
	asInt := compute.View{Buffer: b, DType: compute.Int32, Len: 4}
	if err := q.Copy(asInt, va); !errors.Is(err, compute.ErrTypeMismatch) {
		t.Errorf("dtype mismatched copy err = %v, want ErrTypeMismatch", err)
	}
	m, err := q.Max(vb)
	if err != nil {
		t.Fatal(err)
	}
	if m != 7 {
		t.Errorf("Max = %v, want 7", m)
	}
}

func TestKernelInvoke(t *testing.T) {
	ctx := newTestContext(t)
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatal(err)
	}
	src, err := compute.NewKernelSource("scale", "",
		"x: array<f32>, s: f32", "x[i] = x[i] * s;")
	if err != nil {
		t.Fatal(err)
	}
	k, err := ctx.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer k.Release()

	id, err := ctx.Alloc("x", compute.Float32, 3)
	if err != nil {
		t.Fatal(err)
	}
	v := compute.View{Buffer: id, DType: compute.Float32, Len: 3}
	if err := q.Write(v, f32Bytes(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if err := k.Invoke(q, 3, v, float32(2)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	got, err := q.Read(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(f32Bytes(2, 4, 6)) {
		t.Errorf("scaled = %x", got)
	}
}
