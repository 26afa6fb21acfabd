package software

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/particles/compute"
)

func mustEncode(t *testing.T, dt compute.DType, v any) []byte {
	t.Helper()
	b, err := compute.Encode(dt, v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func mustDecode[T compute.Number](t *testing.T, b []byte) []T {
	t.Helper()
	v, err := compute.Decode(compute.DTypeFor[T](), b)
	if err != nil {
		t.Fatal(err)
	}
	return v.([]T)
}

func TestAllocZeroed(t *testing.T) {
	ctx := New()
	id, err := ctx.Alloc("x", compute.Float64, 5)
	if err != nil {
		t.Fatal(err)
	}
	n, dt, err := ctx.Len(id)
	if err != nil || n != 5 || dt != compute.Float64 {
		t.Fatalf("Len = %d, %s, %v", n, dt, err)
	}
	q, _ := ctx.NewQueue()
	data, err := q.Read(compute.View{Buffer: id, DType: compute.Float64, Len: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(mustDecode[float64](t, data), make([]float64, 5)) {
		t.Errorf("buffer not zeroed: %x", data)
	}

	if _, err := ctx.Alloc("x", compute.Float64, 0); !errors.Is(err, compute.ErrInvalidSize) {
		t.Errorf("Alloc(0) err = %v", err)
	}
	ctx.Free(id)
	if ctx.Buffers() != 0 {
		t.Errorf("Buffers() = %d after Free", ctx.Buffers())
	}
	if _, _, err := ctx.Len(id); !errors.Is(err, compute.ErrBufferNotFound) {
		t.Errorf("Len after Free err = %v", err)
	}
}

func TestQueueContext(t *testing.T) {
	ctx := New()
	q, _ := ctx.NewQueue()
	if got := q.(*Queue).Context(); got != ctx {
		t.Errorf("Queue.Context() = %v, want the creating context", got)
	}
}

func TestQueueOperations(t *testing.T) {
	ctx := New()
	q, _ := ctx.NewQueue()
	a, _ := ctx.Alloc("a", compute.Int32, 6)
	b, _ := ctx.Alloc("b", compute.Int32, 3)
	va := compute.View{Buffer: a, DType: compute.Int32, Len: 6}
	vb := compute.View{Buffer: b, DType: compute.Int32, Len: 3}

	if err := q.Write(va, mustEncode(t, compute.Int32, []int32{1, 2, 3, 4, 5, 6})); err != nil {
		t.Fatal(err)
	}
	tail, _ := va.Slice(3, 6)
	if err := q.Copy(vb, tail); err != nil {
		t.Fatal(err)
	}
	got, _ := q.Read(vb)
	if !slices.Equal(mustDecode[int32](t, got), []int32{4, 5, 6}) {
		t.Errorf("copy = %v", mustDecode[int32](t, got))
	}

	head, _ := va.Slice(0, 2)
	if err := q.Fill(head, mustEncode(t, compute.Int32, int32(-7))); err != nil {
		t.Fatal(err)
	}
	got, _ = q.Read(va)
	if !slices.Equal(mustDecode[int32](t, got), []int32{-7, -7, 3, 4, 5, 6}) {
		t.Errorf("fill = %v", mustDecode[int32](t, got))
	}

	m, err := q.Max(va)
	if err != nil || m != 6 {
		t.Errorf("Max = %v, %v", m, err)
	}

	if err := q.Write(vb, []byte{1}); !errors.Is(err, compute.ErrInvalidSize) {
		t.Errorf("short write err = %v", err)
	}
	if err := q.Copy(vb, va); !errors.Is(err, compute.ErrInvalidSize) {
		t.Errorf("mismatched copy err = %v", err)
	}
	asFloat := compute.View{Buffer: b, DType: compute.Float32, Len: 3}
	if err := q.Copy(asFloat, tail); !errors.Is(err, compute.ErrTypeMismatch) {
		t.Errorf("dtype mismatched copy err = %v, want ErrTypeMismatch", err)
	}
	if _, err := q.Read(compute.View{Buffer: b, DType: compute.Int32, Offset: 2, Len: 2}); !errors.Is(err, compute.ErrOutOfRange) {
		t.Errorf("out of range read err = %v", err)
	}
	if _, err := q.Read(compute.View{Buffer: b, DType: compute.Float32, Len: 3}); !errors.Is(err, compute.ErrTypeMismatch) {
		t.Errorf("wrong dtype read err = %v", err)
	}
	if err := q.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestKernelInvokesHostFunction(t *testing.T) {
	ctx := New(WithHostKernel("axpy", func(n int, args []any) error {
		x := args[0].([]float32)
		y := args[1].([]float32)
		a := args[2].(float32)
		for i := range n {
			y[i] += a * x[i]
			x[i] = -1 // readonly: must not be written back
		}
		return nil
	}))
	q, _ := ctx.NewQueue()

	src, err := compute.NewKernelSource("axpy", "", "readonly x: array<f32>, y: array<f32>, a: f32", "y[i] = y[i] + a * x[i];")
	if err != nil {
		t.Fatal(err)
	}
	k, err := ctx.Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Release()
	if k.Name() != "axpy" || len(k.Args()) != 3 {
		t.Errorf("kernel = %s %v", k.Name(), k.Args())
	}

	xid, _ := ctx.Alloc("x", compute.Float32, 4)
	yid, _ := ctx.Alloc("y", compute.Float32, 4)
	x := compute.View{Buffer: xid, DType: compute.Float32, Len: 4}
	y := compute.View{Buffer: yid, DType: compute.Float32, Len: 4}
	_ = q.Write(x, mustEncode(t, compute.Float32, []float32{1, 2, 3, 4}))
	_ = q.Write(y, mustEncode(t, compute.Float32, []float32{1, 1, 1, 1}))

	if err := k.Invoke(q, 3, x, y, float32(2)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	gy, _ := q.Read(y)
	if got := mustDecode[float32](t, gy); !slices.Equal(got, []float32{3, 5, 7, 1}) {
		t.Errorf("y = %v", got)
	}
	gx, _ := q.Read(x)
	if got := mustDecode[float32](t, gx); !slices.Equal(got, []float32{1, 2, 3, 4}) {
		t.Errorf("readonly x modified: %v", got)
	}
}

func TestKernelWithoutHostFunction(t *testing.T) {
	ctx := New()
	q, _ := ctx.NewQueue()
	src, _ := compute.NewKernelSource("nothing", "", "x: array<u32>", "x[i] = 0u;")
	k, err := ctx.Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := ctx.Alloc("x", compute.Uint32, 1)
	err = k.Invoke(q, 1, compute.View{Buffer: id, DType: compute.Uint32, Len: 1})
	if !errors.Is(err, compute.ErrHostKernelMissing) {
		t.Errorf("err = %v, want ErrHostKernelMissing", err)
	}

	ctx.RegisterHostKernel("nothing", func(int, []any) error { return nil })
	if err := k.Invoke(q, 1, compute.View{Buffer: id, DType: compute.Uint32, Len: 1}); err != nil {
		t.Errorf("Invoke after registration: %v", err)
	}
}

func TestCloseRejectsNewWork(t *testing.T) {
	ctx := New()
	_, _ = ctx.Alloc("x", compute.Float32, 1)
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if ctx.Buffers() != 0 {
		t.Error("Close must drop buffers")
	}
	if _, err := ctx.Alloc("x", compute.Float32, 1); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("Alloc after Close err = %v", err)
	}
	if _, err := ctx.NewQueue(); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("NewQueue after Close err = %v", err)
	}
}
