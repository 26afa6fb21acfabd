package compute

import (
	"fmt"
	"strings"
)

// BufferID is an opaque handle to a device buffer.
// IDs are issued by a Context and become invalid after Free.
type BufferID uint64

// InvalidBuffer is the zero value, representing no buffer.
const InvalidBuffer BufferID = 0

// DType is the element type tag of a device or host array.
type DType uint8

// Supported element types.
const (
	InvalidDType DType = iota
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

// Size returns the element size in bytes, or 0 for InvalidDType.
func (d DType) Size() int {
	switch d {
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether d is a floating-point type.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Valid reports whether d names a supported element type.
func (d DType) Valid() bool {
	return d >= Int32 && d <= Float64
}

// String returns the Go-style name of the type (e.g. "float32").
func (d DType) String() string {
	switch d {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", uint8(d))
	}
}

// WGSL returns the WGSL scalar type name used in generated kernels.
// 64-bit integers have no WGSL equivalent; kernels using them fail to compile
// on shader backends.
func (d DType) WGSL() string {
	switch d {
	case Int32:
		return "i32"
	case Uint32:
		return "u32"
	case Int64:
		return "i64"
	case Uint64:
		return "u64"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return ""
	}
}

// ParseDType parses a Go-style or WGSL type name.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int32", "i32", "int":
		return Int32, nil
	case "uint32", "u32", "uint":
		return Uint32, nil
	case "int64", "i64", "long":
		return Int64, nil
	case "uint64", "u64":
		return Uint64, nil
	case "float32", "f32", "float":
		return Float32, nil
	case "float64", "f64", "double":
		return Float64, nil
	}
	return InvalidDType, fmt.Errorf("%w: unknown type %q", ErrTypeMismatch, s)
}

// Number is the set of Go element types that map onto a DType.
type Number interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

// DTypeFor returns the DType for the Go type T.
func DTypeFor[T Number]() DType {
	var zero T
	dt, _ := DTypeOf(zero)
	return dt
}

// View is a typed element range of a device buffer.
//
// Offset and Len are in elements, not bytes. A View does not own the buffer;
// it becomes stale when the buffer is freed or replaced.
type View struct {
	Buffer BufferID
	DType  DType
	Offset int
	Len    int
}

// ByteOffset returns the offset of the first element in bytes.
func (v View) ByteOffset() uint64 {
	return uint64(v.Offset) * uint64(v.DType.Size()) //nolint:gosec // offsets are validated non-negative
}

// ByteLen returns the size of the range in bytes.
func (v View) ByteLen() uint64 {
	return uint64(v.Len) * uint64(v.DType.Size()) //nolint:gosec // lengths are validated non-negative
}

// Slice returns the sub-range [lo, hi) of v.
func (v View) Slice(lo, hi int) (View, error) {
	if lo < 0 || hi < lo || hi > v.Len {
		return View{}, fmt.Errorf("%w: slice [%d:%d] of view with %d elements", ErrOutOfRange, lo, hi, v.Len)
	}
	return View{Buffer: v.Buffer, DType: v.DType, Offset: v.Offset + lo, Len: hi - lo}, nil
}

// String returns a compact description for logs.
func (v View) String() string {
	return fmt.Sprintf("%s[%d:%d]@%d", v.DType, v.Offset, v.Offset+v.Len, v.Buffer)
}
