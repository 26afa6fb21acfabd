package compute

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DTypeOf returns the DType of a scalar or slice of a supported Go type.
func DTypeOf(v any) (DType, bool) {
	switch v.(type) {
	case int32, []int32:
		return Int32, true
	case uint32, []uint32:
		return Uint32, true
	case int64, []int64:
		return Int64, true
	case uint64, []uint64:
		return Uint64, true
	case float32, []float32:
		return Float32, true
	case float64, []float64:
		return Float64, true
	}
	return InvalidDType, false
}

// SliceLen returns the length of a supported typed slice.
func SliceLen(values any) (int, error) {
	switch s := values.(type) {
	case []int32:
		return len(s), nil
	case []uint32:
		return len(s), nil
	case []int64:
		return len(s), nil
	case []uint64:
		return len(s), nil
	case []float32:
		return len(s), nil
	case []float64:
		return len(s), nil
	}
	return 0, fmt.Errorf("%w: %T is not a numeric slice", ErrTypeMismatch, values)
}

// MakeSlice allocates a zeroed typed slice of n elements of dt.
func MakeSlice(dt DType, n int) (any, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidSize, n)
	}
	switch dt {
	case Int32:
		return make([]int32, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Int64:
		return make([]int64, n), nil
	case Uint64:
		return make([]uint64, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, dt)
}

// Encode serializes a typed slice or scalar of exactly type dt into
// little-endian bytes, the layout shared by every backend.
func Encode(dt DType, values any) ([]byte, error) {
	got, ok := DTypeOf(values)
	if !ok || got != dt {
		return nil, fmt.Errorf("%w: cannot encode %T as %s", ErrTypeMismatch, values, dt)
	}
	switch v := values.(type) {
	case int32:
		return Encode(dt, []int32{v})
	case uint32:
		return Encode(dt, []uint32{v})
	case int64:
		return Encode(dt, []int64{v})
	case uint64:
		return Encode(dt, []uint64{v})
	case float32:
		return Encode(dt, []float32{v})
	case float64:
		return Encode(dt, []float64{v})
	case []int32:
		out := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(x)) //nolint:gosec // bit-preserving reinterpretation
		}
		return out, nil
	case []uint32:
		out := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[4*i:], x)
		}
		return out, nil
	case []int64:
		out := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[8*i:], uint64(x)) //nolint:gosec // bit-preserving reinterpretation
		}
		return out, nil
	case []uint64:
		out := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[8*i:], x)
		}
		return out, nil
	case []float32:
		out := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(x))
		}
		return out, nil
	case []float64:
		out := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(x))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot encode %T", ErrTypeMismatch, values)
}

// Decode deserializes little-endian bytes into a new typed slice of dt.
func Decode(dt DType, data []byte) (any, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, dt)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s", ErrInvalidSize, len(data), dt)
	}
	n := len(data) / size
	switch dt {
	case Int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[4*i:])) //nolint:gosec // bit-preserving reinterpretation
		}
		return out, nil
	case Uint32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[4*i:])
		}
		return out, nil
	case Int64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[8*i:])) //nolint:gosec // bit-preserving reinterpretation
		}
		return out, nil
	case Uint64:
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(data[8*i:])
		}
		return out, nil
	case Float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	default:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return out, nil
	}
}

// Cast converts a typed numeric slice to a new slice of element type to.
// Values are converted with Go conversion rules. When the slice already has
// type to, it is returned unchanged (not copied).
func Cast(values any, to DType) (any, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: cast to %s", ErrTypeMismatch, to)
	}
	if from, ok := DTypeOf(values); ok && from == to {
		if _, err := SliceLen(values); err == nil {
			return values, nil
		}
	}
	switch s := values.(type) {
	case []int32:
		return castFrom(s, to), nil
	case []uint32:
		return castFrom(s, to), nil
	case []int64:
		return castFrom(s, to), nil
	case []uint64:
		return castFrom(s, to), nil
	case []float32:
		return castFrom(s, to), nil
	case []float64:
		return castFrom(s, to), nil
	}
	return nil, fmt.Errorf("%w: cannot cast %T to %s", ErrTypeMismatch, values, to)
}

func castFrom[S Number](s []S, to DType) any {
	switch to {
	case Int32:
		return castSlice[S, int32](s)
	case Uint32:
		return castSlice[S, uint32](s)
	case Int64:
		return castSlice[S, int64](s)
	case Uint64:
		return castSlice[S, uint64](s)
	case Float32:
		return castSlice[S, float32](s)
	default:
		return castSlice[S, float64](s)
	}
}

func castSlice[S, D Number](s []S) []D {
	out := make([]D, len(s))
	for i, v := range s {
		out[i] = D(v)
	}
	return out
}
