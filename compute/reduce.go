package compute

import (
	"fmt"
	"slices"

	"github.com/viterin/vek"
	"github.com/viterin/vek/vek32"
)

// MaxOf returns the maximum of little-endian encoded elements of type dt as
// a float64. Floating-point data goes through vek's SIMD kernels; integer
// data is reduced with the standard library. Empty input is an error.
//
// Backends without a device-side reduction read the view back and call
// MaxOf on the host.
func MaxOf(dt DType, data []byte) (float64, error) {
	values, err := Decode(dt, data)
	if err != nil {
		return 0, err
	}
	n, _ := SliceLen(values)
	if n == 0 {
		return 0, fmt.Errorf("%w: maximum of empty range", ErrInvalidSize)
	}
	switch s := values.(type) {
	case []float32:
		return float64(vek32.Max(s)), nil
	case []float64:
		return vek.Max(s), nil
	case []int32:
		return float64(slices.Max(s)), nil
	case []uint32:
		return float64(slices.Max(s)), nil
	case []int64:
		return float64(slices.Max(s)), nil
	case []uint64:
		return float64(slices.Max(s)), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrTypeMismatch, dt)
}
