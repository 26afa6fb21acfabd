package particle

import (
	"fmt"
	"slices"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
)

// HostArray is a typed, growable host array as seen by the device layer.
//
// Values returns the live elements as a typed slice ([]float64, []int32,
// ...). SetValues replaces them: the length becomes the number of values and
// the allocation grows if needed.
type HostArray interface {
	DType() compute.DType
	Len() int
	Alloc() int
	Values() any
	SetValues(values any) error
}

// Array is a HostArray of element type T. The allocation is the capacity of
// the underlying slice.
type Array[T compute.Number] struct {
	data []T
}

var _ HostArray = (*Array[float64])(nil)

// NewArray creates an array of n zero elements.
func NewArray[T compute.Number](n int) *Array[T] {
	return &Array[T]{data: make([]T, n)}
}

// NewArrayWithAlloc creates an array of n zero elements with room for alloc.
func NewArrayWithAlloc[T compute.Number](n, alloc int) *Array[T] {
	return &Array[T]{data: make([]T, n, max(n, alloc))}
}

// FromSlice creates an array holding a copy of values.
func FromSlice[T compute.Number](values []T) *Array[T] {
	return &Array[T]{data: slices.Clone(values)}
}

// DType returns the element type.
func (a *Array[T]) DType() compute.DType { return compute.DTypeFor[T]() }

// Len returns the number of live elements.
func (a *Array[T]) Len() int { return len(a.data) }

// Alloc returns the allocated capacity.
func (a *Array[T]) Alloc() int { return cap(a.data) }

// Values returns the live elements as a []T. The slice aliases the array.
func (a *Array[T]) Values() any { return a.data }

// Slice returns the live elements. The slice aliases the array.
func (a *Array[T]) Slice() []T { return a.data }

// SetValues replaces the contents with values. Numeric slices of another
// element type are converted.
func (a *Array[T]) SetValues(values any) error {
	if v, ok := values.([]T); ok {
		a.Set(v)
		return nil
	}
	cast, err := compute.Cast(values, a.DType())
	if err != nil {
		return fmt.Errorf("particle: %w", err)
	}
	a.Set(cast.([]T))
	return nil
}

// Set replaces the contents with a copy of values.
func (a *Array[T]) Set(values []T) {
	if len(values) > cap(a.data) {
		a.data = make([]T, len(values))
	}
	a.data = a.data[:len(values)]
	copy(a.data, values)
}

// Reserve grows the allocation to at least n.
func (a *Array[T]) Reserve(n int) {
	if n > cap(a.data) {
		a.data = slices.Grow(a.data, n-len(a.data))
	}
}

// Resize sets the length to n. New elements are zero.
func (a *Array[T]) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("particle: %w: resize to %d", particles.ErrInvalidSize, n)
	}
	old := len(a.data)
	a.Reserve(n)
	a.data = a.data[:n]
	if n > old {
		clear(a.data[old:])
	}
	return nil
}

// Append adds values at the end.
func (a *Array[T]) Append(values ...T) {
	a.data = append(a.data, values...)
}

// resizer is implemented by host arrays that can change length.
type resizer interface {
	Resize(n int) error
}
