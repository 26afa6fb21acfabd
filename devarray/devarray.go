// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package devarray provides DeviceArray, a growable typed array in device
// memory.
//
// A DeviceArray separates its logical length from the allocated capacity so
// that the particle count can fluctuate without reallocating every step.
// Growth is exact-fit: Reserve(n) allocates exactly n elements. Callers that
// grow one element at a time should batch growth themselves.
//
// Views returned by View and Data become stale after any operation that
// reallocates (Reserve, Resize beyond capacity) and must be fetched again.
package devarray

import (
	"fmt"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
)

// DefaultMinCapacity is the capacity of arrays created with a smaller
// length. Some backends reject zero-size allocations.
const DefaultMinCapacity = 16

// DeviceArray is a typed device buffer with a length/capacity split.
//
// DeviceArray is not safe for concurrent mutation.
type DeviceArray struct {
	s        *particles.Session
	name     string
	dtype    compute.DType
	id       compute.BufferID
	length   int
	capacity int
	released bool
}

// New creates an array of length zeroed elements. A nil session selects
// particles.DefaultSession.
func New(s *particles.Session, dt compute.DType, length int) (*DeviceArray, error) {
	return NewWithCapacity(s, dt, length, 0)
}

// NewWithCapacity creates an array of length zeroed elements backed by at
// least capacity elements (and never fewer than DefaultMinCapacity).
func NewWithCapacity(s *particles.Session, dt compute.DType, length, capacity int) (*DeviceArray, error) {
	if length < 0 || capacity < 0 {
		return nil, fmt.Errorf("devarray: %w: length %d, capacity %d", particles.ErrInvalidSize, length, capacity)
	}
	if !dt.Valid() {
		return nil, fmt.Errorf("devarray: %w: %s", particles.ErrTypeMismatch, dt)
	}
	s, err := particles.Resolve(s)
	if err != nil {
		return nil, err
	}

	a := &DeviceArray{s: s, name: "devarray", dtype: dt}
	a.capacity = max(length, capacity, DefaultMinCapacity)
	if a.id, err = s.Context().Alloc(s.Label(a.name), dt, a.capacity); err != nil {
		return nil, fmt.Errorf("devarray: alloc %d x %s: %w", a.capacity, dt, err)
	}
	a.length = length
	return a, nil
}

// FromHost creates an array holding a copy of values, a typed slice such as
// []float32. The array's type is the slice's element type.
func FromHost(s *particles.Session, values any) (*DeviceArray, error) {
	dt, ok := compute.DTypeOf(values)
	if !ok {
		return nil, fmt.Errorf("devarray: %w: %T", particles.ErrTypeMismatch, values)
	}
	n, err := compute.SliceLen(values)
	if err != nil {
		return nil, fmt.Errorf("devarray: %w", err)
	}
	a, err := New(s, dt, n)
	if err != nil {
		return nil, err
	}
	if err := a.Set(values); err != nil {
		a.Release()
		return nil, err
	}
	return a, nil
}

// SetName sets the name used in buffer labels of future allocations.
func (a *DeviceArray) SetName(name string) { a.name = name }

// DType returns the element type.
func (a *DeviceArray) DType() compute.DType { return a.dtype }

// Len returns the logical length.
func (a *DeviceArray) Len() int { return a.length }

// Cap returns the allocated capacity.
func (a *DeviceArray) Cap() int { return a.capacity }

// Session returns the session the array was created on.
func (a *DeviceArray) Session() *particles.Session { return a.s }

// View returns the live region, the first Len elements. It can be passed
// directly as a kernel argument.
func (a *DeviceArray) View() compute.View {
	return compute.View{Buffer: a.id, DType: a.dtype, Len: a.length}
}

// Data returns the whole backing storage, Cap elements.
func (a *DeviceArray) Data() compute.View {
	return compute.View{Buffer: a.id, DType: a.dtype, Len: a.capacity}
}

// Reserve grows the capacity to exactly n elements if n exceeds it,
// preserving the current storage contents. It is a no-op otherwise.
func (a *DeviceArray) Reserve(n int) error {
	if a.released {
		return particles.ErrReleased
	}
	if n < 0 {
		return fmt.Errorf("devarray: reserve: %w: %d", particles.ErrInvalidSize, n)
	}
	if n <= a.capacity {
		return nil
	}

	ctx := a.s.Context()
	id, err := ctx.Alloc(a.s.Label(a.name), a.dtype, n)
	if err != nil {
		return fmt.Errorf("devarray: reserve %d x %s: %w", n, a.dtype, err)
	}
	dst := compute.View{Buffer: id, DType: a.dtype, Len: a.capacity}
	if err := a.s.Queue().Copy(dst, a.Data()); err != nil {
		ctx.Free(id)
		return fmt.Errorf("devarray: reserve: copy: %w", err)
	}
	particles.Logger().Debug("devarray: reallocated",
		"name", a.name, "dtype", a.dtype, "from", a.capacity, "to", n)
	ctx.Free(a.id)
	a.id = id
	a.capacity = n
	return nil
}

// Resize sets the logical length to n, growing the capacity to exactly n
// if needed. Elements up to min(old length, n) are preserved.
func (a *DeviceArray) Resize(n int) error {
	if err := a.Reserve(n); err != nil {
		return err
	}
	a.length = n
	return nil
}

// Fill sets every live element to value, which must have exactly the
// array's Go element type (float32 for a Float32 array, and so on).
func (a *DeviceArray) Fill(value any) error {
	if a.released {
		return particles.ErrReleased
	}
	elem, err := compute.Encode(a.dtype, value)
	if err != nil {
		return fmt.Errorf("devarray: fill: %w", err)
	}
	if a.length == 0 {
		return nil
	}
	return a.s.Queue().Fill(a.View(), elem)
}

// Copy returns a new array with independent storage holding the same live
// elements.
func (a *DeviceArray) Copy() (*DeviceArray, error) {
	if a.released {
		return nil, particles.ErrReleased
	}
	c, err := New(a.s, a.dtype, a.length)
	if err != nil {
		return nil, err
	}
	c.name = a.name
	if a.length > 0 {
		if err := a.s.Queue().Copy(c.View(), a.View()); err != nil {
			c.Release()
			return nil, fmt.Errorf("devarray: copy: %w", err)
		}
	}
	return c, nil
}

// Set uploads values, a typed slice of exactly the array's element type and
// length, into the live region.
func (a *DeviceArray) Set(values any) error {
	if a.released {
		return particles.ErrReleased
	}
	n, err := compute.SliceLen(values)
	if err != nil {
		return fmt.Errorf("devarray: set: %w", err)
	}
	if n != a.length {
		return fmt.Errorf("devarray: set: %w: %d values for length %d", particles.ErrInvalidSize, n, a.length)
	}
	data, err := compute.Encode(a.dtype, values)
	if err != nil {
		return fmt.Errorf("devarray: set: %w", err)
	}
	return a.s.Queue().Write(a.View(), data)
}

// Get downloads the live region into a new typed slice.
func (a *DeviceArray) Get() (any, error) {
	if a.released {
		return nil, particles.ErrReleased
	}
	data, err := a.s.Queue().Read(a.View())
	if err != nil {
		return nil, fmt.Errorf("devarray: get: %w", err)
	}
	return compute.Decode(a.dtype, data)
}

// Max returns the largest live element. An empty array is an error.
func (a *DeviceArray) Max() (float64, error) {
	if a.released {
		return 0, particles.ErrReleased
	}
	if a.length == 0 {
		return 0, fmt.Errorf("devarray: max: %w: empty array", particles.ErrInvalidSize)
	}
	return a.s.Queue().Max(a.View())
}

// Release frees the device storage. Further use returns ErrReleased.
// Release is idempotent.
func (a *DeviceArray) Release() {
	if a.released {
		return
	}
	a.s.Context().Free(a.id)
	a.released = true
	a.length, a.capacity = 0, 0
	a.id = compute.InvalidBuffer
}

// Get is a typed convenience wrapper around DeviceArray.Get.
func Get[T compute.Number](a *DeviceArray) ([]T, error) {
	if want := compute.DTypeFor[T](); want != a.dtype {
		return nil, fmt.Errorf("devarray: %w: %s array read as %s", particles.ErrTypeMismatch, a.dtype, want)
	}
	v, err := a.Get()
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}
