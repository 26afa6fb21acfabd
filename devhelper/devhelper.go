// Package devhelper keeps the device copies of a particle array's arrays in
// sync with the host.
//
// A Helper holds one devarray.DeviceArray per property and constant of a
// host container. Floating point data is stored in the session's precision
// whatever the host precision is; integer data keeps its type. Properties
// are "managed": they share one logical size and are resized together.
// Constants are uploaded once and never resized.
package devhelper

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/devarray"
	"github.com/gogpu/particles/particle"
)

// Container is the host side of a Helper. *particle.ParticleArray
// implements it.
type Container interface {
	Name() string
	PropertyNames() []string
	ConstantNames() []string
	Lookup(name string) (particle.HostArray, error)
	IsProperty(name string) bool
}

var _ Container = (*particle.ParticleArray)(nil)

// Option configures a Helper.
type Option func(*Helper)

// WithLogger sets the logger of the helper. The default is particles.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(h *Helper) {
		if l != nil {
			h.log = l
		}
	}
}

// Helper manages the device arrays of one host container.
//
// Helper is not safe for concurrent use.
type Helper struct {
	s        *particles.Session
	pa       Container
	arrays   map[string]*devarray.DeviceArray
	props    []string
	alloc    int
	log      *slog.Logger
	ready    bool
	released bool
}

// New uploads every property and constant of pa. A nil session selects
// particles.DefaultSession. All properties must have the same length.
func New(s *particles.Session, pa Container, opts ...Option) (*Helper, error) {
	s, err := particles.Resolve(s)
	if err != nil {
		return nil, err
	}
	h := &Helper{
		s:      s,
		pa:     pa,
		arrays: make(map[string]*devarray.DeviceArray),
		log:    particles.Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	names := append(pa.PropertyNames(), pa.ConstantNames()...)
	for _, name := range names {
		arr, err := pa.Lookup(name)
		if err == nil {
			err = h.AddProp(name, arr)
		}
		if err != nil {
			h.Release()
			return nil, err
		}
	}

	h.alloc = -1
	for _, name := range h.props {
		n := h.arrays[name].Len()
		if h.alloc >= 0 && n != h.alloc {
			h.Release()
			return nil, fmt.Errorf("devhelper: %w: %s.%s has %d elements, expected %d",
				particles.ErrInconsistentSizes, pa.Name(), name, n, h.alloc)
		}
		h.alloc = n
	}
	h.alloc = max(h.alloc, 0)
	h.ready = true

	h.log.Debug("devhelper: arrays uploaded", "container", pa.Name(),
		"properties", len(h.props), "constants", len(h.arrays)-len(h.props),
		"alloc", h.alloc, "float", h.FloatType())
	return h, nil
}

// AddProp uploads arr as name. arr must already be registered on the
// container under name. The device array is sized to arr.Alloc() and its
// live region holds arr's values. An existing device array of that name is
// replaced.
//
// A property must have Alloc() elements when other properties are already
// managed, otherwise AddProp fails with ErrInconsistentSizes. The first
// managed property sets Alloc().
func (h *Helper) AddProp(name string, arr particle.HostArray) error {
	if h.released {
		return particles.ErrReleased
	}
	if _, err := h.pa.Lookup(name); err != nil {
		return fmt.Errorf("devhelper: add %s: %w", name, err)
	}
	if arr == nil {
		return fmt.Errorf("devhelper: add %s: nil host array", name)
	}
	managed := h.pa.IsProperty(name)
	others := slices.ContainsFunc(h.props, func(p string) bool { return p != name })
	if h.ready && managed && others && arr.Len() != h.alloc {
		return fmt.Errorf("devhelper: add %s: %w: %d elements, expected %d",
			name, particles.ErrInconsistentSizes, arr.Len(), h.alloc)
	}

	values, err := h.toDevice(name, arr)
	if err != nil {
		return err
	}
	dt := h.s.Precision().DeviceType(arr.DType())
	da, err := devarray.NewWithCapacity(h.s, dt, arr.Len(), arr.Alloc())
	if err != nil {
		return fmt.Errorf("devhelper: add %s: %w", name, err)
	}
	da.SetName(name)
	if err := da.Set(values); err != nil {
		da.Release()
		return fmt.Errorf("devhelper: add %s: %w", name, err)
	}

	if old, ok := h.arrays[name]; ok {
		old.Release()
	}
	h.arrays[name] = da
	if managed && !slices.Contains(h.props, name) {
		h.props = append(h.props, name)
	}
	if h.ready && managed && !others {
		h.alloc = arr.Len()
	}
	return nil
}

// RemoveProp drops the device array of name. Unknown names are ignored.
func (h *Helper) RemoveProp(name string) {
	if da, ok := h.arrays[name]; ok {
		da.Release()
		delete(h.arrays, name)
	}
	h.props = slices.DeleteFunc(h.props, func(p string) bool { return p == name })
}

// Resize sets the length of every managed property to n, preserving the
// first min(old, n) elements. Constants are untouched.
//
// Storage for all properties is reserved before any length changes, so a
// failed allocation leaves every length as it was.
func (h *Helper) Resize(n int) error {
	if h.released {
		return particles.ErrReleased
	}
	if n < 0 {
		return fmt.Errorf("devhelper: resize: %w: %d", particles.ErrInvalidSize, n)
	}
	for _, name := range h.props {
		if err := h.arrays[name].Reserve(n); err != nil {
			return fmt.Errorf("devhelper: resize %s to %d: %w", name, n, err)
		}
	}
	for _, name := range h.props {
		// Cannot fail: capacity was reserved above.
		_ = h.arrays[name].Resize(n)
	}
	if n != h.alloc {
		h.log.Debug("devhelper: resized", "container", h.pa.Name(), "from", h.alloc, "to", n)
	}
	h.alloc = n
	return nil
}

// Push uploads the host values of the named arrays, or of every array when
// no names are given. Host and device lengths must agree.
func (h *Helper) Push(names ...string) error {
	if h.released {
		return particles.ErrReleased
	}
	if len(names) == 0 {
		names = h.Names()
	}
	var errs []error
	for _, name := range names {
		if err := h.push(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Helper) push(name string) error {
	da, err := h.Array(name)
	if err != nil {
		return err
	}
	arr, err := h.pa.Lookup(name)
	if err != nil {
		return fmt.Errorf("devhelper: push %s: %w", name, err)
	}
	if arr.Len() != da.Len() {
		return fmt.Errorf("devhelper: push %s: %w: host has %d elements, device %d",
			name, particles.ErrInconsistentSizes, arr.Len(), da.Len())
	}
	values, err := h.toDevice(name, arr)
	if err != nil {
		return err
	}
	if err := da.Set(values); err != nil {
		return fmt.Errorf("devhelper: push %s: %w", name, err)
	}
	return nil
}

// Pull downloads the named arrays, or every array when no names are given,
// into the host container. Values are converted back to the host element
// type, and the host length becomes the device length.
func (h *Helper) Pull(names ...string) error {
	if h.released {
		return particles.ErrReleased
	}
	if len(names) == 0 {
		names = h.Names()
	}
	var errs []error
	for _, name := range names {
		if err := h.pull(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Helper) pull(name string) error {
	da, err := h.Array(name)
	if err != nil {
		return err
	}
	arr, err := h.pa.Lookup(name)
	if err != nil {
		return fmt.Errorf("devhelper: pull %s: %w", name, err)
	}
	values, err := da.Get()
	if err != nil {
		return fmt.Errorf("devhelper: pull %s: %w", name, err)
	}
	if values, err = compute.Cast(values, arr.DType()); err != nil {
		return fmt.Errorf("devhelper: pull %s: %w", name, err)
	}
	if err := arr.SetValues(values); err != nil {
		return fmt.Errorf("devhelper: pull %s: %w", name, err)
	}
	return nil
}

// toDevice returns arr's values converted to the device element type.
func (h *Helper) toDevice(name string, arr particle.HostArray) (any, error) {
	values, err := compute.Cast(arr.Values(), h.s.Precision().DeviceType(arr.DType()))
	if err != nil {
		return nil, fmt.Errorf("devhelper: %s: %w", name, err)
	}
	return values, nil
}

// Max returns the largest live element of the named array.
func (h *Helper) Max(name string) (float64, error) {
	da, err := h.Array(name)
	if err != nil {
		return 0, err
	}
	m, err := da.Max()
	if err != nil {
		return 0, fmt.Errorf("devhelper: max %s: %w", name, err)
	}
	return m, nil
}

// Array returns the device array of name.
func (h *Helper) Array(name string) (*devarray.DeviceArray, error) {
	if h.released {
		return nil, particles.ErrReleased
	}
	da, ok := h.arrays[name]
	if !ok {
		return nil, fmt.Errorf("devhelper: %w: %s", particles.ErrUnknownProperty, name)
	}
	return da, nil
}

// View returns the live region of the named array, ready to pass to a
// kernel.
func (h *Helper) View(name string) (compute.View, error) {
	da, err := h.Array(name)
	if err != nil {
		return compute.View{}, err
	}
	return da.View(), nil
}

// Names returns every array name in sorted order.
func (h *Helper) Names() []string {
	return slices.Sorted(maps.Keys(h.arrays))
}

// Properties returns the managed property names in sorted order.
func (h *Helper) Properties() []string {
	return slices.Sorted(slices.Values(h.props))
}

// IsProperty reports whether name is a managed property.
func (h *Helper) IsProperty(name string) bool {
	return slices.Contains(h.props, name)
}

// Alloc returns the shared logical size of the managed properties.
func (h *Helper) Alloc() int { return h.alloc }

// FloatType returns the device element type of floating point data.
func (h *Helper) FloatType() compute.DType { return h.s.Precision().FloatType() }

// Session returns the helper's session.
func (h *Helper) Session() *particles.Session { return h.s }

// Release frees every device array. Host data is untouched. Release is
// idempotent.
func (h *Helper) Release() {
	if h.released {
		return
	}
	for name, da := range h.arrays {
		da.Release()
		delete(h.arrays, name)
	}
	h.props = nil
	h.alloc = 0
	h.released = true
}
