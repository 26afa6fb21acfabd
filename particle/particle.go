// Package particle provides the host-side particle container.
//
// A ParticleArray owns named host arrays of two kinds: properties, which
// have one element per particle and are resized together, and constants,
// which have a fixed size. Names are unique across both kinds.
package particle

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/particles"
)

// ParticleArray is a named set of per-particle properties and constants.
//
// ParticleArray is not safe for concurrent mutation.
type ParticleArray struct {
	name       string
	properties map[string]HostArray
	constants  map[string]HostArray
}

// New creates an empty particle array.
func New(name string) *ParticleArray {
	return &ParticleArray{
		name:       name,
		properties: make(map[string]HostArray),
		constants:  make(map[string]HostArray),
	}
}

// Name returns the array name.
func (pa *ParticleArray) Name() string { return pa.name }

// AddProperty registers a per-particle property. A name already used by a
// constant is rejected; an existing property is replaced.
func (pa *ParticleArray) AddProperty(name string, arr HostArray) error {
	if err := pa.checkAdd(name, arr, pa.constants); err != nil {
		return err
	}
	pa.properties[name] = arr
	return nil
}

// AddConstant registers a constant. A name already used by a property is
// rejected; an existing constant is replaced.
func (pa *ParticleArray) AddConstant(name string, arr HostArray) error {
	if err := pa.checkAdd(name, arr, pa.properties); err != nil {
		return err
	}
	pa.constants[name] = arr
	return nil
}

func (pa *ParticleArray) checkAdd(name string, arr HostArray, other map[string]HostArray) error {
	if name == "" || arr == nil {
		return fmt.Errorf("particle: %s: empty name or nil array", pa.name)
	}
	if _, clash := other[name]; clash {
		return fmt.Errorf("particle: %s: %q is already registered with another kind", pa.name, name)
	}
	return nil
}

// Remove drops a property or constant. Unknown names are ignored.
func (pa *ParticleArray) Remove(name string) {
	delete(pa.properties, name)
	delete(pa.constants, name)
}

// Property returns the named property.
func (pa *ParticleArray) Property(name string) (HostArray, bool) {
	arr, ok := pa.properties[name]
	return arr, ok
}

// Constant returns the named constant.
func (pa *ParticleArray) Constant(name string) (HostArray, bool) {
	arr, ok := pa.constants[name]
	return arr, ok
}

// Lookup returns the named property or constant.
func (pa *ParticleArray) Lookup(name string) (HostArray, error) {
	if arr, ok := pa.properties[name]; ok {
		return arr, nil
	}
	if arr, ok := pa.constants[name]; ok {
		return arr, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", particles.ErrUnknownProperty, pa.name, name)
}

// IsProperty reports whether name is a property (not a constant).
func (pa *ParticleArray) IsProperty(name string) bool {
	_, ok := pa.properties[name]
	return ok
}

// PropertyNames returns the property names in sorted order.
func (pa *ParticleArray) PropertyNames() []string {
	return slices.Sorted(maps.Keys(pa.properties))
}

// ConstantNames returns the constant names in sorted order.
func (pa *ParticleArray) ConstantNames() []string {
	return slices.Sorted(maps.Keys(pa.constants))
}

// NumParticles returns the common length of the properties. It is 0 when
// there are none.
func (pa *ParticleArray) NumParticles() (int, error) {
	n := -1
	for _, name := range pa.PropertyNames() {
		l := pa.properties[name].Len()
		if n >= 0 && l != n {
			return 0, fmt.Errorf("%w: %s.%s has %d elements, expected %d",
				particles.ErrInconsistentSizes, pa.name, name, l, n)
		}
		n = l
	}
	return max(n, 0), nil
}

// Resize sets the length of every property to n. Constants are untouched.
func (pa *ParticleArray) Resize(n int) error {
	for _, name := range pa.PropertyNames() {
		r, ok := pa.properties[name].(resizer)
		if !ok {
			return fmt.Errorf("particle: %s.%s cannot be resized", pa.name, name)
		}
		if err := r.Resize(n); err != nil {
			return fmt.Errorf("particle: %s.%s: %w", pa.name, name, err)
		}
	}
	return nil
}
