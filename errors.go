package particles

import (
	"errors"

	"github.com/gogpu/particles/compute"
)

// Errors returned across the module. Callers match them with errors.Is;
// every layer wraps and never replaces them.
var (
	// ErrInvalidSize is returned for negative or malformed sizes.
	ErrInvalidSize = compute.ErrInvalidSize

	// ErrTypeMismatch is returned when element types disagree or a value
	// cannot be cast to the device representation.
	ErrTypeMismatch = compute.ErrTypeMismatch

	// ErrUnknownProperty is returned for a property name the synchronizer
	// or particle array does not know.
	ErrUnknownProperty = errors.New("particles: unknown property")

	// ErrUnknownKernel is returned when a template has no definition for
	// the requested kernel.
	ErrUnknownKernel = errors.New("particles: unknown kernel")

	// ErrInconsistentSizes is returned when managed properties disagree on
	// their length.
	ErrInconsistentSizes = errors.New("particles: inconsistent property sizes")

	// ErrKernelBuild is returned when rendering or compiling a kernel fails.
	ErrKernelBuild = errors.New("particles: kernel build failed")

	// ErrNoBackend is returned when no compute backend can be opened.
	ErrNoBackend = errors.New("particles: no compute backend")

	// ErrReleased is returned when a released array or helper is used.
	ErrReleased = errors.New("particles: use after release")
)
