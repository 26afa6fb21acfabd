package particles

import (
	"fmt"
	"strings"

	"github.com/gogpu/particles/compute"
)

// Precision selects the device representation of floating point data.
type Precision uint8

const (
	// Single stores floats as float32 (f32 in kernels).
	Single Precision = iota

	// Double stores floats as float64 (f64 in kernels). Not every GPU
	// supports f64 storage.
	Double
)

// FloatType returns the device element type of floating point data.
func (p Precision) FloatType() compute.DType {
	if p == Double {
		return compute.Float64
	}
	return compute.Float32
}

// DataType returns the kernel-side name of the float type, the value of
// data_t in kernel templates.
func (p Precision) DataType() string {
	return p.FloatType().WGSL()
}

// DeviceType maps a host element type to its device element type: floats
// follow p, everything else is unchanged.
func (p Precision) DeviceType(host compute.DType) compute.DType {
	if host.IsFloat() {
		return p.FloatType()
	}
	return host
}

func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("Precision(%d)", uint8(p))
	}
}

// ParsePrecision parses "single"/"double" and the float type names.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "float", "float32", "f32", "":
		return Single, nil
	case "double", "float64", "f64":
		return Double, nil
	}
	return Single, fmt.Errorf("%w: unknown precision %q", ErrTypeMismatch, s)
}
