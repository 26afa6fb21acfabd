package kernel

import (
	"fmt"
	"math"

	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/software"
)

// HostRegistry accepts host implementations of kernels.
// *software.Context implements it.
type HostRegistry interface {
	RegisterHostKernel(name string, fn software.HostKernel)
}

var _ HostRegistry = (*software.Context)(nil)

// RegisterNNPSHost registers host implementations of the NNPS kernel family
// so it runs on the software backend.
func RegisterNNPSHost(r HostRegistry) {
	r.RegisterHostKernel("fill_pids", hostFillPIDs)
	r.RegisterHostKernel("fill_unique_cids", hostFillUniqueCIDs)
	r.RegisterHostKernel("scale", hostScale)
	r.RegisterHostKernel("copy", hostCopy)
}

func hostFillPIDs(n int, args []any) error {
	switch args[0].(type) {
	case []float32:
		return fillPIDs[float32](n, args)
	case []float64:
		return fillPIDs[float64](n, args)
	}
	return fmt.Errorf("%w: fill_pids on %T", compute.ErrTypeMismatch, args[0])
}

// fillPIDs expects dim coordinate arrays, then keys, pids, cell_size,
// xmin, ymin, zmin, ncx, ncy, ncz.
func fillPIDs[T float32 | float64](n int, args []any) error {
	dim := 0
	for dim < len(args) {
		if _, ok := args[dim].([]T); !ok {
			break
		}
		dim++
	}
	if dim == 0 || dim > 3 || len(args) != dim+9 {
		return fmt.Errorf("%w: fill_pids: unexpected arguments", compute.ErrTypeMismatch)
	}
	keys := args[dim].([]uint32)
	pids := args[dim+1].([]uint32)
	cellSize := float64(args[dim+2].(T))
	mins := [3]float64{float64(args[dim+3].(T)), float64(args[dim+4].(T)), float64(args[dim+5].(T))}
	ncx, ncy := args[dim+6].(uint32), args[dim+7].(uint32)

	for i := range n {
		var cid [3]uint32
		for d := range dim {
			pos := float64(args[d].([]T)[i]) - mins[d]
			cid[d] = uint32(int32(math.Floor(pos / cellSize))) //nolint:gosec // mirrors the device conversion
		}
		keys[i] = cid[0] + ncx*(cid[1]+ncy*cid[2])
		pids[i] = uint32(i) //nolint:gosec // launch size fits u32
	}
	return nil
}

func hostFillUniqueCIDs(n int, args []any) error {
	keys, ok1 := args[0].([]uint32)
	cids, ok2 := args[1].([]uint32)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: fill_unique_cids", compute.ErrTypeMismatch)
	}
	for i := range n {
		if i == 0 || keys[i] != keys[i-1] {
			cids[i] = 1
		} else {
			cids[i] = 0
		}
	}
	return nil
}

func hostScale(n int, args []any) error {
	switch x := args[0].(type) {
	case []float32:
		f := args[1].(float32)
		for i := range n {
			x[i] *= f
		}
	case []float64:
		f := args[1].(float64)
		for i := range n {
			x[i] *= f
		}
	default:
		return fmt.Errorf("%w: scale on %T", compute.ErrTypeMismatch, args[0])
	}
	return nil
}

func hostCopy(n int, args []any) error {
	switch src := args[0].(type) {
	case []float32:
		copy(args[1].([]float32)[:n], src[:n])
	case []float64:
		copy(args[1].([]float64)[:n], src[:n])
	default:
		return fmt.Errorf("%w: copy on %T", compute.ErrTypeMismatch, args[0])
	}
	return nil
}
