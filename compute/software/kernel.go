package software

import (
	"fmt"

	"github.com/gogpu/particles/compute"
)

// kernel is a compiled kernel bound to a software context.
type kernel struct {
	ctx  *Context
	src  *compute.KernelSource
	wgsl string
}

func (k *kernel) Name() string            { return k.src.Name }
func (k *kernel) Source() string          { return k.wgsl }
func (k *kernel) Args() []compute.ArgSpec { return k.src.Args }
func (k *kernel) Release()                {}

// Invoke decodes the array arguments, runs the host implementation and
// writes the writable arrays back through q.
func (k *kernel) Invoke(q compute.Queue, n int, args ...any) error {
	fn, ok := k.ctx.hostKernel(k.src.Name)
	if !ok {
		return fmt.Errorf("%w: %s", compute.ErrHostKernelMissing, k.src.Name)
	}
	views, _, err := compute.BindArgs(k.src.Args, n, args)
	if err != nil {
		return fmt.Errorf("software: invoke %s: %w", k.src.Name, err)
	}

	hostArgs := make([]any, len(args))
	arrays := make([]compute.View, len(args))
	next := 0
	for i, spec := range k.src.Args {
		if !spec.Array {
			hostArgs[i] = args[i]
			continue
		}
		v := views[next]
		next++
		arrays[i] = v
		raw, err := q.Read(v)
		if err != nil {
			return fmt.Errorf("software: invoke %s: read %s: %w", k.src.Name, spec.Name, err)
		}
		if hostArgs[i], err = compute.Decode(v.DType, raw); err != nil {
			return err
		}
	}

	if err := fn(n, hostArgs); err != nil {
		return fmt.Errorf("software: %s: %w", k.src.Name, err)
	}

	for i, spec := range k.src.Args {
		if !spec.Array || spec.ReadOnly {
			continue
		}
		data, err := compute.Encode(spec.Type, hostArgs[i])
		if err != nil {
			return fmt.Errorf("software: invoke %s: argument %s: %w", k.src.Name, spec.Name, err)
		}
		if err := q.Write(arrays[i], data); err != nil {
			return fmt.Errorf("software: invoke %s: write %s: %w", k.src.Name, spec.Name, err)
		}
	}
	return nil
}
