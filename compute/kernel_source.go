package compute

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DefaultWorkgroupSize is the workgroup width used when a backend does not
// configure one.
const DefaultWorkgroupSize = 64

// paramsVar is the storage variable holding n and all scalar arguments.
const paramsVar = "kernel_params"

// reserved identifiers injected by the generated entry point.
var reserved = map[string]bool{"i": true, "n": true, "gid": true, "nwg": true, paramsVar: true}

// KernelSource is the rendered, backend-neutral description of an
// elementwise kernel.
type KernelSource struct {
	// Name is the entry point name. It must be a valid identifier.
	Name string

	// Preamble holds helper functions shared by a kernel family.
	Preamble string

	// Arguments is the rendered argument list; Args is its parsed form.
	Arguments string
	Args      []ArgSpec

	// Body runs once per index. The index is available as i (u32) and
	// the launch size as n.
	Body string
}

// NewKernelSource parses arguments and returns a ready-to-compile source.
func NewKernelSource(name, preamble, arguments, body string) (*KernelSource, error) {
	if !isIdent(name) {
		return nil, fmt.Errorf("compute: invalid kernel name %q", name)
	}
	args, err := ParseArgs(arguments)
	if err != nil {
		return nil, err
	}
	return &KernelSource{
		Name:      name,
		Preamble:  preamble,
		Arguments: arguments,
		Args:      args,
		Body:      body,
	}, nil
}

// ParseArgs parses a comma separated argument list. Each item has the form
//
//	[readonly] name: array<T>
//	name: T
//
// where T is a WGSL scalar type (f32, f64, i32, u32, i64, u64).
func ParseArgs(list string) ([]ArgSpec, error) {
	var specs []ArgSpec
	seen := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		var spec ArgSpec
		if rest, ok := strings.CutPrefix(item, "readonly "); ok {
			spec.ReadOnly = true
			item = strings.TrimSpace(rest)
		}
		name, typ, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("compute: argument %q: missing type", item)
		}
		spec.Name = strings.TrimSpace(name)
		typ = strings.TrimSpace(typ)
		if !isIdent(spec.Name) || reserved[spec.Name] {
			return nil, fmt.Errorf("compute: invalid argument name %q", spec.Name)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("compute: duplicate argument %q", spec.Name)
		}
		seen[spec.Name] = true
		if inner, ok := strings.CutPrefix(typ, "array<"); ok {
			inner, ok = strings.CutSuffix(inner, ">")
			if !ok {
				return nil, fmt.Errorf("compute: argument %q: malformed type %q", spec.Name, typ)
			}
			spec.Array = true
			typ = strings.TrimSpace(inner)
		} else if spec.ReadOnly {
			return nil, fmt.Errorf("compute: argument %q: readonly applies to arrays only", spec.Name)
		}
		dt, err := ParseDType(typ)
		if err != nil {
			return nil, fmt.Errorf("compute: argument %q: %w", spec.Name, err)
		}
		spec.Type = dt
		specs = append(specs, spec)
	}
	return specs, nil
}

// ArrayBindings returns the number of array arguments, which is also the
// binding index of the parameter block.
func (s *KernelSource) ArrayBindings() int {
	count := 0
	for _, a := range s.Args {
		if a.Array {
			count++
		}
	}
	return count
}

// WGSL assembles a complete compute shader. Array arguments are bound in
// declaration order starting at binding 0; n and the scalar arguments live
// in a read-only storage struct bound after the arrays. Launches wider than
// one dispatch dimension wrap into y, see [Workgroups].
func (s *KernelSource) WGSL(workgroupSize int) string {
	if workgroupSize <= 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	var b strings.Builder
	if s.Preamble != "" {
		b.WriteString(strings.TrimRight(s.Preamble, "\n"))
		b.WriteString("\n\n")
	}

	binding := 0
	for _, a := range s.Args {
		if !a.Array {
			continue
		}
		access := "read_write"
		if a.ReadOnly {
			access = "read"
		}
		fmt.Fprintf(&b, "@group(0) @binding(%d) var<storage, %s> %s: array<%s>;\n",
			binding, access, a.Name, a.Type.WGSL())
		binding++
	}

	b.WriteString("\nstruct KernelParams {\n    n: u32,\n")
	for _, a := range s.Args {
		if !a.Array {
			fmt.Fprintf(&b, "    %s: %s,\n", a.Name, a.Type.WGSL())
		}
	}
	b.WriteString("};\n")
	fmt.Fprintf(&b, "@group(0) @binding(%d) var<storage, read> %s: KernelParams;\n\n", binding, paramsVar)

	fmt.Fprintf(&b, "@compute @workgroup_size(%d)\n", workgroupSize)
	fmt.Fprintf(&b, "fn %s(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) nwg: vec3<u32>) {\n", s.Name)
	fmt.Fprintf(&b, "    let i = gid.x + gid.y * nwg.x * %du;\n", workgroupSize)
	fmt.Fprintf(&b, "    let n = %s.n;\n", paramsVar)
	b.WriteString("    if (i >= n) {\n        return;\n    }\n")
	for _, a := range s.Args {
		if !a.Array {
			fmt.Fprintf(&b, "    let %s = %s.%s;\n", a.Name, paramsVar, a.Name)
		}
	}
	for _, line := range strings.Split(strings.Trim(s.Body, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("    ")
		b.WriteString(strings.TrimRight(line, " \t"))
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// Viewer is implemented by array types that can be passed to Invoke
// directly instead of a raw View.
type Viewer interface {
	View() View
}

// BindArgs validates invocation arguments against specs. It returns the
// array views in binding order and the encoded parameter block (n followed
// by the scalars, laid out with WGSL storage alignment).
func BindArgs(specs []ArgSpec, n int, args []any) ([]View, []byte, error) {
	if n < 0 || uint64(n) > uint64(^uint32(0)) {
		return nil, nil, fmt.Errorf("%w: launch size %d", ErrInvalidSize, n)
	}
	if len(args) != len(specs) {
		return nil, nil, fmt.Errorf("%w: kernel takes %d arguments, got %d", ErrTypeMismatch, len(specs), len(args))
	}

	var views []View
	params := make([]byte, 4, 16)
	binary.LittleEndian.PutUint32(params, uint32(n)) //nolint:gosec // range checked above
	maxAlign := 4

	for i, spec := range specs {
		arg := args[i]
		if spec.Array {
			var v View
			switch a := arg.(type) {
			case View:
				v = a
			case Viewer:
				v = a.View()
			default:
				return nil, nil, fmt.Errorf("%w: argument %q wants a device array, got %T", ErrTypeMismatch, spec.Name, arg)
			}
			if v.DType != spec.Type {
				return nil, nil, fmt.Errorf("%w: argument %q wants array<%s>, got %s", ErrTypeMismatch, spec.Name, spec.Type.WGSL(), v.DType)
			}
			if v.Len < n {
				return nil, nil, fmt.Errorf("%w: argument %q has %d elements, launch needs %d", ErrOutOfRange, spec.Name, v.Len, n)
			}
			views = append(views, v)
			continue
		}

		data, err := Encode(spec.Type, arg)
		if err != nil {
			return nil, nil, fmt.Errorf("argument %q: %w", spec.Name, err)
		}
		align := spec.Type.Size()
		maxAlign = max(maxAlign, align)
		for len(params)%align != 0 {
			params = append(params, 0)
		}
		params = append(params, data...)
	}
	for len(params)%maxAlign != 0 {
		params = append(params, 0)
	}
	return views, params, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// MaxWorkgroupsPerDimension is the WebGPU default limit on workgroups per
// dispatch dimension.
const MaxWorkgroupsPerDimension = 65535

// Workgroups returns the dispatch grid covering n items with the given
// workgroup width. The x dimension is capped at MaxWorkgroupsPerDimension;
// generated kernels flatten (x, y) back into the index i.
func Workgroups(n, workgroupSize int) (x, y uint32) {
	if n <= 0 {
		return 0, 0
	}
	if workgroupSize <= 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	groups := (n + workgroupSize - 1) / workgroupSize
	gx := min(groups, MaxWorkgroupsPerDimension)
	gy := (groups + gx - 1) / gx
	return uint32(gx), uint32(gy) //nolint:gosec // bounded by the dispatch limit
}
