package kernel

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/software"
	"github.com/gogpu/particles/devarray"
)

// countingCompiler records every compilation and hands out distinct kernels.
type countingCompiler struct {
	mu       sync.Mutex
	compiled []*compute.KernelSource
	fail     error
}

type fakeKernel struct {
	src      *compute.KernelSource
	released bool
}

func (k *fakeKernel) Name() string                            { return k.src.Name }
func (k *fakeKernel) Source() string                          { return k.src.WGSL(0) }
func (k *fakeKernel) Args() []compute.ArgSpec                 { return k.src.Args }
func (k *fakeKernel) Invoke(compute.Queue, int, ...any) error { return nil }
func (k *fakeKernel) Release()                                { k.released = true }

func (c *countingCompiler) Compile(src *compute.KernelSource) (compute.Kernel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.compiled = append(c.compiled, src)
	return &fakeKernel{src: src}, nil
}

func (c *countingCompiler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.compiled)
}

const fooTemplate = `
{{define "preamble"}}fn foo_helper(v: {{.data_t}}) -> {{.data_t}} { return v; }{{end}}
{{define "foo_args"}}x: array<{{.data_t}}>{{end}}
{{define "foo_src"}}x[i] = x[i] * {{.data_t}}({{.a}}) + {{.data_t}}({{.b}});{{end}}
{{define "bar_args"}}x: array<{{.data_t}}>{{end}}
{{define "one_args"}}x: array<{{.data_t}}>{{end}}
{{define "one_src"}}x[i] = {{.data_t}}({{.a}});{{end}}
`

func newFooCache(t *testing.T, c compute.Compiler, p particles.Precision) *Cache {
	t.Helper()
	tmpl, err := Parse("foo", fooTemplate)
	if err != nil {
		t.Fatal(err)
	}
	kc, err := NewCache(c, tmpl, p)
	if err != nil {
		t.Fatal(err)
	}
	return kc
}

func TestCacheDeduplicates(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)

	k1, err := kc.Kernel("foo", Params{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	k2, err := kc.Kernel("foo", Params{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Error("same name and params returned different kernels")
	}
	if cc.count() != 1 {
		t.Errorf("compiled %d times, want 1", cc.count())
	}

	k3, err := kc.Kernel("foo", Params{"a": 1, "b": 3})
	if err != nil {
		t.Fatal(err)
	}
	if k3 == k1 {
		t.Error("different params returned the same kernel")
	}

	s := kc.Stats()
	if s.Entries != 2 || s.Hits != 1 || s.Misses != 2 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCacheSeparatorsInValuesDoNotCollide(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)

	k1, err := kc.Kernel("one", Params{"a": "1;b=int:2"})
	if err != nil {
		t.Fatal(err)
	}
	k2, err := kc.Kernel("one", Params{"a": "1", "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Error("distinct parameter sets returned the same kernel")
	}
	if cc.count() != 2 {
		t.Errorf("compiled %d times, want 2", cc.count())
	}
	if got := cc.compiled[1].Body; got != "x[i] = f32(1);" {
		t.Errorf("second body = %q", got)
	}
}

func TestCacheRendersWithPrecision(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Double)
	if _, err := kc.Kernel("foo", Params{"a": 2, "b": 0.5}); err != nil {
		t.Fatal(err)
	}
	src := cc.compiled[0]
	if src.Body != "x[i] = x[i] * f64(2) + f64(0.5);" {
		t.Errorf("Body = %q", src.Body)
	}
	if len(src.Args) != 1 || src.Args[0].Type != compute.Float64 {
		t.Errorf("Args = %+v", src.Args)
	}
	if !strings.Contains(src.Preamble, "fn find_cell_id(px: f64") {
		t.Error("preamble lacks the helper library")
	}
	if !strings.HasSuffix(src.Preamble, "fn foo_helper(v: f64) -> f64 { return v; }") {
		t.Errorf("preamble does not end with the family preamble:\n%s", src.Preamble)
	}
	if kc.Preamble() != src.Preamble {
		t.Error("Preamble() differs from the compiled preamble")
	}
}

func TestCacheUnknownKernel(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)
	for _, name := range []string{"nope", "bar"} {
		if _, err := kc.Kernel(name, nil); !errors.Is(err, particles.ErrUnknownKernel) {
			t.Errorf("Kernel(%s) err = %v, want ErrUnknownKernel", name, err)
		}
	}
	if kc.Stats().Entries != 0 {
		t.Error("failed lookup populated the cache")
	}
}

func TestCacheBuildErrorsAreNotCached(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)

	// Missing parameter b.
	if _, err := kc.Kernel("foo", Params{"a": 1}); !errors.Is(err, particles.ErrKernelBuild) {
		t.Errorf("render error = %v, want ErrKernelBuild", err)
	}
	// data_t cannot be overridden.
	if _, err := kc.Kernel("foo", Params{"a": 1, "b": 2, "data_t": "i32"}); !errors.Is(err, particles.ErrKernelBuild) {
		t.Errorf("data_t override err = %v, want ErrKernelBuild", err)
	}

	boom := errors.New("device lost")
	cc.fail = boom
	_, err := kc.Kernel("foo", Params{"a": 1, "b": 2})
	if !errors.Is(err, particles.ErrKernelBuild) || !errors.Is(err, boom) {
		t.Errorf("compile error = %v, want ErrKernelBuild wrapping the backend error", err)
	}
	if kc.Stats().Entries != 0 {
		t.Error("failed build populated the cache")
	}

	cc.fail = nil
	if _, err := kc.Kernel("foo", Params{"a": 1, "b": 2}); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestCacheRelease(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)
	k, _ := kc.Kernel("foo", Params{"a": 1, "b": 2})
	kc.Release()
	if !k.(*fakeKernel).released {
		t.Error("Release did not release compiled kernels")
	}
	if kc.Stats().Entries != 0 {
		t.Error("Release did not empty the cache")
	}
}

func TestCacheLookupAndEntries(t *testing.T) {
	cc := &countingCompiler{}
	kc := newFooCache(t, cc, particles.Single)

	if _, ok := kc.Lookup("foo", Params{"a": 1, "b": 2}); ok {
		t.Fatal("Lookup found a kernel before it was compiled")
	}
	k, err := kc.Kernel("foo", Params{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := kc.Lookup("foo", Params{"b": 2, "a": 1}); !ok || got != k {
		t.Errorf("Lookup = %v, %v; want the compiled kernel", got, ok)
	}
	if _, err := kc.Kernel("one", Params{"a": 5}); err != nil {
		t.Fatal(err)
	}
	if cc.count() != 2 {
		t.Errorf("Lookup compiled: %d compilations, want 2", cc.count())
	}
	if s := kc.Stats(); s.Hits != 0 || s.Misses != 2 {
		t.Errorf("Lookup counted towards Stats: %+v", s)
	}

	entries := kc.Entries()
	want := []Entry{
		{Name: "foo", Key: `"foo"|"a"=int:1;"b"=int:2`},
		{Name: "one", Key: `"one"|"a"=int:5`},
	}
	if !slices.Equal(entries, want) {
		t.Errorf("Entries = %v, want %v", entries, want)
	}
}

func TestSourceIsDeterministic(t *testing.T) {
	kc := newFooCache(t, &countingCompiler{}, particles.Single)
	a, err := kc.Source("foo", Params{"a": 3, "b": 4})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := kc.Source("foo", Params{"b": 4, "a": 3})
	if a.WGSL(64) != b.WGSL(64) {
		t.Error("rendering depends on parameter order")
	}
}

func TestParamsCanonical(t *testing.T) {
	p := Params{"b": 2, "a": 1.0, "c": "x"}
	if got := p.Canonical(); got != `"a"=float64:1;"b"=int:2;"c"=string:"x"` {
		t.Errorf("Canonical = %q", got)
	}
	if Params(nil).Canonical() != "" {
		t.Error("nil params must encode empty")
	}
	if cacheKey("k", Params{"a": 1}) == cacheKey("k", Params{"a": 1.0}) {
		t.Error("int and float parameters share a key")
	}
	collisions := [][2]Params{
		{{"a": "1;b=int:2"}, {"a": "1", "b": 2}},
		{{"a=string:1;b": 2}, {"a": "1", "b": 2}},
		{{"a": `x";"b"=int:2`}, {"a": "x", "b": 2}},
	}
	for _, c := range collisions {
		if c[0].Canonical() == c[1].Canonical() {
			t.Errorf("%v and %v share the key %q", c[0], c[1], c[0].Canonical())
		}
	}
	if cacheKey("a|b", nil) == cacheKey("a", Params{"b": 1}) {
		t.Error("kernel name separator collides")
	}
}

func TestEmbeddedTemplates(t *testing.T) {
	if got := NNPS().Kernels(); !slices.Equal(got, []string{"copy", "fill_pids", "fill_unique_cids", "scale"}) {
		t.Errorf("NNPS kernels = %v", got)
	}
	if !Helpers().Has("get_helpers") {
		t.Error("helper library lacks get_helpers")
	}
	kc, err := NewCache(&countingCompiler{}, NNPS(), particles.Single)
	if err != nil {
		t.Fatal(err)
	}
	for _, dim := range []int{1, 2, 3} {
		src, err := kc.Source("fill_pids", Params{"dim": dim})
		if err != nil {
			t.Fatalf("fill_pids dim %d: %v", dim, err)
		}
		if got := src.ArrayBindings(); got != dim+2 {
			t.Errorf("dim %d: %d array bindings, want %d", dim, got, dim+2)
		}
	}
	if _, err := kc.Source("fill_pids", nil); !errors.Is(err, particles.ErrKernelBuild) {
		t.Errorf("fill_pids without dim err = %v", err)
	}
}

func TestNNPSOnSoftwareBackend(t *testing.T) {
	ctx := software.New()
	RegisterNNPSHost(ctx)
	s, err := particles.NewSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	kc, err := NewSessionCache(s, NNPS())
	if err != nil {
		t.Fatal(err)
	}
	defer kc.Release()

	x, _ := devarray.FromHost(s, []float32{0.1, 1.2, 2.5, 0.4})
	y, _ := devarray.FromHost(s, []float32{0.1, 0.3, 1.7, 1.1})
	keys, _ := devarray.New(s, compute.Uint32, 4)
	pids, _ := devarray.New(s, compute.Uint32, 4)

	k, err := kc.Kernel("fill_pids", Params{"dim": 2})
	if err != nil {
		t.Fatal(err)
	}
	err = k.Invoke(s.Queue(), 4, x, y, keys, pids,
		float32(1), float32(0), float32(0), float32(0), uint32(3), uint32(2), uint32(1))
	if err != nil {
		t.Fatalf("fill_pids: %v", err)
	}
	gotKeys, _ := devarray.Get[uint32](keys)
	if want := []uint32{0, 1, 5, 3}; !slices.Equal(gotKeys, want) {
		t.Errorf("keys = %v, want %v", gotKeys, want)
	}
	gotPids, _ := devarray.Get[uint32](pids)
	if !slices.Equal(gotPids, []uint32{0, 1, 2, 3}) {
		t.Errorf("pids = %v", gotPids)
	}

	sorted, _ := devarray.FromHost(s, []uint32{0, 0, 3, 3, 3, 5})
	cids, _ := devarray.New(s, compute.Uint32, 6)
	uk, err := kc.Kernel("fill_unique_cids", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := uk.Invoke(s.Queue(), 6, sorted, cids); err != nil {
		t.Fatal(err)
	}
	gotCids, _ := devarray.Get[uint32](cids)
	if !slices.Equal(gotCids, []uint32{1, 0, 1, 0, 0, 1}) {
		t.Errorf("cids = %v", gotCids)
	}

	sk, err := kc.Kernel("scale", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sk.Invoke(s.Queue(), x.Len(), x, float32(10)); err != nil {
		t.Fatal(err)
	}
	if m, _ := x.Max(); m != 25 {
		t.Errorf("max after scale = %v, want 25", m)
	}
}
