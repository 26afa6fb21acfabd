// Package kernel renders elementwise kernels from templates and caches the
// compiled results.
//
// A Cache is built for one compiler (a compute context) and one precision.
// It renders a shared preamble once, from the helper library and the
// family's "preamble" definition. Kernel returns the compiled kernel for a
// name and parameter set, compiling on first use only; identical requests
// return the identical compute.Kernel whatever the parameter order.
package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/internal/cache"
)

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	helpers *Template
	log     *slog.Logger
}

// WithHelpers replaces the built-in helper library. A nil template disables
// the helper library.
func WithHelpers(t *Template) Option {
	return func(o *cacheOptions) {
		o.helpers = t
	}
}

// WithLogger sets the logger of the cache. The default is particles.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *cacheOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Stats describes cache usage.
type Stats struct {
	// Entries is the number of compiled kernels.
	Entries int
	// Hits is the number of requests served without compiling.
	Hits uint64
	// Misses is the number of requests that compiled (or failed to).
	Misses uint64
}

// Cache compiles and memoizes kernels of one template family.
//
// Cache is safe for concurrent use; concurrent requests for the same kernel
// compile it once.
type Cache struct {
	compiler  compute.Compiler
	tmpl      *Template
	precision particles.Precision
	preamble  string
	kernels   *cache.Memo[string, compute.Kernel]
	log       *slog.Logger
}

// NewCache creates a cache compiling kernels of tmpl with compiler at
// precision p.
func NewCache(compiler compute.Compiler, tmpl *Template, p particles.Precision, opts ...Option) (*Cache, error) {
	if compiler == nil || tmpl == nil {
		return nil, fmt.Errorf("kernel: %w: nil compiler or template", particles.ErrKernelBuild)
	}
	o := cacheOptions{helpers: Helpers(), log: particles.Logger()}
	for _, opt := range opts {
		opt(&o)
	}

	var parts []string
	if o.helpers != nil {
		helpers, err := o.helpers.Render("get_helpers", p, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", particles.ErrKernelBuild, err)
		}
		parts = append(parts, helpers)
	}
	if tmpl.Has("preamble") {
		pre, err := tmpl.Render("preamble", p, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", particles.ErrKernelBuild, err)
		}
		parts = append(parts, pre)
	}

	return &Cache{
		compiler:  compiler,
		tmpl:      tmpl,
		precision: p,
		preamble:  strings.Join(parts, "\n\n"),
		kernels:   cache.New[string, compute.Kernel](),
		log:       o.log,
	}, nil
}

// NewSessionCache creates a cache on the session's context and precision.
// A nil session selects particles.DefaultSession.
func NewSessionCache(s *particles.Session, tmpl *Template, opts ...Option) (*Cache, error) {
	s, err := particles.Resolve(s)
	if err != nil {
		return nil, err
	}
	return NewCache(s.Context(), tmpl, s.Precision(), opts...)
}

// Preamble returns the shared preamble prepended to every kernel.
func (c *Cache) Preamble() string { return c.preamble }

// Precision returns the precision kernels are rendered for.
func (c *Cache) Precision() particles.Precision { return c.precision }

// Source renders the kernel without compiling it.
func (c *Cache) Source(name string, params Params) (*compute.KernelSource, error) {
	if !c.tmpl.Has(name+"_args") || !c.tmpl.Has(name+"_src") {
		return nil, fmt.Errorf("kernel: %w: %s in %s", particles.ErrUnknownKernel, name, c.tmpl.Name())
	}
	args, err := c.tmpl.Render(name+"_args", c.precision, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", particles.ErrKernelBuild, err)
	}
	body, err := c.tmpl.Render(name+"_src", c.precision, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", particles.ErrKernelBuild, err)
	}
	src, err := compute.NewKernelSource(name, c.preamble, args, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", particles.ErrKernelBuild, name, err)
	}
	return src, nil
}

// Kernel returns the compiled kernel for name and params, compiling it on
// the first request. Failures are not cached.
func (c *Cache) Kernel(name string, params Params) (compute.Kernel, error) {
	key := cacheKey(name, params)
	k, hit, err := c.kernels.GetOrCreate(key, func() (compute.Kernel, error) {
		src, err := c.Source(name, params)
		if err != nil {
			return nil, err
		}
		k, err := c.compiler.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: compile %s: %w", particles.ErrKernelBuild, name, err)
		}
		return k, nil
	})
	if err != nil {
		if !errors.Is(err, particles.ErrUnknownKernel) {
			c.log.Warn("kernel: build failed", "kernel", name, "params", params.Canonical(), "err", err)
		}
		return nil, err
	}
	if hit {
		c.log.Debug("kernel: cache hit", "kernel", name, "params", params.Canonical())
	} else {
		c.log.Debug("kernel: compiled", "kernel", name, "params", params.Canonical())
	}
	return k, nil
}

// Lookup returns the compiled kernel for name and params if it is already
// cached. It never compiles and does not count towards Stats.
func (c *Cache) Lookup(name string, params Params) (compute.Kernel, bool) {
	return c.kernels.Get(cacheKey(name, params))
}

// Entry describes one compiled kernel in the cache.
type Entry struct {
	// Name is the kernel name.
	Name string
	// Key is the cache key: the quoted name and the canonical parameters.
	Key string
}

// Entries lists the compiled kernels ordered by key.
func (c *Cache) Entries() []Entry {
	var entries []Entry
	c.kernels.Range(func(key string, k compute.Kernel) bool {
		entries = append(entries, Entry{Name: k.Name(), Key: key})
		return true
	})
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return entries
}

// Stats returns cache usage.
func (c *Cache) Stats() Stats {
	s := c.kernels.Stats()
	return Stats{Entries: s.Len, Hits: s.Hits, Misses: s.Misses}
}

// Release releases every compiled kernel and empties the cache.
func (c *Cache) Release() {
	for _, k := range c.kernels.Clear() {
		k.Release()
	}
}
