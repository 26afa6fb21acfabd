package kernel

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/gogpu/particles"
)

//go:embed templates/*.wgsl.tmpl
var templateFS embed.FS

// dataTypeKey is the template variable holding the device float type.
const dataTypeKey = "data_t"

// Template is a parsed kernel template. A kernel family template defines
// "preamble" plus "<kernel>_args" and "<kernel>_src" for each kernel; a
// helper library defines "get_helpers".
type Template struct {
	name string
	t    *template.Template
}

// Parse parses template text.
func Parse(name, text string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("kernel: parse %s: %w", name, err)
	}
	return &Template{name: name, t: t}, nil
}

// ParseFS parses the template file at path in fsys.
func ParseFS(fsys fs.FS, path string) (*Template, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("kernel: read %s: %w", path, err)
	}
	return Parse(path, string(data))
}

var (
	helpersOnce = sync.OnceValue(func() *Template { return mustEmbedded("helpers.wgsl.tmpl") })
	nnpsOnce    = sync.OnceValue(func() *Template { return mustEmbedded("nnps.wgsl.tmpl") })
)

func mustEmbedded(file string) *Template {
	t, err := ParseFS(templateFS, "templates/"+file)
	if err != nil {
		panic(err)
	}
	return t
}

// Helpers returns the built-in helper library (find_cell_id, flatten,
// unflatten).
func Helpers() *Template { return helpersOnce() }

// NNPS returns the built-in neighbour search kernel family: fill_pids,
// fill_unique_cids, scale and copy.
func NNPS() *Template { return nnpsOnce() }

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Has reports whether the template defines def.
func (t *Template) Has(def string) bool {
	return t.t.Lookup(def) != nil
}

// Kernels returns the names of the kernels the template defines, that is
// every name with both an _args and a _src definition.
func (t *Template) Kernels() []string {
	var names []string
	for _, d := range t.t.Templates() {
		if base, ok := strings.CutSuffix(d.Name(), "_args"); ok && t.Has(base+"_src") {
			names = append(names, base)
		}
	}
	slices.Sort(names)
	return names
}

// Render executes def with data_t set from p and params as the remaining
// variables. Rendering is a pure function of its inputs.
func (t *Template) Render(def string, p particles.Precision, params Params) (string, error) {
	tmpl := t.t.Lookup(def)
	if tmpl == nil {
		return "", fmt.Errorf("kernel: %s has no definition %q", t.name, def)
	}
	if _, ok := params[dataTypeKey]; ok {
		return "", fmt.Errorf("kernel: %q is reserved", dataTypeKey)
	}
	data := make(map[string]any, len(params)+1)
	maps.Copy(data, params)
	data[dataTypeKey] = p.DataType()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("kernel: render %s: %w", def, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
