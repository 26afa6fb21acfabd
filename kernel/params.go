package kernel

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Params parameterize a kernel rendering.
type Params map[string]any

// Canonical returns an order-independent encoding of p used as a cache key.
// Keys and string values are quoted so separators inside them cannot
// collide with another parameter set. Values are tagged with their Go type
// so that 1 and 1.0 differ.
func (p Params) Canonical() string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(p)) {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%q=%T:%#v", k, p[k], p[k])
	}
	return b.String()
}

// cacheKey identifies a compiled kernel.
func cacheKey(name string, p Params) string {
	return strconv.Quote(name) + "|" + p.Canonical()
}
