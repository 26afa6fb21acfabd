// Package cache provides a generic memo table for values that are expensive
// to build and must be built at most once.
//
// # Memo[K, V]
//
// A thread-safe map that never evicts. GetOrCreate builds a missing value
// under the lock, so concurrent callers asking for the same key wait for
// one build instead of duplicating it. A failed build stores nothing.
//
//	m := cache.New[string, *Pipeline]()
//	p, hit, err := m.GetOrCreate("blur", func() (*Pipeline, error) {
//	    return compile("blur")
//	})
//
// # Thread Safety
//
// Memo is safe for concurrent use and must not be copied after creation.
package cache
