package cache

import (
	"strconv"
	"testing"
)

func BenchmarkMemoGet(b *testing.B) {
	m := New[string, int]()
	for i := 0; i < 100; i++ {
		_, _, _ = m.GetOrCreate(strconv.Itoa(i), func() (int, error) { return i, nil })
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get("50")
	}
}

func BenchmarkMemoGetOrCreateHit(b *testing.B) {
	m := New[string, int]()
	keys := make([]string, 100)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = m.GetOrCreate(keys[i%100], func() (int, error) {
			return i, nil
		})
	}
}

func BenchmarkMemoParallel(b *testing.B) {
	m := New[string, int]()
	for i := 0; i < 100; i++ {
		_, _, _ = m.GetOrCreate(strconv.Itoa(i), func() (int, error) { return i, nil })
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Get(strconv.Itoa(i % 100))
			i++
		}
	})
}
