package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoGetOrCreate(t *testing.T) {
	m := New[string, int]()
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := m.GetOrCreate("a", create)
	if err != nil || v != 42 || hit {
		t.Fatalf("first GetOrCreate = %d, %v, %v", v, hit, err)
	}
	v, hit, err = m.GetOrCreate("a", create)
	if err != nil || v != 42 || !hit {
		t.Fatalf("second GetOrCreate = %d, %v, %v", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	if got, ok := m.Get("a"); !ok || got != 42 {
		t.Errorf("Get(a) = %d, %v", got, ok)
	}
	if _, ok := m.Get("b"); ok {
		t.Error("Get(b) found a value")
	}

	s := m.Stats()
	if s.Len != 1 || s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestMemoFailedCreateStoresNothing(t *testing.T) {
	m := New[string, int]()
	boom := errors.New("boom")
	if _, _, err := m.GetOrCreate("a", func() (int, error) { return 1, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after failed create", m.Len())
	}
	v, hit, err := m.GetOrCreate("a", func() (int, error) { return 2, nil })
	if err != nil || hit || v != 2 {
		t.Errorf("retry = %d, %v, %v", v, hit, err)
	}
}

func TestMemoNeverEvicts(t *testing.T) {
	m := New[int, int]()
	for i := range 10000 {
		_, _, _ = m.GetOrCreate(i, func() (int, error) { return i, nil })
	}
	if m.Len() != 10000 {
		t.Errorf("Len = %d, want 10000", m.Len())
	}
	count := 0
	m.Range(func(k, v int) bool {
		if k != v {
			t.Errorf("entry %d = %d", k, v)
		}
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Range visited %d entries, want to stop at 10", count)
	}
}

func TestMemoClear(t *testing.T) {
	m := New[string, int]()
	_, _, _ = m.GetOrCreate("a", func() (int, error) { return 1, nil })
	_, _, _ = m.GetOrCreate("b", func() (int, error) { return 2, nil })
	removed := m.Clear()
	if len(removed) != 2 {
		t.Errorf("Clear returned %d values", len(removed))
	}
	if s := m.Stats(); s.Len != 0 || s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Stats after Clear = %+v", s)
	}
}

func TestMemoConcurrentCreateOnce(t *testing.T) {
	m := New[string, int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = m.GetOrCreate("k", func() (int, error) {
				calls.Add(1)
				return 7, nil
			})
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("create ran %d times, want 1", calls.Load())
	}
}
