//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/gogpu/naga"
)

// compileSPIRV compiles WGSL source to SPIR-V words, consulting and
// populating the context's store when one is configured.
func (c *Context) compileSPIRV(name, wgsl string) ([]uint32, error) {
	if c.store != nil {
		cached, ok, err := c.store.Get(wgsl)
		if err != nil {
			slogger().Warn("wgpu: spirv store lookup failed", "kernel", name, "err", err)
		} else if ok {
			slogger().Debug("wgpu: spirv store hit", "kernel", name)
			return bytesToWords(cached)
		}
	}

	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if c.store != nil {
		if err := c.store.Put(wgsl, spirvBytes); err != nil {
			slogger().Warn("wgpu: spirv store write failed", "kernel", name, "err", err)
		}
	}
	return bytesToWords(spirvBytes)
}

// bytesToWords converts little-endian SPIR-V bytes to a uint32 slice.
func bytesToWords(spirvBytes []byte) ([]uint32, error) {
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("invalid SPIR-V length %d", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// SPIRVStore persists compiled SPIR-V keyed by the WGSL source it came
// from. It is backed by badger and is safe for concurrent use.
type SPIRVStore struct {
	db *badger.DB
}

// OpenSPIRVStore opens (or creates) a store in dir. An empty dir keeps the
// store in memory, which is mostly useful in tests.
func OpenSPIRVStore(dir string) (*SPIRVStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Use a quiet logger by default
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("wgpu: open spirv store: %w", err)
	}
	return &SPIRVStore{db: db}, nil
}

// spirvKey derives the store key for a WGSL source: a 64-bit xxhash plus
// the source length, which makes accidental collisions between different
// kernels practically impossible.
func spirvKey(wgsl string) []byte {
	return fmt.Appendf(nil, "spirv/%016x/%d", xxhash.Sum64String(wgsl), len(wgsl))
}

// Get returns the SPIR-V stored for wgsl.
func (s *SPIRVStore) Get(wgsl string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(spirvKey(wgsl))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Put stores the SPIR-V compiled from wgsl.
func (s *SPIRVStore) Put(wgsl string, spirv []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(spirvKey(wgsl), spirv)
	})
}

// Close closes the underlying database.
func (s *SPIRVStore) Close() error {
	return s.db.Close()
}
