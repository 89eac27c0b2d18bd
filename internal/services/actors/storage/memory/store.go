// Package memory provides a process-local Store for tests and ephemeral
// deployments.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/louisbranch/actorspace/internal/services/actors/storage"
)

type recordKey struct {
	addr storage.Address
	name string
}

// Store keeps values in a map guarded by a mutex. Values are copied on the
// way in and out so callers never share backing arrays with the store.
type Store struct {
	mu      sync.RWMutex
	records map[recordKey][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[recordKey][]byte)}
}

// Get returns the stored value or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, addr storage.Address, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	value, ok := s.records[recordKey{addr: addr, name: name}]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(value), nil
}

// Put replaces the stored value.
func (s *Store) Put(ctx context.Context, addr storage.Address, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return err
	}

	s.mu.Lock()
	s.records[recordKey{addr: addr, name: name}] = slices.Clone(value)
	s.mu.Unlock()
	return nil
}

// Close is a no-op kept so the store satisfies the same lifecycle as the
// file-backed backends.
func (s *Store) Close() error {
	return nil
}

var _ storage.Store = (*Store)(nil)
