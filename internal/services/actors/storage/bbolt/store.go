// Package bbolt implements the actor Store on BoltDB.
//
// Each actor kind gets its own bucket; records are keyed by
// "<actor key>\x00<name>" so keys containing slashes stay unambiguous.
package bbolt

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/louisbranch/actorspace/internal/platform/timeouts"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	"go.etcd.io/bbolt"
)

const rootBucket = "actors"

// Store provides a BoltDB-backed actor state store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: timeouts.StoreOpen})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under name for addr.
func (s *Store) Get(ctx context.Context, addr storage.Address, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return fmt.Errorf("actors bucket is missing")
		}
		kind := root.Bucket([]byte(addr.Kind))
		if kind == nil {
			return storage.ErrNotFound
		}
		payload := kind.Get(recordKey(addr.Key, name))
		if payload == nil {
			return storage.ErrNotFound
		}
		// Bolt memory is only valid inside the transaction.
		value = bytes.Clone(payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put replaces the value stored under name for addr.
func (s *Store) Put(ctx context.Context, addr storage.Address, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := storage.ValidateRecord(addr, name); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return fmt.Errorf("actors bucket is missing")
		}
		kind, err := root.CreateBucketIfNotExists([]byte(addr.Kind))
		if err != nil {
			return fmt.Errorf("create %s bucket: %w", addr.Kind, err)
		}
		if err := kind.Put(recordKey(addr.Key, name), value); err != nil {
			return fmt.Errorf("put actor state %s/%s: %w", addr, name, err)
		}
		return nil
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(rootBucket)); err != nil {
			return fmt.Errorf("create actors bucket: %w", err)
		}
		return nil
	})
}

func recordKey(key string, name string) []byte {
	return []byte(key + "\x00" + name)
}

var _ storage.Store = (*Store)(nil)
