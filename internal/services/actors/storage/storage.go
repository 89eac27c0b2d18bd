// Package storage defines the durable key-value contract actors persist
// through.
//
// Values are opaque bytes scoped to one actor instance; the store never
// interprets them and offers no transactions across names.
package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
)

// ErrNotFound indicates the requested name has never been written.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Address identifies one actor instance.
type Address struct {
	Kind string
	Key  string
}

// String renders the address as "kind/key".
func (a Address) String() string {
	return a.Kind + "/" + a.Key
}

// Validate reports whether the address can scope storage.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Kind) == "" {
		return fmt.Errorf("actor kind is required")
	}
	if strings.TrimSpace(a.Key) == "" {
		return apperrors.New(apperrors.CodeActorKeyEmpty, "actor key is required")
	}
	return nil
}

// Store persists named values per actor instance.
type Store interface {
	// Get returns the value stored under name, or ErrNotFound.
	Get(ctx context.Context, addr Address, name string) ([]byte, error)
	// Put replaces the value stored under name.
	Put(ctx context.Context, addr Address, name string, value []byte) error
}

// Scoped is a Store view bound to one actor instance.
type Scoped struct {
	store Store
	addr  Address
}

// Scope binds store to addr.
func Scope(store Store, addr Address) Scoped {
	return Scoped{store: store, addr: addr}
}

// Address returns the bound actor address.
func (s Scoped) Address() Address {
	return s.addr
}

// Get returns the value stored under name for the bound actor.
func (s Scoped) Get(ctx context.Context, name string) ([]byte, error) {
	if s.store == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.store.Get(ctx, s.addr, name)
}

// Put replaces the value stored under name for the bound actor.
func (s Scoped) Put(ctx context.Context, name string, value []byte) error {
	if s.store == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.store.Put(ctx, s.addr, name, value)
}

// ValidateRecord checks the common Get/Put arguments every backend requires.
func ValidateRecord(addr Address, name string) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("record name is required")
	}
	return nil
}
