package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/actorspace/internal/services/actors/storage"
)

func TestStoreGetMissing(t *testing.T) {
	store := New()
	_, err := store.Get(context.Background(), storage.Address{Kind: "Counter", Key: "k"}, "counter")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStorePutGetIsolatesBuffers(t *testing.T) {
	store := New()
	ctx := context.Background()
	addr := storage.Address{Kind: "Counter", Key: "k"}

	value := []byte("42")
	if err := store.Put(ctx, addr, "counter", value); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value[0] = '9'

	got, err := store.Get(ctx, addr, "counter")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("Get() = %q, want %q", got, "42")
	}
	got[0] = '7'
	again, _ := store.Get(ctx, addr, "counter")
	if string(again) != "42" {
		t.Fatalf("Get() after caller mutation = %q, want %q", again, "42")
	}
}

func TestStoreScopesByAddressAndName(t *testing.T) {
	store := New()
	ctx := context.Background()
	a := storage.Address{Kind: "Chat", Key: "a"}
	b := storage.Address{Kind: "Chat", Key: "b"}

	if err := store.Put(ctx, a, "chat", []byte("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Get(ctx, b, "chat"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get(other key) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, a, "other"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get(other name) error = %v, want ErrNotFound", err)
	}
}

func TestStoreHonorsCanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Put(ctx, storage.Address{Kind: "Counter", Key: "k"}, "counter", []byte("1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put() error = %v, want context.Canceled", err)
	}
}
