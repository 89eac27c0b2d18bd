// Package directory resolves actor addresses to loaded instances.
//
// Each (kind, key) pair maps to at most one live actor per process. The first
// Resolve creates and loads it; concurrent callers share that load. An actor
// whose load fails is closed and forgotten so the next Resolve retries.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	"golang.org/x/sync/singleflight"
)

// Actor is the lifecycle every hosted actor exposes to the directory.
type Actor interface {
	Load(ctx context.Context) error
	Close() error
}

// Env carries what a factory needs to build one actor.
type Env struct {
	Address          storage.Address
	Store            storage.Store
	Logger           *slog.Logger
	MailboxSize      int
	SubscriberBuffer int
}

// Factory builds an unloaded actor for env.Address.
type Factory func(env Env) (Actor, error)

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger handed to actors.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMailboxSize sets the per-actor mailbox capacity.
func WithMailboxSize(n int) Option {
	return func(d *Directory) {
		d.mailboxSize = n
	}
}

// WithSubscriberBuffer sets the per-watcher event buffer.
func WithSubscriberBuffer(n int) Option {
	return func(d *Directory) {
		d.subscriberBuffer = n
	}
}

// Directory owns the lifetime of every actor it resolves.
type Directory struct {
	store            storage.Store
	logger           *slog.Logger
	mailboxSize      int
	subscriberBuffer int

	mu        sync.RWMutex
	factories map[string]Factory
	actors    map[storage.Address]Actor
	closed    bool

	group singleflight.Group
}

// New creates an empty directory persisting through store.
func New(store storage.Store, opts ...Option) *Directory {
	d := &Directory{
		store:     store,
		logger:    slog.Default(),
		factories: make(map[string]Factory),
		actors:    make(map[storage.Address]Actor),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds kind to factory. Registering a kind twice replaces the
// factory for actors resolved afterward.
func (d *Directory) Register(kind string, factory Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[kind] = factory
}

// Kinds returns the number of registered kinds.
func (d *Directory) Kinds() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.factories)
}

// Resolve returns the loaded actor for (kind, key), creating it on first use.
func (d *Directory) Resolve(ctx context.Context, kind string, key string) (Actor, error) {
	addr := storage.Address{Kind: kind, Key: key}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	actor, ok := d.actors[addr]
	factory, known := d.factories[kind]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, apperrors.New(apperrors.CodeActorClosed, "directory is closed")
	}
	if ok {
		return actor, nil
	}
	if !known {
		return nil, apperrors.WithMetadata(apperrors.CodeActorKindUnknown, "unknown actor kind", map[string]string{"actor_type": kind})
	}

	ch := d.group.DoChan(addr.String(), func() (any, error) {
		return d.create(context.WithoutCancel(ctx), addr, factory)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Actor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Directory) create(ctx context.Context, addr storage.Address, factory Factory) (Actor, error) {
	d.mu.RLock()
	actor, ok := d.actors[addr]
	d.mu.RUnlock()
	if ok {
		return actor, nil
	}

	actor, err := factory(Env{
		Address:          addr,
		Store:            d.store,
		Logger:           d.logger,
		MailboxSize:      d.mailboxSize,
		SubscriberBuffer: d.subscriberBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("create actor %s: %w", addr, err)
	}
	if err := actor.Load(ctx); err != nil {
		_ = actor.Close()
		d.logger.Warn("actor evicted after load failure", "actor_type", addr.Kind, "actor_key", addr.Key, "error", err)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		_ = actor.Close()
		return nil, apperrors.New(apperrors.CodeActorClosed, "directory is closed")
	}
	d.actors[addr] = actor
	return actor, nil
}

// Len reports how many actors are loaded.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.actors)
}

// Close closes every loaded actor. Later Resolve calls fail.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	actors := d.actors
	d.actors = make(map[storage.Address]Actor)
	d.mu.Unlock()

	var errs []error
	for addr, actor := range actors {
		if err := actor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close actor %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// Get resolves (kind, key) and asserts the actor type.
func Get[A Actor](ctx context.Context, d *Directory, kind string, key string) (A, error) {
	var zero A
	actor, err := d.Resolve(ctx, kind, key)
	if err != nil {
		return zero, err
	}
	typed, ok := actor.(A)
	if !ok {
		return zero, fmt.Errorf("actor %s/%s has type %T", kind, key, actor)
	}
	return typed, nil
}
