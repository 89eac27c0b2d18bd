// Package counter implements a shared integer that watchers can follow.
package counter

import (
	"context"

	"github.com/louisbranch/actorspace/internal/services/actors/directory"
	"github.com/louisbranch/actorspace/internal/services/actors/host"
	"github.com/louisbranch/actorspace/internal/services/actors/watch"
)

const (
	// Kind is the directory name of the counter actor.
	Kind = "Counter"
	// StateName is the record the count is persisted under.
	StateName = "counter"
	// GlobalKey is the well-known instance shared by every caller.
	GlobalKey = "GLOBAL_COUNTER"
)

// Counter is a persisted integer. Every change is published to watchers as
// the new value.
type Counter struct {
	inst *host.Instance[int64, int64]
}

// New builds an unloaded counter.
func New(env directory.Env) (*Counter, error) {
	inst, err := host.New[int64, int64](host.Config[int64]{
		Address:          env.Address,
		Store:            env.Store,
		StateName:        StateName,
		Logger:           env.Logger,
		MailboxSize:      env.MailboxSize,
		SubscriberBuffer: env.SubscriberBuffer,
	})
	if err != nil {
		return nil, err
	}
	return &Counter{inst: inst}, nil
}

// Factory adapts New for directory registration.
func Factory(env directory.Env) (directory.Actor, error) {
	return New(env)
}

// Load reads the persisted count.
func (c *Counter) Load(ctx context.Context) error {
	return c.inst.Load(ctx)
}

// Close stops the counter and ends its watchers.
func (c *Counter) Close() error {
	return c.inst.Close()
}

// Increment adds one and returns the new value.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	return c.add(ctx, 1)
}

// Decrement subtracts one and returns the new value.
func (c *Counter) Decrement(ctx context.Context) (int64, error) {
	return c.add(ctx, -1)
}

// Count returns the current value.
func (c *Counter) Count(ctx context.Context) (int64, error) {
	return c.inst.State(ctx)
}

// Watch subscribes to value changes made after the call.
func (c *Counter) Watch() *watch.Subscription[int64] {
	return c.inst.Events().Subscribe()
}

func (c *Counter) add(ctx context.Context, delta int64) (int64, error) {
	return c.inst.Apply(ctx, func(n int64) (int64, bool, error) {
		return n + delta, true, nil
	}, c.inst.Events().Notify)
}
