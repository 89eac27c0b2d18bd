// Package watch fans actor events out to live subscribers.
//
// A Broadcaster delivers every value passed to Notify to each subscription
// that is active at that moment, in Notify order. Values notified while no
// one is subscribed are dropped; there is no history or replay. Notify never
// blocks on a slow consumer: each subscription buffers up to a bound, and a
// subscription that falls further behind keeps only the newest value.
package watch

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// DefaultBuffer is the per-subscription bound used when none is configured.
const DefaultBuffer = 256

// ErrClosed is returned by Next once a subscription is closed and drained.
var ErrClosed = errors.New("subscription closed")

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets how many undelivered values each subscription holds before
// it conflates to the latest one. Non-positive values keep the default.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// Broadcaster multicasts values of type T.
type Broadcaster[T any] struct {
	buffer int

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// New creates an empty broadcaster.
func New[T any](opts ...Option) *Broadcaster[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcaster[T]{
		buffer: o.buffer,
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe registers a new subscription. It receives every value notified
// after this call returns. Subscribing to a closed broadcaster yields a
// subscription that is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := newSubscription(b, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.finish()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Notify delivers v to every active subscription.
//
// The lock is held for the whole fan-out so concurrent notifiers are
// observed in the same order by every subscriber.
func (b *Broadcaster[T]) Notify(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(v)
	}
}

// Len reports the number of active subscriptions.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Subscribers still drain values that were
// queued before Close.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.finish()
	}
	clear(b.subs)
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one consumer's view of a Broadcaster.
type Subscription[T any] struct {
	owner *Broadcaster[T]
	limit int

	mu      sync.Mutex
	queue   []T
	dropped uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription[T any](owner *Broadcaster[T], limit int) *Subscription[T] {
	return &Subscription[T]{
		owner: owner,
		limit: limit,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Deliver queues v for this subscription only.
func (s *Subscription[T]) Deliver(v T) {
	s.push(v)
}

// Next blocks until a value is available, the subscription is closed and
// drained (ErrClosed), or ctx ends.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// All yields values until the subscription closes or ctx ends. Breaking out
// of the loop closes the subscription.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				s.Close()
				return
			}
		}
	}
}

// Close unsubscribes. Values already queued remain readable. Close is
// idempotent.
func (s *Subscription[T]) Close() {
	if s.owner != nil {
		s.owner.remove(s)
	}
	s.finish()
}

// Done is closed once the subscription stops receiving values.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Dropped reports how many values were discarded because this subscription
// fell behind its buffer bound.
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.limit > 0 && len(s.queue) >= s.limit {
		s.dropped += uint64(len(s.queue))
		clear(s.queue)
		s.queue = s.queue[:0]
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) finish() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}
