// Package host runs one actor instance: it loads persisted state once,
// applies operations one at a time on a dedicated goroutine, and owns the
// broadcaster the actor publishes events through.
//
// Operations submitted while the state is still loading wait in the mailbox
// and run after load, in the order they were submitted. Reads go through an
// atomic snapshot and never wait on the mailbox.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/platform/timeouts"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	"github.com/louisbranch/actorspace/internal/services/actors/watch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/louisbranch/actorspace/internal/services/actors/host"

// DefaultMailboxSize is the mailbox capacity used when none is configured.
const DefaultMailboxSize = 64

// Phase reports where an instance is in its load lifecycle.
type Phase int32

const (
	PhaseNotLoaded Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotLoaded:
		return "not-loaded"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Config describes one actor instance.
type Config[S any] struct {
	// Address identifies the instance in storage and telemetry.
	Address storage.Address
	// Store persists the instance state.
	Store storage.Store
	// StateName is the record name the state is saved under.
	StateName string
	// Default builds the state used when nothing was persisted yet.
	Default func() S
	// Logger receives lifecycle records. Defaults to slog.Default.
	Logger *slog.Logger
	// MailboxSize bounds how many operations may queue before callers block.
	MailboxSize int
	// SubscriberBuffer bounds each watcher's pending events.
	SubscriberBuffer int
}

type envelope struct {
	ctx    context.Context
	op     string
	run    func(context.Context) error
	result chan error
}

// Instance hosts state S and publishes events E.
type Instance[S, E any] struct {
	addr         storage.Address
	store        storage.Scoped
	stateName    string
	defaultState func() S
	logger       *slog.Logger
	events       *watch.Broadcaster[E]

	tracer trace.Tracer
	ops    metric.Int64Counter

	state atomic.Pointer[S]
	phase atomic.Int32

	loadOnce sync.Once
	loaded   chan struct{}
	loadErr  error

	mailbox  chan envelope
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New validates cfg and returns an instance that has not started loading.
func New[S, E any](cfg Config[S]) (*Instance[S, E], error) {
	if err := cfg.Address.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.StateName == "" {
		return nil, fmt.Errorf("state name is required")
	}
	if cfg.Default == nil {
		cfg.Default = func() S {
			var zero S
			return zero
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mailboxSize := cfg.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}

	ops, err := otel.Meter(instrumentationName).Int64Counter(
		"actor.operations",
		metric.WithDescription("Actor operations processed, by outcome."),
	)
	if err != nil {
		ops = noop.Int64Counter{}
	}

	return &Instance[S, E]{
		addr:         cfg.Address,
		store:        storage.Scope(cfg.Store, cfg.Address),
		stateName:    cfg.StateName,
		defaultState: cfg.Default,
		logger:       logger.With("actor_type", cfg.Address.Kind, "actor_key", cfg.Address.Key),
		events:       watch.New[E](watch.WithBuffer(cfg.SubscriberBuffer)),
		tracer:       otel.Tracer(instrumentationName),
		ops:          ops,
		loaded:       make(chan struct{}),
		mailbox:      make(chan envelope, mailboxSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Address returns the instance identity.
func (i *Instance[S, E]) Address() storage.Address {
	return i.addr
}

// Events returns the broadcaster owned by this instance.
func (i *Instance[S, E]) Events() *watch.Broadcaster[E] {
	return i.events
}

// Phase returns the current load phase.
func (i *Instance[S, E]) Phase() Phase {
	return Phase(i.phase.Load())
}

// Logger returns the instance-scoped logger.
func (i *Instance[S, E]) Logger() *slog.Logger {
	return i.logger
}

// Load starts the instance if needed and waits for its state to load.
// Every caller observes the same outcome.
func (i *Instance[S, E]) Load(ctx context.Context) error {
	i.start(ctx)
	select {
	case <-i.loaded:
		return i.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State waits for load and returns the current state snapshot. Callers must
// not mutate reference types reachable from the snapshot.
func (i *Instance[S, E]) State(ctx context.Context) (S, error) {
	var zero S
	if err := i.Load(ctx); err != nil {
		return zero, err
	}
	select {
	case <-i.stop:
		return zero, i.closedError()
	default:
	}
	return *i.state.Load(), nil
}

// Apply runs mutate against the current state on the executor. When mutate
// reports a change the new state is persisted before it becomes visible; a
// persist failure discards it and leaves the previous state in place.
// commit runs on the executor after a successful apply, so events it
// publishes leave the actor in mutation order.
//
// mutate must treat its input as immutable and return a fresh value for any
// reference type it changes. If ctx ends after the operation was queued the
// caller gets ctx.Err(), but the operation may still run.
func (i *Instance[S, E]) Apply(ctx context.Context, mutate func(S) (S, bool, error), commit func(S)) (S, error) {
	var out S
	err := i.submit(ctx, "apply", func(ctx context.Context) error {
		ctx, span := i.tracer.Start(ctx, "actor.apply", trace.WithAttributes(i.attributes()...))
		defer span.End()

		current := *i.state.Load()
		next, changed, err := mutate(current)
		if err != nil {
			return err
		}
		if changed {
			if err := i.persist(ctx, next); err != nil {
				span.RecordError(err)
				span.SetStatus(otelcodes.Error, "persist failed")
				return err
			}
			i.state.Store(&next)
		} else {
			next = current
		}
		if commit != nil {
			commit(next)
		}
		out = next
		return nil
	})
	if err != nil {
		var zero S
		return zero, err
	}
	return out, nil
}

// Do runs fn on the executor without persisting anything. It serializes
// ephemeral bookkeeping with the instance's mutations.
func (i *Instance[S, E]) Do(ctx context.Context, fn func(S) error) error {
	return i.submit(ctx, "do", func(context.Context) error {
		return fn(*i.state.Load())
	})
}

// Close stops the executor and ends every watcher. Queued operations fail
// with an ACTOR_CLOSED error. Close is idempotent.
func (i *Instance[S, E]) Close() error {
	i.stopOnce.Do(func() { close(i.stop) })
	i.loadOnce.Do(func() {
		i.loadErr = i.closedError()
		close(i.loaded)
		close(i.done)
	})
	<-i.done
	i.events.Close()
	return nil
}

func (i *Instance[S, E]) start(ctx context.Context) {
	i.loadOnce.Do(func() {
		i.phase.Store(int32(PhaseLoading))
		go i.run(context.WithoutCancel(ctx))
	})
}

func (i *Instance[S, E]) run(parent context.Context) {
	defer close(i.done)

	ctx, cancel := context.WithTimeout(parent, timeouts.ActorLoad)
	go func() {
		select {
		case <-i.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	err := i.load(ctx)
	cancel()

	if err != nil {
		i.phase.Store(int32(PhaseFailed))
		i.logger.Error("actor load failed", "error", err)
	} else {
		i.phase.Store(int32(PhaseLoaded))
		i.logger.Debug("actor loaded")
	}
	i.loadErr = err
	close(i.loaded)

	for {
		select {
		case <-i.stop:
			return
		default:
		}
		select {
		case <-i.stop:
			return
		case env := <-i.mailbox:
			i.dispatch(env)
		}
	}
}

func (i *Instance[S, E]) load(ctx context.Context) error {
	ctx, span := i.tracer.Start(ctx, "actor.load", trace.WithAttributes(i.attributes()...))
	defer span.End()

	state := i.defaultState()
	data, err := i.store.Get(ctx, i.stateName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "load failed")
		return apperrors.WrapWithMetadata(apperrors.CodeActorLoadFailed, "load actor state", i.metadata(), err)
	default:
		if err := json.Unmarshal(data, &state); err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, "decode failed")
			return apperrors.WrapWithMetadata(apperrors.CodeActorLoadFailed, "decode actor state", i.metadata(), err)
		}
	}
	i.state.Store(&state)
	return nil
}

func (i *Instance[S, E]) persist(ctx context.Context, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeActorPersistFailed, "encode actor state", i.metadata(), err)
	}
	if err := i.store.Put(ctx, i.stateName, data); err != nil {
		i.logger.Warn("actor persist failed", "error", err)
		return apperrors.WrapWithMetadata(apperrors.CodeActorPersistFailed, "persist actor state", i.metadata(), err)
	}
	return nil
}

func (i *Instance[S, E]) submit(ctx context.Context, op string, run func(context.Context) error) error {
	i.start(ctx)
	select {
	case <-i.stop:
		return i.closedError()
	default:
	}

	env := envelope{ctx: ctx, op: op, run: run, result: make(chan error, 1)}
	select {
	case i.mailbox <- env:
	case <-i.stop:
		return i.closedError()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-i.done:
		select {
		case err := <-env.result:
			return err
		default:
			return i.closedError()
		}
	}
}

func (i *Instance[S, E]) dispatch(env envelope) {
	if i.loadErr != nil {
		env.result <- i.loadErr
		return
	}
	if err := env.ctx.Err(); err != nil {
		env.result <- err
		return
	}

	err := i.safeRun(env)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.ops.Add(env.ctx, 1, metric.WithAttributes(
		attribute.String("actor.type", i.addr.Kind),
		attribute.String("actor.op", env.op),
		attribute.String("outcome", outcome),
	))
	env.result <- err
}

func (i *Instance[S, E]) safeRun(env envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("actor operation panicked", "op", env.op, "panic", r)
			err = apperrors.WithMetadata(apperrors.CodeUnknown, fmt.Sprintf("actor operation panicked: %v", r), i.metadata())
		}
	}()
	return env.run(env.ctx)
}

func (i *Instance[S, E]) closedError() error {
	return apperrors.WithMetadata(apperrors.CodeActorClosed, "actor is closed", i.metadata())
}

func (i *Instance[S, E]) metadata() map[string]string {
	return map[string]string{"actor_type": i.addr.Kind, "actor_key": i.addr.Key}
}

func (i *Instance[S, E]) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("actor.type", i.addr.Kind),
		attribute.String("actor.key", i.addr.Key),
	}
}
