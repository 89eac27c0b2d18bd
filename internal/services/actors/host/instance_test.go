package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/services/actors/storage"
	"github.com/louisbranch/actorspace/internal/services/actors/storage/memory"
)

var testAddr = storage.Address{Kind: "Counter", Key: "test"}

// gatedStore blocks Get until release is closed and can fail Get or Put.
type gatedStore struct {
	*memory.Store
	release chan struct{}

	mu      sync.Mutex
	getErr  error
	putErr  error
	getCall int
}

func newGatedStore() *gatedStore {
	return &gatedStore{Store: memory.New(), release: make(chan struct{})}
}

func (s *gatedStore) Get(ctx context.Context, addr storage.Address, name string) ([]byte, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	s.getCall++
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, addr, name)
}

func (s *gatedStore) Put(ctx context.Context, addr storage.Address, name string, value []byte) error {
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, addr, name, value)
}

func (s *gatedStore) setPutErr(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

func newTestInstance(t *testing.T, store storage.Store) *Instance[int64, int64] {
	t.Helper()
	inst, err := New[int64, int64](Config[int64]{
		Address:   testAddr,
		Store:     store,
		StateName: "counter",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Close() })
	return inst
}

func add(delta int64) func(int64) (int64, bool, error) {
	return func(n int64) (int64, bool, error) {
		return n + delta, true, nil
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config[int]
	}{
		{name: "missing key", cfg: Config[int]{Address: storage.Address{Kind: "Counter"}, Store: memory.New(), StateName: "c"}},
		{name: "missing store", cfg: Config[int]{Address: testAddr, StateName: "c"}},
		{name: "missing state name", cfg: Config[int]{Address: testAddr, Store: memory.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New[int, int](tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadInstallsDefaultWhenAbsent(t *testing.T) {
	inst, err := New[[]string, struct{}](Config[[]string]{
		Address:   storage.Address{Kind: "Chat", Key: "room"},
		Store:     memory.New(),
		StateName: "chat",
		Default:   func() []string { return []string{} },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer inst.Close()

	if inst.Phase() != PhaseNotLoaded {
		t.Fatalf("Phase() = %v, want %v", inst.Phase(), PhaseNotLoaded)
	}
	state, err := inst.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state == nil || len(state) != 0 {
		t.Fatalf("State() = %#v, want empty slice", state)
	}
	if inst.Phase() != PhaseLoaded {
		t.Fatalf("Phase() = %v, want %v", inst.Phase(), PhaseLoaded)
	}
}

func TestLoadRestoresPersistedState(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first := newTestInstance(t, store)
	for range 3 {
		if _, err := first.Apply(ctx, add(1), nil); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	_ = first.Close()

	second := newTestInstance(t, store)
	got, err := second.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if got != 3 {
		t.Fatalf("State() = %d, want 3", got)
	}
}

func TestOperationsQueuedDuringLoadRunInOrder(t *testing.T) {
	store := newGatedStore()
	inst := newTestInstance(t, store)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []int64
	)
	results := make(chan error, 5)
	for n := range int64(5) {
		go func() {
			_, err := inst.Apply(ctx, func(s int64) (int64, bool, error) {
				return s*10 + n, true, nil
			}, func(int64) {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
			})
			results <- err
		}()
		// Let each caller reach the mailbox before the next one starts.
		deadline := time.Now().Add(time.Second)
		for len(inst.mailbox) < int(n)+1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	if inst.Phase() != PhaseLoading {
		t.Fatalf("Phase() = %v, want %v", inst.Phase(), PhaseLoading)
	}
	close(store.release)

	for range 5 {
		if err := <-results; err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != int64(i) {
			t.Fatalf("commit order = %v, want 0..4", order)
		}
	}
	state, _ := inst.State(ctx)
	if state != 1234 {
		t.Fatalf("State() = %d, want 1234", state)
	}
}

func TestApplyIsSerialized(t *testing.T) {
	inst := newTestInstance(t, memory.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if _, err := inst.Apply(ctx, add(1), nil); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		})
	}
	wg.Wait()

	got, err := inst.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if got != 50 {
		t.Fatalf("State() = %d, want 50", got)
	}
}

func TestPersistFailureKeepsPreviousState(t *testing.T) {
	store := newGatedStore()
	close(store.release)
	inst := newTestInstance(t, store)
	ctx := context.Background()

	if _, err := inst.Apply(ctx, add(1), nil); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	store.setPutErr(errors.New("disk full"))
	committed := false
	_, err := inst.Apply(ctx, add(1), func(int64) { committed = true })
	if !apperrors.HasCode(err, apperrors.CodeActorPersistFailed) {
		t.Fatalf("Apply() error = %v, want %s", err, apperrors.CodeActorPersistFailed)
	}
	if committed {
		t.Fatal("commit ran after persist failure")
	}
	if got, _ := inst.State(ctx); got != 1 {
		t.Fatalf("State() after failure = %d, want 1", got)
	}

	store.setPutErr(nil)
	got, err := inst.Apply(ctx, add(1), nil)
	if err != nil {
		t.Fatalf("Apply() after recovery error = %v", err)
	}
	if got != 2 {
		t.Fatalf("Apply() after recovery = %d, want 2", got)
	}
}

func TestUnchangedApplySkipsPersistButCommits(t *testing.T) {
	store := newGatedStore()
	close(store.release)
	inst := newTestInstance(t, store)
	store.setPutErr(errors.New("must not persist"))

	committed := false
	got, err := inst.Apply(context.Background(), func(n int64) (int64, bool, error) {
		return n + 100, false, nil
	}, func(int64) { committed = true })
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != 0 {
		t.Fatalf("Apply() = %d, want unchanged 0", got)
	}
	if !committed {
		t.Fatal("commit did not run")
	}
}

func TestMutationErrorIsReturned(t *testing.T) {
	inst := newTestInstance(t, memory.New())
	wantErr := errors.New("invalid")
	_, err := inst.Apply(context.Background(), func(int64) (int64, bool, error) {
		return 0, false, wantErr
	}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Apply() error = %v, want %v", err, wantErr)
	}
}

func TestLoadFailureFailsEveryOperation(t *testing.T) {
	store := newGatedStore()
	store.getErr = errors.New("store unreachable")
	close(store.release)
	inst := newTestInstance(t, store)
	ctx := context.Background()

	err := inst.Load(ctx)
	if !apperrors.HasCode(err, apperrors.CodeActorLoadFailed) {
		t.Fatalf("Load() error = %v, want %s", err, apperrors.CodeActorLoadFailed)
	}
	if inst.Phase() != PhaseFailed {
		t.Fatalf("Phase() = %v, want %v", inst.Phase(), PhaseFailed)
	}
	if _, err := inst.Apply(ctx, add(1), nil); !apperrors.HasCode(err, apperrors.CodeActorLoadFailed) {
		t.Fatalf("Apply() error = %v, want %s", err, apperrors.CodeActorLoadFailed)
	}
	if _, err := inst.State(ctx); !apperrors.HasCode(err, apperrors.CodeActorLoadFailed) {
		t.Fatalf("State() error = %v, want %s", err, apperrors.CodeActorLoadFailed)
	}
	if store.getCall != 1 {
		t.Fatalf("store Get calls = %d, want 1", store.getCall)
	}
}

func TestCorruptStateFailsLoad(t *testing.T) {
	store := memory.New()
	if err := store.Put(context.Background(), testAddr, "counter", []byte("not json")); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	inst := newTestInstance(t, store)
	if err := inst.Load(context.Background()); !apperrors.HasCode(err, apperrors.CodeActorLoadFailed) {
		t.Fatalf("Load() error = %v, want %s", err, apperrors.CodeActorLoadFailed)
	}
}

func TestLoadHonorsCallerContext(t *testing.T) {
	inst := newTestInstance(t, newGatedStore())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := inst.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Load() error = %v, want DeadlineExceeded", err)
	}
}

func TestCloseFailsLaterOperations(t *testing.T) {
	inst := newTestInstance(t, memory.New())
	ctx := context.Background()
	sub := inst.Events().Subscribe()

	if err := inst.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := inst.Apply(ctx, add(1), nil); !apperrors.HasCode(err, apperrors.CodeActorClosed) {
		t.Fatalf("Apply() error = %v, want %s", err, apperrors.CodeActorClosed)
	}
	if err := inst.Do(ctx, func(int64) error { return nil }); !apperrors.HasCode(err, apperrors.CodeActorClosed) {
		t.Fatalf("Do() error = %v, want %s", err, apperrors.CodeActorClosed)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription not closed with instance")
	}
}

func TestCloseDuringLoad(t *testing.T) {
	inst := newTestInstance(t, newGatedStore())
	errs := make(chan error, 1)
	go func() {
		_, err := inst.Apply(context.Background(), add(1), nil)
		errs <- err
	}()
	deadline := time.Now().Add(time.Second)
	for inst.Phase() != PhaseLoading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	_ = inst.Close()
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("Apply() succeeded on a closed instance")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Apply() did not return after Close")
	}
}

func TestPanicInOperationKeepsActorUsable(t *testing.T) {
	inst := newTestInstance(t, memory.New())
	ctx := context.Background()

	err := inst.Do(ctx, func(int64) error { panic("boom") })
	if err == nil {
		t.Fatal("Do() error = nil, want panic error")
	}
	if _, err := inst.Apply(ctx, add(1), nil); err != nil {
		t.Fatalf("Apply() after panic error = %v", err)
	}
}

func TestPhaseString(t *testing.T) {
	if got := PhaseLoaded.String(); got != "loaded" {
		t.Fatalf("String() = %q, want %q", got, "loaded")
	}
}
