package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func nextWithTimeout[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return v
}

func TestNotifyReachesEverySubscriberInOrder(t *testing.T) {
	b := New[int]()
	first := b.Subscribe()
	second := b.Subscribe()

	for i := 1; i <= 3; i++ {
		b.Notify(i)
	}

	for _, sub := range []*Subscription[int]{first, second} {
		for want := 1; want <= 3; want++ {
			if got := nextWithTimeout(t, sub); got != want {
				t.Fatalf("Next() = %d, want %d", got, want)
			}
		}
	}
}

func TestNotifyWithoutSubscribersIsDropped(t *testing.T) {
	b := New[string]()
	b.Notify("lost")

	sub := b.Subscribe()
	b.Notify("kept")
	if got := nextWithTimeout(t, sub); got != "kept" {
		t.Fatalf("Next() = %q, want %q", got, "kept")
	}
}

func TestDeliverTargetsOneSubscriber(t *testing.T) {
	b := New[string]()
	target := b.Subscribe()
	other := b.Subscribe()

	target.Deliver("private")
	b.Notify("public")

	if got := nextWithTimeout(t, target); got != "private" {
		t.Fatalf("target Next() = %q, want %q", got, "private")
	}
	if got := nextWithTimeout(t, other); got != "public" {
		t.Fatalf("other Next() = %q, want %q", got, "public")
	}
}

func TestCloseSubscriptionStopsDelivery(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}

	sub.Close()
	sub.Close()
	b.Notify(1)

	if b.Len() != 0 {
		t.Fatalf("Len() after close = %d, want 0", b.Len())
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next() error = %v, want ErrClosed", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done() not closed")
	}
}

func TestBroadcasterCloseDrainsQueuedValues(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	b.Notify(7)
	b.Close()
	b.Close()

	if got := nextWithTimeout(t, sub); got != 7 {
		t.Fatalf("Next() = %d, want 7", got)
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next() error = %v, want ErrClosed", err)
	}

	late := b.Subscribe()
	if _, err := late.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("late Next() error = %v, want ErrClosed", err)
	}
}

func TestNextHonorsContext(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want DeadlineExceeded", err)
	}
}

func TestSlowSubscriberConflatesToLatest(t *testing.T) {
	b := New[int](WithBuffer(2))
	slow := b.Subscribe()

	for i := 1; i <= 5; i++ {
		b.Notify(i)
	}

	// 1,2 queued; 3 overflows to [3]; 4 queued; 5 overflows to [5].
	if got := nextWithTimeout(t, slow); got != 5 {
		t.Fatalf("Next() = %d, want 5", got)
	}
	if got := slow.Dropped(); got != 4 {
		t.Fatalf("Dropped() = %d, want 4", got)
	}
}

func TestAllStopsOnBreakAndUnsubscribes(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	for i := range 5 {
		b.Notify(i)
	}

	var got []int
	for v := range sub.All(context.Background()) {
		got = append(got, v)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("All() yielded %v, want [0 1]", got)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after break = %d, want 0", b.Len())
	}
}

func TestAllEndsWhenBroadcasterCloses(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()
	b.Notify(1)
	b.Notify(2)
	b.Close()

	var got []int
	for v := range sub.All(context.Background()) {
		got = append(got, v)
	}
	if len(got) != 2 {
		t.Fatalf("All() yielded %v, want [1 2]", got)
	}
}

func TestConcurrentNotifiersShareOneOrder(t *testing.T) {
	b := New[int](WithBuffer(1000))
	first := b.Subscribe()
	second := b.Subscribe()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Go(func() {
			for i := range 50 {
				b.Notify(w*100 + i)
			}
		})
	}
	wg.Wait()

	for range 200 {
		a := nextWithTimeout(t, first)
		c := nextWithTimeout(t, second)
		if a != c {
			t.Fatalf("subscribers diverged: %d vs %d", a, c)
		}
	}
}

func TestNextWakesOnLateNotify(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe()

	got := make(chan int, 1)
	go func() {
		v, err := sub.Next(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Notify(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("Next() = %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not wake")
	}
}
