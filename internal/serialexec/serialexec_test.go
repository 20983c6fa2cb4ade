package serialexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDoSameKeyRunsInOrder(t *testing.T) {
	exec := New()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	release := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = exec.Do(ctx, "client-1", func(ctx context.Context) error {
			<-release
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		})
	}()

	// Give the first operation time to take the head of the queue.
	time.Sleep(20 * time.Millisecond)

	for i := 2; i <= 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Do(ctx, "client-1", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Stagger submissions so call order is well defined.
		time.Sleep(10 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("operation count mismatch: got %d want 5", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("order mismatch at %d: got %v", i, order)
		}
	}
}

func TestDoNoLostUpdate(t *testing.T) {
	exec := New()
	ctx := context.Background()

	items := map[string][]string{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Do(ctx, "client-1", func(ctx context.Context) error {
				// Read-modify-write without extra locking: the executor
				// is the only synchronization here on purpose.
				list := items["client-1"]
				items["client-1"] = append(list, fmt.Sprintf("item-%d", i))
				return nil
			})
		}()
	}
	wg.Wait()

	if got := len(items["client-1"]); got != 50 {
		t.Fatalf("lost updates: got %d items want 50", got)
	}
}

func TestDoDistinctKeysRunConcurrently(t *testing.T) {
	exec := New()
	ctx := context.Background()

	aEntered := make(chan struct{})
	bDone := make(chan struct{})
	go func() {
		_ = exec.Do(ctx, "a", func(ctx context.Context) error {
			close(aEntered)
			<-bDone
			return nil
		})
	}()

	<-aEntered
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, "b", func(ctx context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do(b) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("operation on key b blocked behind key a")
	}
	close(bDone)
}

func TestDoErrorDoesNotCorruptQueue(t *testing.T) {
	exec := New()
	ctx := context.Background()
	boom := errors.New("boom")

	if err := exec.Do(ctx, "k", func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ran := false
	if err := exec.Do(ctx, "k", func(ctx context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("Do() after error = %v", err)
	}
	if !ran {
		t.Fatalf("queue unusable after failed operation")
	}
}

func TestIdleQueuesAreEvicted(t *testing.T) {
	exec := New()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("client-%d", i)
		if err := exec.Do(ctx, key, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if got := exec.PendingKeys(); got != 0 {
		t.Fatalf("idle queues retained: got %d want 0", got)
	}
}
