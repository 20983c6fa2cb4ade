// Package serialexec provides a per-key serial executor: operations
// submitted under the same key run one at a time in submission order,
// while distinct keys proceed concurrently. Queues are created lazily
// and evicted as soon as their last operation finishes, so idle keys
// hold no memory.
package serialexec

import (
	"context"
	"sync"
)

type Executor struct {
	mu    sync.Mutex
	tails map[string]*entry
}

type entry struct {
	done chan struct{}
}

func New() *Executor {
	return &Executor{tails: map[string]*entry{}}
}

// Do runs fn after every previously submitted operation for key has
// completed. An error from fn propagates to this caller only; the
// queue stays usable for subsequent operations. Context cancellation
// while waiting still preserves ordering: the slot is released in
// order, fn is just never invoked.
func (e *Executor) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	prev := e.tails[key]
	cur := &entry{done: make(chan struct{})}
	e.tails[key] = cur
	e.mu.Unlock()

	defer func() {
		close(cur.done)
		e.mu.Lock()
		if e.tails[key] == cur {
			delete(e.tails, key)
		}
		e.mu.Unlock()
	}()

	if prev != nil {
		<-prev.done
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// PendingKeys reports how many keys currently have live queues.
func (e *Executor) PendingKeys() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tails)
}
