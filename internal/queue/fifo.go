package queue

import (
	"context"
	"sync"
	"time"
)

// FIFO is an in-memory work queue with a per-target dedup guard: a target has
// at most one pending item until it is dequeued. The guard is cleared at
// dequeue time, so an event arriving while an action is already executing
// yields exactly one fresh follow-up item.
type FIFO struct {
	mu      sync.Mutex
	items   []*Item
	pending map[string]struct{}
	signal  chan struct{}
}

// NewFIFO constructs an empty FIFO queue.
func NewFIFO() *FIFO {
	return &FIFO{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds item unless its target is already pending. It reports whether
// the item was accepted.
func (q *FIFO) Enqueue(item *Item) bool {
	if item == nil {
		return false
	}
	q.mu.Lock()
	if _, dup := q.pending[item.Target]; dup {
		q.mu.Unlock()
		return false
	}
	q.pending[item.Target] = struct{}{}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
	return true
}

// Pop removes and returns the oldest item, blocking up to wait (or until ctx
// is cancelled) when the queue is empty. The second result reports whether
// an item was returned.
func (q *FIFO) Pop(ctx context.Context, wait time.Duration) (*Item, bool) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			delete(q.pending, item.Target)
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-q.signal:
		}
	}
}

// Depth returns the number of pending items.
func (q *FIFO) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsPending reports whether target currently has a queued item.
func (q *FIFO) IsPending(target string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[target]
	return ok
}

func (q *FIFO) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
