package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Priority is an in-memory work queue ordered by (priority, enqueued_at)
// ascending, with the same per-target dedup guard as FIFO. Lower priority
// values dequeue first; ties preserve arrival order.
type Priority struct {
	mu      sync.Mutex
	heap    entryHeap
	seq     uint64
	pending map[string]struct{}
	signal  chan struct{}
}

// NewPriority constructs an empty priority queue.
func NewPriority() *Priority {
	return &Priority{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds item unless its target is already pending. It reports whether
// the item was accepted.
func (q *Priority) Enqueue(item *Item) bool {
	if item == nil {
		return false
	}
	q.mu.Lock()
	if _, dup := q.pending[item.Target]; dup {
		q.mu.Unlock()
		return false
	}
	q.pending[item.Target] = struct{}{}
	q.seq++
	heap.Push(&q.heap, &entry{item: item, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the lowest-ordered item, blocking up to wait (or
// until ctx is cancelled) when the queue is empty.
func (q *Priority) Pop(ctx context.Context, wait time.Duration) (*Item, bool) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(*entry)
			delete(q.pending, e.item.Target)
			q.mu.Unlock()
			return e.item, true
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
func (q *Priority) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// IsPending reports whether target currently has a queued item.
func (q *Priority) IsPending(target string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[target]
	return ok
}

type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
