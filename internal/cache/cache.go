package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces a fresh payload for a Result cache.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Result memoizes one expensive aggregate computation with a TTL.
// Concurrent callers during a miss share a single recomputation, and
// Invalidate unconditionally clears the entry so the next read recomputes.
type Result[T any] struct {
	ttl     time.Duration
	compute ComputeFunc[T]
	now     func() time.Time

	mu         sync.Mutex
	payload    T
	computedAt time.Time
	valid      bool

	group singleflight.Group
}

// NewResult constructs a cache around compute with the given TTL.
func NewResult[T any](ttl time.Duration, compute ComputeFunc[T]) *Result[T] {
	return &Result[T]{ttl: ttl, compute: compute, now: time.Now}
}

// Get returns the cached payload while its age is below the TTL, otherwise
// recomputes. forceRefresh bypasses the freshness check entirely. Failed
// recomputations are not cached.
func (r *Result[T]) Get(ctx context.Context, forceRefresh bool) (T, error) {
	if !forceRefresh {
		if payload, ok := r.fresh(); ok {
			return payload, nil
		}
	}

	value, err, _ := r.group.Do("result", func() (any, error) {
		// A caller that queued behind an in-flight recomputation can use its
		// result; only a force refresh insists on computing again.
		if !forceRefresh {
			if payload, ok := r.fresh(); ok {
				return payload, nil
			}
		}
		payload, err := r.compute(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		r.mu.Lock()
		r.payload = payload
		r.computedAt = r.now()
		r.valid = true
		r.mu.Unlock()
		return payload, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// Invalidate clears the entry unconditionally. It is a no-op when empty.
func (r *Result[T]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.payload = zero
	r.computedAt = time.Time{}
	r.valid = false
}

// Age returns the current entry's age and whether an entry exists.
func (r *Result[T]) Age() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid {
		return 0, false
	}
	return r.now().Sub(r.computedAt), true
}

func (r *Result[T]) fresh() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.valid && r.now().Sub(r.computedAt) < r.ttl {
		return r.payload, true
	}
	var zero T
	return zero, false
}
