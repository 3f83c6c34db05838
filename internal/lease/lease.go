package lease

import (
	"context"
	"sync"
	"time"
)

// Lease is a named exclusive lease guarding single-flight execution of an
// action. TryAcquire with a zero timeout fails immediately when another
// holder is present; a positive timeout polls until the lease frees up or
// the timeout elapses. Release is idempotent.
//
// Implementations must release automatically when the holding process dies;
// the file-backed implementation gets this from the kernel's advisory lock
// semantics, the in-memory one trivially shares the holder's lifetime.
type Lease interface {
	TryAcquire(ctx context.Context, timeout time.Duration) (bool, error)
	Release() error
}

// Memory is an in-process Lease for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held sync.Mutex
	own  bool
}

// NewMemory constructs an in-process lease.
func NewMemory() *Memory {
	return &Memory{}
}

// TryAcquire implements Lease.
func (m *Memory) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if !m.own && m.held.TryLock() {
			m.own = true
			m.mu.Unlock()
			return true, nil
		}
		m.mu.Unlock()

		if timeout <= 0 || time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release implements Lease.
func (m *Memory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.own {
		m.held.Unlock()
		m.own = false
	}
	return nil
}

const retryInterval = 500 * time.Millisecond
