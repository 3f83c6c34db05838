package lease

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileLease is a Lease backed by an OS advisory file lock, so exclusivity
// holds across processes and the kernel drops the lock if the holder dies.
// A sidecar record with the holder's pid is written for diagnostics only;
// correctness never depends on its contents.
type FileLease struct {
	path string

	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

// NewFile constructs a file-backed lease at path.
func NewFile(path string) *FileLease {
	return &FileLease{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (f *FileLease) Path() string { return f.path }

// TryAcquire implements Lease.
func (f *FileLease) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false, fmt.Errorf("lease %s already held by this process", f.path)
	}

	var (
		ok  bool
		err error
	)
	if timeout <= 0 {
		ok, err = f.lock.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err = f.lock.TryLockContext(lockCtx, retryInterval)
		if lockCtx.Err() != nil && ctx.Err() == nil {
			// Timeout elapsed without the lease freeing up: a normal outcome.
			err = nil
		}
	}
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", f.path, err)
	}
	if !ok {
		return false, nil
	}

	f.held = true
	f.writeRecord()
	return true, nil
}

// Release implements Lease.
func (f *FileLease) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.held {
		return nil
	}
	f.held = false
	_ = os.Remove(f.recordPath())
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("release lease %s: %w", f.path, err)
	}
	return nil
}

func (f *FileLease) recordPath() string { return f.path + ".holder" }

func (f *FileLease) writeRecord() {
	record := fmt.Sprintf("pid=%d\nacquired_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = os.WriteFile(f.recordPath(), []byte(record), 0o644)
}
