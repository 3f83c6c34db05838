package orchestrator

import (
	"sync"
	"testing"
	"time"
)

type fireCounter struct {
	mu    sync.Mutex
	fired map[string]int
}

func newFireCounter() *fireCounter {
	return &fireCounter{fired: make(map[string]int)}
}

func (f *fireCounter) fire(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired[target]++
}

func (f *fireCounter) count(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fired[target]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBurstCoalescesToOneFire(t *testing.T) {
	counter := newFireCounter()
	d := NewDebouncer(50*time.Millisecond, counter.fire)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Notify("/inbox")
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return counter.count("/inbox") == 1 })
	// No further fires after settling.
	time.Sleep(100 * time.Millisecond)
	if got := counter.count("/inbox"); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestNotificationResetsDeadline(t *testing.T) {
	counter := newFireCounter()
	d := NewDebouncer(80*time.Millisecond, counter.fire)
	defer d.Stop()

	d.Notify("/inbox")
	time.Sleep(50 * time.Millisecond)
	d.Notify("/inbox")
	time.Sleep(50 * time.Millisecond)
	// 100ms elapsed but never 80ms of quiet.
	if got := counter.count("/inbox"); got != 0 {
		t.Fatalf("fired %d times before settling", got)
	}

	waitFor(t, time.Second, func() bool { return counter.count("/inbox") == 1 })
}

func TestSpacedNotificationsFireSeparately(t *testing.T) {
	counter := newFireCounter()
	d := NewDebouncer(30*time.Millisecond, counter.fire)
	defer d.Stop()

	d.Notify("/inbox")
	waitFor(t, time.Second, func() bool { return counter.count("/inbox") == 1 })
	d.Notify("/inbox")
	waitFor(t, time.Second, func() bool { return counter.count("/inbox") == 2 })
}

func TestTargetsSettleIndependently(t *testing.T) {
	counter := newFireCounter()
	d := NewDebouncer(40*time.Millisecond, counter.fire)
	defer d.Stop()

	d.Notify("/a")
	d.Notify("/b")
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
	waitFor(t, time.Second, func() bool {
		return counter.count("/a") == 1 && counter.count("/b") == 1
	})
}

func TestStopSuppressesPendingFires(t *testing.T) {
	counter := newFireCounter()
	d := NewDebouncer(30*time.Millisecond, counter.fire)

	d.Notify("/inbox")
	d.Stop()
	time.Sleep(80 * time.Millisecond)
	if got := counter.count("/inbox"); got != 0 {
		t.Fatalf("fired %d times after Stop", got)
	}
	// Notifications after Stop are ignored.
	d.Notify("/inbox")
	if d.Pending() != 0 {
		t.Fatal("stopped debouncer must not accept notifications")
	}
}
