package ratelimit

import "sync"

// Ledger counts per-target failures against a retry ceiling. Targets at or
// beyond the ceiling are permanently skipped until explicitly cleared.
// Counts live in memory for the process lifetime only.
type Ledger struct {
	max int

	mu       sync.Mutex
	failures map[string]int
}

// NewLedger constructs a ledger with the given retry ceiling.
func NewLedger(maxRetries int) *Ledger {
	return &Ledger{max: maxRetries, failures: make(map[string]int)}
}

// Fail records one failure for target and returns the updated count.
func (l *Ledger) Fail(target string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[target]++
	return l.failures[target]
}

// Exhausted reports whether target has reached the retry ceiling.
func (l *Ledger) Exhausted(target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures[target] >= l.max
}

// Clear forgets target's failures, making it eligible again.
func (l *Ledger) Clear(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, target)
}

// Len returns the number of targets with recorded failures.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

// ExhaustedCount returns the number of targets at or beyond the ceiling.
func (l *Ledger) ExhaustedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, count := range l.failures {
		if count >= l.max {
			n++
		}
	}
	return n
}
