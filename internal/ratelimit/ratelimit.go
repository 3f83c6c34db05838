package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the trailing interval over which requests are counted.
const Window = time.Minute

// Limiter applies sliding-window admission control with a global cooldown.
// A request is admitted only when no cooldown is active and fewer than limit
// requests were recorded within the trailing window. Callers that are denied
// are expected to wait and re-check; nothing is dropped here.
type Limiter struct {
	limit    int
	cooldown time.Duration
	now      func() time.Time

	mu            sync.Mutex
	times         []time.Time
	cooldownUntil time.Time
}

// NewLimiter constructs a limiter admitting at most limit requests per
// trailing minute, with the given cooldown applied on quota exhaustion.
func NewLimiter(limit int, cooldown time.Duration) *Limiter {
	return &Limiter{limit: limit, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may be made right now.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.cooldownUntil) {
		return false
	}
	l.prune(now)
	return len(l.times) < l.limit
}

// Record notes that a request was just made.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.times = append(l.times, now)
}

// StartCooldown begins (or restarts) the cooldown period and returns its end.
func (l *Limiter) StartCooldown() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldownUntil = l.now().Add(l.cooldown)
	return l.cooldownUntil
}

// ClearCooldown ends any active cooldown immediately.
func (l *Limiter) ClearCooldown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldownUntil = time.Time{}
}

// CooldownUntil returns the cooldown end time and whether one is active.
func (l *Limiter) CooldownUntil() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Before(l.cooldownUntil) {
		return l.cooldownUntil, true
	}
	return time.Time{}, false
}

// RecentCount returns the number of requests within the trailing window.
func (l *Limiter) RecentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.times)
}

// Limit returns the configured per-window budget.
func (l *Limiter) Limit() int { return l.limit }

// prune drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	keep := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.times = keep
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
