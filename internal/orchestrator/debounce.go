package orchestrator

import (
	"sync"
	"time"
)

// Debouncer coalesces notification bursts per target with a settling timer:
// the fire callback runs only once no notification for that target has
// arrived for the full window, and every new notification pushes the
// deadline out again.
type Debouncer struct {
	window time.Duration
	fire   func(target string)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewDebouncer constructs a debouncer firing after window of quiet.
func NewDebouncer(window time.Duration, fire func(target string)) *Debouncer {
	return &Debouncer{
		window: window,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Notify records activity for target, starting or resetting its settling
// timer.
func (d *Debouncer) Notify(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if timer, ok := d.timers[target]; ok {
		timer.Reset(d.window)
		return
	}
	d.timers[target] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, target)
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.fire(target)
		}
	})
}

// Stop cancels all pending timers. Targets that had not settled never fire.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for target, timer := range d.timers {
		timer.Stop()
		delete(d.timers, target)
	}
}

// Pending returns the number of targets still settling.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
