package coordinator

import (
	"sync"
	"time"
)

// DefaultDebounceDelay collapses rapid successive edits of the same pair
// into one request.
const DefaultDebounceDelay = 300 * time.Millisecond

// Debouncer runs the most recent function registered for a key once the key
// has been quiet for the configured delay. Trailing edge: every Trigger for
// a key supersedes the pending one, so a burst of edits produces exactly one
// execution, with the last function supplied.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer. A non-positive delay takes the default.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger schedules fn to run after the delay, replacing any pending run
// for the same key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if pending, ok := d.timers[key]; ok {
		pending.Stop()
	}

	var tm *time.Timer
	tm = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current, ok := d.timers[key]
		// A timer that was superseded between firing and locking must not
		// run or clear its replacement.
		own := ok && current == tm
		if own {
			delete(d.timers, key)
		}
		stopped := d.stopped
		d.mu.Unlock()

		if own && !stopped {
			fn()
		}
	})
	d.timers[key] = tm
}

// Cancel drops any pending run for the key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pending, ok := d.timers[key]; ok {
		pending.Stop()
		delete(d.timers, key)
	}
}

// Pending reports how many keys have a run scheduled.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels everything pending and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, pending := range d.timers {
		pending.Stop()
		delete(d.timers, key)
	}
}
