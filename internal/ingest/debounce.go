package ingest

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of triggers per key: scheduling a key that is
// already pending resets its timer, so only the last trigger inside the
// window fires. Coalescing is a property of the timer map, not something
// callers re-check.
type debouncer struct {
	delay time.Duration
	fire  func(key string)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newDebouncer(delay time.Duration, fire func(key string)) *debouncer {
	return &debouncer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the timer for key.
func (d *debouncer) Schedule(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.fire(key)
		}
	})
}

// Stop cancels all pending timers. Triggers scheduled afterwards are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
