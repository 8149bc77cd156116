package client

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot timer: arm on construction, reset to
// restart the window, cancel to guarantee the callback never fires.
// Replaces the bare timer-handle-plus-callback pattern so teardown can
// always cancel cleanly.
type Timer struct {
	mu        sync.Mutex
	d         time.Duration
	fn        func()
	t         *time.Timer
	cancelled bool
}

// NewTimer arms a timer that calls fn after d unless reset or cancelled.
func NewTimer(d time.Duration, fn func()) *Timer {
	timer := &Timer{d: d, fn: fn}
	timer.t = time.AfterFunc(d, timer.fire)
	return timer
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.fn()
}

// Reset restarts the expiry window from now.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.t.Stop()
	t.t = time.AfterFunc(t.d, t.fire)
}

// Cancel stops the timer; a fire that has not yet started is suppressed.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.t.Stop()
}
