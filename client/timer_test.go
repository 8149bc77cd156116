package client

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	fired := make(chan struct{})
	NewTimer(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerResetExtendsWindow(t *testing.T) {
	var fires int32
	timer := NewTimer(50*time.Millisecond, func() { atomic.AddInt32(&fires, 1) })

	time.Sleep(30 * time.Millisecond)
	timer.Reset()
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 0 {
		t.Fatalf("fired %d times before the extended deadline", n)
	}

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
}

func TestTimerCancelSuppressesFire(t *testing.T) {
	var fires int32
	timer := NewTimer(30*time.Millisecond, func() { atomic.AddInt32(&fires, 1) })
	timer.Cancel()

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 0 {
		t.Errorf("fired %d times after cancel", n)
	}

	// Reset after cancel stays cancelled.
	timer.Reset()
	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 0 {
		t.Errorf("fired %d times after cancel and reset", n)
	}
}
