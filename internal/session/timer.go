package session

import (
	"sync"
	"time"
)

// Countdown is a monotonic exam countdown. It advances by one second on
// a fixed cadence, clamps at zero, and fires its expiry callback exactly
// once. Stopping it from outside never fires expiry.
type Countdown struct {
	interval time.Duration
	onExpire func()

	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	expired   bool
	stop      chan struct{}
}

// NewCountdown creates a countdown of the given number of seconds.
// onExpire is invoked from the countdown goroutine.
func NewCountdown(seconds int, onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{
		interval:  time.Second,
		onExpire:  onExpire,
		remaining: seconds,
		stop:      make(chan struct{}),
	}
}

// Start begins ticking. A countdown that starts at zero expires
// immediately. Starting twice is a no-op.
func (t *Countdown) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	if t.remaining <= 0 {
		t.expired = true
		t.mu.Unlock()
		t.onExpire()
		return
	}
	t.mu.Unlock()

	go t.run()
}

func (t *Countdown) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.stopped || t.expired {
				t.mu.Unlock()
				return
			}
			t.remaining--
			if t.remaining <= 0 {
				t.remaining = 0
				t.expired = true
				t.mu.Unlock()
				t.onExpire()
				return
			}
			t.mu.Unlock()
		}
	}
}

// Remaining returns the seconds left, never negative.
func (t *Countdown) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Stop halts the countdown without firing expiry. Idempotent, and safe
// to call from the expiry callback path.
func (t *Countdown) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.stop)
	t.mu.Unlock()
}
