package session

import (
	"sync"
	"time"
)

// Watchdog is the per-session inactivity timer. Reset reschedules the full
// timeout; last reset wins. A fired callback never observes a stale schedule:
// the generation counter guards against a timer that expired concurrently
// with a Reset or Stop.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Reset cancels any pending expiry and schedules a fresh one the full
// timeout away.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, func() {
		w.fire(gen)
	})
}

// Stop cancels any pending expiry. A timer that already fired but has not yet
// run its callback is invalidated as well.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	// Outside the lock so the callback may Reset or Stop the watchdog.
	w.onExpire()
}
