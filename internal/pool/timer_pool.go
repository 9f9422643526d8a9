// Package pool recycles timers used for deadline-bounded waits, such as
// connection pool acquisition and dispatcher shutdown.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed with duration d, reusing a pooled timer when
// one is available. Return it with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	t, ok := timerPool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}

	if t.Reset(d) {
		// The timer was still active; drop a pending expiry so the caller
		// never observes a stale tick.
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. The caller must not touch t
// afterward.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// Drain an expiry the caller didn't consume.
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
