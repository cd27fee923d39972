// Package ratelimit provides sliding-window admission control for
// outbound broker and market-data calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultMaxRequests = 20
	DefaultWindow      = time.Second
	minSleep           = 5 * time.Millisecond
)

// Limiter admits at most MaxRequests calls per sliding Window.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time

	now func() time.Time
}

// New creates a limiter. Non-positive arguments fall back to defaults.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// TryAcquire attempts to take one slot without blocking. It prunes
// expired timestamps, records the new one on success.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.timestamps) >= l.maxRequests {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Acquire blocks until a slot is available, the context is done, or the
// timeout elapses. A zero timeout waits on the context alone.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = l.now().Add(timeout)
	}

	for {
		if l.TryAcquire() {
			return true
		}

		wait := l.nextSlotWait()
		if wait < minSleep {
			wait = minSleep
		}
		if !deadline.IsZero() {
			remaining := deadline.Sub(l.now())
			if remaining <= 0 {
				return false
			}
			if wait > remaining {
				wait = remaining
			}
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// Available returns the number of free slots right now.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return l.maxRequests - len(l.timestamps)
}

// nextSlotWait computes the wait until the oldest recorded timestamp
// leaves the window.
func (l *Limiter) nextSlotWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timestamps) == 0 {
		return 0
	}
	return l.timestamps[0].Add(l.window).Sub(l.now())
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept
}
