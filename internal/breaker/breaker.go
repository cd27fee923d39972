// Package breaker provides trip/cool-down protection around a fallible
// advisory dependency. Callers check AllowRequest before each call and
// report the outcome with RecordSuccess/RecordFailure.
package breaker

import (
	"sync"
	"time"

	"consensus-trader/internal/observability"
)

// State of the circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Default configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultWindow           = 300 * time.Second
	DefaultCooldown         = 60 * time.Second
)

// Config tunes the breaker.
type Config struct {
	// FailureThreshold is the in-window failure count that trips the breaker.
	FailureThreshold int
	// Window is the sliding window over failure timestamps.
	Window time.Duration
	// Cooldown is how long OPEN lasts before a probe is allowed.
	Cooldown time.Duration
}

// DefaultConfig returns the standard breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Window:           DefaultWindow,
		Cooldown:         DefaultCooldown,
	}
}

// Breaker is a circuit breaker with lazy OPEN→HALF_OPEN recomputation.
// There is no background timer: the cooldown check happens inline when
// the state is read.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures []time.Time
	openedAt time.Time

	now func() time.Time
}

// New creates a closed breaker. Zero config fields fall back to defaults.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// State returns the current state, transitioning OPEN→HALF_OPEN once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// AllowRequest reports whether a call may proceed. Only OPEN blocks;
// HALF_OPEN lets a probe through.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() != StateOpen
}

// RecordSuccess clears the failure window and forces CLOSED.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
	b.state = StateClosed
	observability.UpdateBreakerState(string(StateClosed))
}

// RecordFailure appends a failure timestamp, prunes expired entries and
// trips the breaker once the in-window count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures = append(b.failures, now)
	b.pruneLocked(now)

	if len(b.failures) >= b.cfg.FailureThreshold && b.state != StateOpen {
		b.state = StateOpen
		b.openedAt = now
		observability.DefaultMetrics.BreakerTrips.Inc()
		observability.UpdateBreakerState(string(StateOpen))
	}
}

// FailureCount returns the number of failures currently inside the window.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.now())
	return len(b.failures)
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		observability.UpdateBreakerState(string(StateHalfOpen))
	}
	return b.state
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}
