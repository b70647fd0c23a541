// Package circuitbreaker implements the circuit breaker pattern.
//
// A breaker tracks consecutive failures against one upstream and blocks
// calls while the upstream is considered down.
//
// States:
//   - Closed: normal operation, calls allowed
//   - Open: too many failures, calls blocked until the cooldown elapses
//   - HalfOpen: one probe call allowed to test recovery
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // calls allowed
	Open                  // calls blocked
	HalfOpen              // probing for recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // consecutive failures before opening (default: 5)
	Cooldown  time.Duration // time before half-open (default: 30s)
}

// Breaker guards calls to a single upstream.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	lastFailure time.Time
	cooldown    time.Duration
	now         func() time.Time
}

// New creates a circuit breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call should be attempted. Moving from Open to
// HalfOpen happens here, on the first call after the cooldown.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) > b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = Closed
}

// RecordFailure counts a failed call. A failure during a half-open probe
// reopens the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
