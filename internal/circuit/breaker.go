package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"    // Normal operation
	StateOpen     State = "open"      // Calls rejected
	StateHalfOpen State = "half_open" // Testing recovery
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit: breaker open")

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // consecutive failures before tripping
	Cooldown         time.Duration // rejection window after a trip
}

// DefaultConfig returns safe defaults for venue connectivity.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         15 * time.Second,
	}
}

// Breaker guards an unreliable dependency: consecutive failures trip it
// open, the cooldown rejects calls outright, then a half-open probe decides
// between closing and re-tripping.
type Breaker struct {
	mu sync.Mutex

	cfg          Config
	state        State
	failures     int
	lastTripTime time.Time
	now          func() time.Time
}

// NewBreaker creates a breaker. Pass time.Now as the clock outside tests.
func NewBreaker(cfg Config, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: now}
}

// Allow reports whether a call may proceed. During the half-open probe a
// single caller is let through; its Record decides the breaker's fate.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastTripTime) < b.cfg.Cooldown {
			remaining := b.cfg.Cooldown - b.now().Sub(b.lastTripTime)
			return fmt.Errorf("%w, retry in %v", ErrOpen, remaining.Round(time.Second))
		}
		b.state = StateHalfOpen
	}
	return nil
}

// Record reports a call result. Success closes the breaker; failure counts
// toward the threshold, and a half-open failure trips immediately.
func (b *Breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		b.failures = 0
		b.state = StateClosed
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.lastTripTime = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
