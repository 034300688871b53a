// Package resilience implements the upstream client's failure-counting
// circuit breaker and exponential-backoff retry.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker's current disposition.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Execute while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig configures the rolling-window trip condition: if Fails
// failures occur within Window, the breaker opens for Cooldown.
type BreakerConfig struct {
	Fails    int
	Window   time.Duration
	Cooldown time.Duration
}

// DefaultBreakerConfig matches the defaults in the upstream contract: N=5,
// W=60s, T=30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Fails: 5, Window: 60 * time.Second, Cooldown: 30 * time.Second}
}

// Breaker is a single operation's circuit breaker. The upstream client
// keeps one instance per operation name.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	failures []time.Time
	openedAt time.Time
	halfOpen bool
}

// NewBreaker creates a closed breaker using cfg, filling in defaults for
// any zero field.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Fails <= 0 {
		cfg.Fails = def.Fails
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// State returns the breaker's current state, resolving an expired Open
// period to HalfOpen as a side effect (matching Execute's own check).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolveLocked()
	return b.state
}

func (b *Breaker) resolveLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.halfOpen = true
	}
}

// Allow reports whether a call may proceed, without executing it. Returns
// ErrBreakerOpen when the operation is in its skip window.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolveLocked()
	if b.state == StateOpen {
		return ErrBreakerOpen
	}
	return nil
}

// Execute runs fn under the breaker's protection. If the breaker is open
// and still within its cooldown, fn is never called.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.onSuccessLocked()
	} else {
		b.onFailureLocked()
	}
	return err
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = nil
		b.halfOpen = false
	case StateClosed:
		b.failures = nil
	}
}

func (b *Breaker) onFailureLocked() {
	now := time.Now()

	if b.state == StateHalfOpen {
		b.trip(now)
		return
	}

	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	b.failures = kept

	if len(b.failures) >= b.cfg.Fails {
		b.trip(now)
	}
}

func (b *Breaker) trip(at time.Time) {
	b.state = StateOpen
	b.openedAt = at
	b.failures = nil
	b.halfOpen = false
}
