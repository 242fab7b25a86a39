// Package resilience provides the failure-handling primitives shared by
// every external collaborator: circuit breakers, typed call outcomes, and
// retry with exponential backoff.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker gates calls to one named external collaborator. After threshold
// consecutive failures it opens; after cooldown it half-opens on the next
// state read and a single success closes it again.
type Breaker struct {
	mu        sync.Mutex
	name      string
	state     State
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	clock     clock
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock substitutes the time source, for tests.
func WithClock(c clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// NewBreaker creates a circuit breaker for the named collaborator.
func NewBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}

	b := &Breaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the collaborator name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// AllowRequest reports whether a call may proceed. Reading the state after
// the cooldown has elapsed moves an open breaker to half-open.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState() != StateOpen
}

// RecordSuccess resets the failure counter and closes the breaker from any
// state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = StateClosed
}

// RecordFailure counts one failure. The threshold-th consecutive failure
// opens the breaker; a failure while half-open re-opens it and restarts
// the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	switch b.currentState() {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.failures >= b.threshold {
			b.open()
		}
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = StateClosed
}

// State returns the current state, applying the lazy open → half-open
// transition when the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Snapshot describes the breaker for status endpoints.
type Snapshot struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	Failures  int    `json:"failures"`
	Threshold int    `json:"threshold"`
	CooldownS int    `json:"cooldownSeconds"`
}

// Status returns a point-in-time snapshot.
func (b *Breaker) Status() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:      b.name,
		State:     b.currentState(),
		Failures:  b.failures,
		Threshold: b.threshold,
		CooldownS: int(b.cooldown / time.Second),
	}
}

// currentState applies the lazy cooldown transition. Caller must hold the
// lock.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
	}
	return b.state
}

// open transitions to the open state and starts the cooldown. Caller must
// hold the lock.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.clock.Now()
}
