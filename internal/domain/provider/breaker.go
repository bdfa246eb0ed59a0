package provider

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens
	// a breaker.
	DefaultFailureThreshold = 3
	// DefaultResetTimeout is how long an open breaker denies calls before
	// resetting to closed.
	DefaultResetTimeout = 60 * time.Second
)

// Breaker is a circuit breaker for one provider. Closed allows calls and
// a success resets the failure count; after threshold consecutive
// failures it opens and denies; once the reset timeout elapses it resets
// fully to closed and the next call proceeds as a trial.
//
// There is no explicit half-open state: after a reset the breaker again
// needs threshold consecutive failures before reopening. That leniency is
// deliberate and matches the documented contract.
//
// The whole check-then-record sequence runs under one mutex so concurrent
// failures are never undercounted.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time // zero while closed

	// onOpen fires once per closed-to-open transition (metrics hook).
	onOpen func()

	now func() time.Time
}

// BreakerOption is a functional option for configuring a Breaker.
type BreakerOption func(*Breaker)

// WithThreshold overrides the consecutive-failure threshold.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithResetTimeout overrides the open-state cooldown.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithOpenHook sets a callback fired on every closed-to-open transition.
func WithOpenHook(fn func()) BreakerOption {
	return func(b *Breaker) { b.onOpen = fn }
}

// NewBreaker creates a closed breaker for the named provider.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		threshold:    DefaultFailureThreshold,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the provider name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. An open breaker whose reset
// timeout has elapsed resets to closed and allows the call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.failures = 0
		b.openedAt = time.Time{}
		return true
	}
	return false
}

// RecordSuccess resets the breaker fully to closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openedAt = time.Time{}
}

// RecordFailure counts one failure; at the threshold the breaker opens.
// Failures recorded while already open are ignored.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.openedAt.IsZero() {
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.onOpen != nil {
			b.onOpen()
		}
	}
}

// State reports the current failure count and whether the breaker is open.
// Intended for tests and introspection.
func (b *Breaker) State() (failures int, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, !b.openedAt.IsZero()
}
