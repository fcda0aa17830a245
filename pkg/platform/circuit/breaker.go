// Package circuit provides a circuit breaker for calls to external systems.
// A tripped breaker fails fast instead of piling load onto a processor that
// is already struggling.
package circuit

import (
	"sync"
	"time"
)

// Breaker tracks consecutive outcomes of one external dependency. It is
// closed (calls flow) until failureThreshold consecutive failures, then open
// (calls fail fast). After the cooldown it admits probe calls; successThreshold
// consecutive successes close it again.
type Breaker struct {
	mu               sync.Mutex
	name             string
	open             bool
	openedAt         time.Time
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets consecutive failures needed to open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets consecutive successes needed to close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long an open breaker rejects calls before admitting
// probes.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New constructs a closed Breaker named for logging.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name identifies the protected dependency.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed: always while closed, and as a
// probe once the cooldown has elapsed while open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// RecordSuccess notes a successful call; it reports true when this success
// closed a previously open breaker.
func (b *Breaker) RecordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		b.failures = 0
		return false
	}
	b.successes++
	if b.successes >= b.successThreshold {
		b.open = false
		b.failures = 0
		b.successes = 0
		return true
	}
	return false
}

// RecordFailure notes a failed call; it reports true when this failure
// opened (or re-armed) the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = 0
	if b.open {
		// A failed probe restarts the cooldown.
		b.openedAt = b.now()
		return false
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.open = true
		b.openedAt = b.now()
		return true
	}
	return false
}

// IsOpen reports whether the breaker is currently tripped.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
