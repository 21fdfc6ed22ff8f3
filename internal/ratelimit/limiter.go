// Package ratelimit provides a per-user cooldown limiter.
//
// A user is admitted when no earlier admission is recorded, or when at
// least the cooldown has elapsed since the last admission. Rejected
// attempts never move the window. State lives in memory for the process
// lifetime; Sweep drops users that have been idle for a while.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller has to wait. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter tracks the last admitted time per user.
type Limiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	last     map[int64]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. cooldown must be positive.
func New(cooldown time.Duration, opts ...Option) (*Limiter, error) {
	if cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %s", cooldown)
	}

	l := &Limiter{
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Cooldown returns the configured window.
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}

// Allow reports whether userID may proceed and records the admission if so.
func (l *Limiter) Allow(userID int64) bool {
	return l.Check(userID).Allowed
}

// Check is Allow with the remaining wait on rejection.
func (l *Limiter) Check(userID int64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[userID]; ok {
		if elapsed := now.Sub(last); elapsed < l.cooldown {
			return Decision{RetryAfter: l.cooldown - elapsed}
		}
	}

	l.last[userID] = now
	return Decision{Allowed: true}
}

// Reset forgets userID so its next message is admitted.
func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.last, userID)
}

// Sweep removes users whose last admission is older than idle and
// returns how many were removed.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for userID, last := range l.last {
		if last.Before(cutoff) {
			delete(l.last, userID)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.last)
}
