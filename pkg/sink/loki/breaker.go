package loki

import (
	"sync"
	"time"
)

// Breaker stops pushes to an endpoint after consecutive failures until a cool-down passes
type Breaker struct {
	mu          sync.RWMutex
	failures    int
	maxFailures int
	resetTime   time.Time
	timeout     time.Duration
	now         func() time.Time
}

// NewBreaker creates a breaker that opens after maxFailures consecutive failures.
// maxFailures <= 0 disables it.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Open returns true while pushes should be skipped
func (b *Breaker) Open() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.maxFailures <= 0 || b.failures < b.maxFailures {
		return false
	}
	// Half-open once the cool-down has passed: one push is let through
	return b.now().Before(b.resetTime)
}

// Success resets the failure count
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.resetTime = time.Time{}
}

// Fail records a failed push and starts the cool-down once the limit is reached
func (b *Breaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.maxFailures > 0 && b.failures >= b.maxFailures {
		b.resetTime = b.now().Add(b.timeout)
	}
}
