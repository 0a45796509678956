package llm

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreaker stops calling a failing provider for resetTimeout after
// maxFailures consecutive failures. One probe is admitted when half-open.
type circuitBreaker struct {
	lastFailure  time.Time
	now          func() time.Time
	resetTimeout time.Duration
	maxFailures  int
	failures     int
	state        breakerState
	probing      bool
	mu           sync.Mutex
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration, now func() time.Time) *circuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout, now: now}
}

// allow reports whether a call may proceed. A disabled breaker always allows.
func (cb *circuitBreaker) allow() bool {
	if cb.maxFailures <= 0 {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			return false
		}
		cb.state = breakerHalfOpen
		cb.probing = true
		return true
	case breakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failures = 0
	cb.probing = false
}

// abandon releases a half-open probe slot taken by a call that never
// reached the provider.
func (cb *circuitBreaker) abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	cb.probing = false

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		return
	}
	cb.failures++
	if cb.maxFailures > 0 && cb.failures >= cb.maxFailures {
		cb.state = breakerOpen
	}
}

func (cb *circuitBreaker) current() breakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
