package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cb := newCircuitBreaker(2, 10*time.Second, clock)

	assert.True(t, cb.allow())
	cb.recordFailure()
	assert.Equal(t, breakerClosed, cb.current())
	cb.recordFailure()
	assert.Equal(t, breakerOpen, cb.current())
	assert.False(t, cb.allow())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.allow(), "probe admitted after reset timeout")
	assert.Equal(t, breakerHalfOpen, cb.current())
	assert.False(t, cb.allow(), "only one probe at a time")

	cb.recordFailure()
	assert.Equal(t, breakerOpen, cb.current())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.allow())
	cb.recordSuccess()
	assert.Equal(t, breakerClosed, cb.current())
	assert.True(t, cb.allow())
}

func TestCircuitBreakerAbandonedProbe(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newCircuitBreaker(1, 10*time.Second, func() time.Time { return now })

	cb.recordFailure()
	now = now.Add(11 * time.Second)
	assert.True(t, cb.allow())
	assert.False(t, cb.allow())

	cb.abandon()
	assert.Equal(t, breakerHalfOpen, cb.current())
	assert.True(t, cb.allow(), "abandoned probe frees the slot")
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := newCircuitBreaker(0, time.Second, nil)
	for range 10 {
		cb.recordFailure()
		assert.True(t, cb.allow())
	}
	assert.Equal(t, "closed", cb.current().String())
}
