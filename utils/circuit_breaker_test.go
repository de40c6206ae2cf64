package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Equal(t, "test", cb.name)
	assert.Equal(t, uint32(10), cb.maxRequests)
	assert.Equal(t, 60*time.Second, cb.interval)
	assert.Equal(t, 30*time.Second, cb.timeout)
	assert.Equal(t, 0.5, cb.failureRatio)
	assert.Equal(t, BreakerClosed, cb.state)
}

func TestCircuitBreaker_DoSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	err := cb.Do(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, uint32(1), cb.counts.totalSuccesses)
}

func TestCircuitBreaker_DoPassesThroughFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	expected := errors.New("publish failed")

	err := cb.Do(func() error { return expected })

	assert.ErrorIs(t, err, expected)
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, uint32(1), cb.counts.totalFailures)
}

func TestCircuitBreaker_TripsAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5

	for i := 0; i < 5; i++ {
		cb.Do(func() error { return errors.New("failure") })
	}

	assert.Equal(t, BreakerOpen, cb.State())

	// While open, ops never run.
	err := cb.Do(func() error {
		t.Fatal("op must not run while the breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5
	cb.timeout = 50 * time.Millisecond

	for i := 0; i < 5; i++ {
		cb.Do(func() error { return errors.New("failure") })
	}
	assert.Equal(t, BreakerOpen, cb.State())

	time.Sleep(80 * time.Millisecond)

	// First call after the timeout probes the collaborator; success
	// closes the breaker again.
	err := cb.Do(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HealthyTrafficNeverTrips(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5

	for i := 0; i < 20; i++ {
		assert.NoError(t, cb.Do(func() error { return nil }))
	}

	assert.Equal(t, BreakerClosed, cb.State())
}
