package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(now time.Time) *CircuitBreaker {
	b := New(DefaultConfig())
	b.now = func() time.Time { return now }
	return b
}

func TestTripsOpenOnExactFailureThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(now)

	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestInterveningSuccessResetsFailureCount(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State(), "failure count should have reset after the intervening success")
}

func TestCanExecuteIdempotentForConstantNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(now)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, Open, b.State())

	assert.False(t, b.CanExecute())
	assert.False(t, b.CanExecute())
	assert.False(t, b.CanExecute())
}

func TestLazyTransitionToHalfOpenAfterTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(now)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, Open, b.State())

	b.now = func() time.Time { return now.Add(29 * time.Second) }
	assert.False(t, b.CanExecute())

	b.now = func() time.Time { return now.Add(30 * time.Second) }
	assert.True(t, b.CanExecute())
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := newTestBreaker(time.Now())
	b.state = HalfOpen

	b.RecordSuccess()
	assert.Equal(t, HalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(time.Now())
	b.state = HalfOpen

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestResetAndForceOpen(t *testing.T) {
	b := newTestBreaker(time.Now())
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())

	b.ForceOpen()
	assert.Equal(t, Open, b.State())
}
