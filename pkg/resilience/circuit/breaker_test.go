package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(cooldown time.Duration) *Breaker {
	return New(Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         cooldown,
	}, nil)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(time.Minute)

	b.Record(false)
	b.Record(false)
	assert.Equal(t, Closed, b.GetState(), "two failures should not open a threshold-3 breaker")

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(time.Minute)

	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false)
	b.Record(false)

	assert.Equal(t, Closed, b.GetState(), "failures are consecutive, a success resets the count")

	_, failures, _ := b.Snapshot()
	assert.Equal(t, 2, failures)
}

func TestBreaker_RejectsWhileOpenWithinCooldown(t *testing.T) {
	b := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, Open, b.GetState())

	assert.False(t, b.Allow(), "open breaker inside the cooldown must not allow the chain")
	assert.False(t, b.Allow())
	assert.Equal(t, Open, b.GetState())
}

func TestBreaker_HalfOpenAfterCooldownThenClosedOnSuccess(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, Open, b.GetState())

	time.Sleep(30 * time.Millisecond)

	assert.True(t, b.Allow(), "cooldown elapsed, trial call must be allowed")
	assert.Equal(t, HalfOpen, b.GetState())

	b.Record(true)
	assert.Equal(t, Closed, b.GetState(), "first success in half-open closes the breaker")
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.GetState())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "fresh failure restarts the cooldown")
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, Open, b.GetState())

	b.Reset()
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
}
