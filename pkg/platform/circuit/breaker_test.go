package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure())
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.RecordFailure())
	assert.False(t, b.IsOpen())
}

func TestBreakerProbesAfterCooldownAndCloses(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	b := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithCooldown(time.Minute),
		WithClock(clock),
	)

	b.RecordFailure()
	assert.False(t, b.Allow())

	current = current.Add(time.Minute)
	assert.True(t, b.Allow())

	// A failed probe re-arms the cooldown.
	b.RecordFailure()
	assert.False(t, b.Allow())
	current = current.Add(time.Minute)

	assert.False(t, b.RecordSuccess())
	assert.True(t, b.RecordSuccess())
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}
