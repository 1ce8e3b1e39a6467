package httpenvelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestCircuitBreaker_OpensAtThresholdAndFailsFast(t *testing.T) {
	cb := NewCircuitBreaker("api.example.com", 5, time.Hour, nil)

	for i := 0; i < 5; i++ {
		allowed, _ := cb.Allow()
		require.True(t, allowed)
		cb.RecordFailure()
	}

	assert.Equal(t, domain.CircuitOpen, cb.State())

	allowed, _ := cb.Allow()
	assert.False(t, allowed)
}

func TestCircuitBreaker_HalfOpenTrialAfterRecovery(t *testing.T) {
	cb := NewCircuitBreaker("api.example.com", 2, 10*time.Millisecond, nil)

	allowed, _ := cb.Allow()
	require.True(t, allowed)
	cb.RecordFailure()
	allowed, _ = cb.Allow()
	require.True(t, allowed)
	cb.RecordFailure()
	require.Equal(t, domain.CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	allowed, isTrial := cb.Allow()
	require.True(t, allowed)
	require.True(t, isTrial)
	assert.Equal(t, domain.CircuitHalfOpen, cb.State())

	// A second concurrent caller must not get a trial while one is in flight.
	allowed2, isTrial2 := cb.Allow()
	assert.False(t, allowed2)
	assert.False(t, isTrial2)

	cb.RecordSuccess()
	assert.Equal(t, domain.CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedHalfOpenTrialReopens(t *testing.T) {
	cb := NewCircuitBreaker("api.example.com", 1, 10*time.Millisecond, nil)

	allowed, _ := cb.Allow()
	require.True(t, allowed)
	cb.RecordFailure()
	require.Equal(t, domain.CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	allowed, isTrial := cb.Allow()
	require.True(t, allowed)
	require.True(t, isTrial)

	cb.RecordFailure()
	assert.Equal(t, domain.CircuitOpen, cb.State())
}

func TestManager_PerHostIsolation(t *testing.T) {
	var changes []string
	mgr := NewManager(1, time.Hour, func(host string, s domain.CircuitState) {
		changes = append(changes, host)
	})

	a := mgr.Get("a.example.com")
	b := mgr.Get("b.example.com")
	assert.NotSame(t, a, b)

	allowed, _ := a.Allow()
	require.True(t, allowed)
	a.RecordFailure()

	assert.Equal(t, domain.CircuitOpen, a.State())
	assert.Equal(t, domain.CircuitClosed, b.State())
	assert.Contains(t, changes, "a.example.com")
}
