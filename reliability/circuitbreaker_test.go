package reliability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-org/nexus-store/nexuserrors"
)

func fastConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenDuration:     30 * time.Millisecond,
		HalfOpenMax:      2,
		Enabled:          true,
	}
}

func TestCircuitBreakerOpensAfterThresholdThenHalfOpenThenCloses(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowsRequest())

	err := cb.Execute(func() error { return nil })
	var cbErr *nexuserrors.CircuitBreakerOpen
	require.ErrorAs(t, err, &cbErr)
	assert.True(t, cbErr.RetryAfter >= 0)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.AllowsRequest())
	_ = cb.Execute(func() error { return errors.New("still failing") })
	// a failure in half-open re-opens immediately
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerDisabledIsInert(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false
	cb := NewCircuitBreaker("backend", cfg, nil)
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.AllowsRequest())
}

func TestCircuitBreakerStateStreamDedupsTransitions(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)
	ch, cancel := cb.StateStream()
	defer cancel()

	<-ch // initial replay: Closed

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, <-ch)
}

func TestCircuitBreakerExecuteRecordsSuccess(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)
	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

// Successes accumulated while Closed must not count toward the
// SuccessThreshold once the breaker trips and reopens in HalfOpen: a
// single HalfOpen probe should not be enough to close it.
func TestCircuitBreakerClosedSuccessesDontCarryIntoHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)

	cb.RecordSuccess()
	cb.RecordSuccess()

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State(), "one probe success should not close a breaker requiring 2 consecutive successes")

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerMetricsFailureAndSuccessRateSumToOne(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)

	cb.RecordSuccess()
	cb.RecordSuccess()
	cb.RecordFailure()

	m := cb.Metrics()
	assert.Equal(t, 2, m.Successes)
	assert.Equal(t, 1, m.Failures)
	assert.Equal(t, 3, m.Total)
	assert.InDelta(t, 1.0, m.FailureRate()+m.SuccessRate(), 1e-9)
	require.NotNil(t, m.LastFailure)
}

func TestCircuitBreakerMetricsTracksRejections(t *testing.T) {
	cb := NewCircuitBreaker("backend", fastConfig(), nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return nil })

	assert.Equal(t, 2, cb.Metrics().Rejected)
}
