// Package reliability implements the circuit breaker, degradation
// manager, and health checker that back a store's resilience surface.
package reliability

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-org/nexus-store/nexuserrors"
	"github.com/evalgo-org/nexus-store/nexuslog"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig governs the breaker's thresholds and timing.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
	HalfOpenMax      int
	Enabled          bool
}

// DefaultCircuitBreakerConfig matches the reference thresholds: 5
// failures to open, 3 consecutive successes to close, 30s cooldown, 3
// half-open probes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenDuration:     30 * time.Second,
		HalfOpenMax:      3,
		Enabled:          true,
	}
}

type stateBroadcast struct {
	mu        sync.Mutex
	current   State
	listeners map[chan State]struct{}
}

func newStateBroadcast() *stateBroadcast {
	return &stateBroadcast{listeners: make(map[chan State]struct{})}
}

func (b *stateBroadcast) level() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *stateBroadcast) subscribe() (<-chan State, func()) {
	b.mu.Lock()
	ch := make(chan State, 1)
	ch <- b.current
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.listeners[ch]; ok {
			delete(b.listeners, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *stateBroadcast) set(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == s {
		return
	}
	b.current = s
	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// CircuitBreakerMetrics is a point-in-time snapshot of a breaker's
// lifetime counters, alongside its current state.
type CircuitBreakerMetrics struct {
	State           State
	Failures        int
	Successes       int
	Total           int
	Rejected        int
	LastFailure     *time.Time
	LastStateChange time.Time
	Timestamp       time.Time
}

// FailureRate returns Failures/Total, 0 when Total is 0.
func (m CircuitBreakerMetrics) FailureRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Failures) / float64(m.Total)
}

// SuccessRate returns Successes/Total, 0 when Total is 0.
func (m CircuitBreakerMetrics) SuccessRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Total)
}

// CircuitBreaker guards calls to a flaky dependency: Closed allows every
// call, Open rejects outright until the cooldown elapses, HalfOpen probes
// a bounded number of calls before deciding to close or reopen.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig
	log logrus.FieldLogger
	bc  *stateBroadcast

	name string

	// failures/successes/halfOpenProbes are the current-state threshold
	// counters: reset whenever the breaker enters Open or HalfOpen so a
	// HalfOpen probe run never inherits successes accumulated in Closed.
	failures       int
	successes      int
	halfOpenProbes int

	lastStateChange time.Time

	totalFailures  int
	totalSuccesses int
	rejected       int
	lastFailure    *time.Time
}

// NewCircuitBreaker builds a breaker named name with cfg. A nil log
// defaults to the package default logger.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, log logrus.FieldLogger) *CircuitBreaker {
	if log == nil {
		log = nexuslog.Default
	}
	return &CircuitBreaker{
		name:            name,
		cfg:             cfg,
		log:             log,
		bc:              newStateBroadcast(),
		lastStateChange: time.Now(),
	}
}

// State returns the current state, lazily transitioning Open → HalfOpen
// once the cooldown has elapsed (the breaker has no internal timer; it
// checks elapsed time whenever state is queried).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if !cb.cfg.Enabled {
		return StateClosed
	}
	if cb.bc.level() == StateOpen && time.Since(cb.lastStateChange) >= cb.cfg.OpenDuration {
		cb.resetCountersLocked()
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.bc.level()
}

// StateStream returns a replaying channel of distinct state transitions.
func (cb *CircuitBreaker) StateStream() (<-chan State, func()) { return cb.bc.subscribe() }

// Metrics returns a snapshot of the breaker's lifetime counters and
// current state.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{
		State:           cb.stateLocked(),
		Failures:        cb.totalFailures,
		Successes:       cb.totalSuccesses,
		Total:           cb.totalFailures + cb.totalSuccesses,
		Rejected:        cb.rejected,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastStateChange,
		Timestamp:       time.Now(),
	}
}

// AllowsRequest reports whether a call may proceed right now.
func (cb *CircuitBreaker) AllowsRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.cfg.Enabled {
		return true
	}
	switch cb.stateLocked() {
	case StateOpen:
		return false
	case StateHalfOpen:
		return cb.halfOpenProbes < cb.cfg.HalfOpenMax
	default:
		return true
	}
}

// Execute runs fn if the breaker allows it, recording the outcome, and
// returns CircuitBreakerOpen without calling fn when it does not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowsRequest() {
		return cb.rejection()
	}

	cb.mu.Lock()
	if cb.stateLocked() == StateHalfOpen {
		cb.halfOpenProbes++
	}
	cb.mu.Unlock()

	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) rejection() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rejected++
	retryAfter := cb.cfg.OpenDuration - time.Since(cb.lastStateChange)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &nexuserrors.CircuitBreakerOpen{Name: cb.name, RetryAfter: retryAfter}
}

// RecordSuccess records a successful call outside of Execute (for callers
// that invoke AllowsRequest themselves).
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.cfg.Enabled {
		return
	}
	cb.totalSuccesses++

	switch cb.stateLocked() {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.resetCountersLocked()
			cb.transitionLocked(StateClosed)
		}
	case StateClosed:
		cb.successes++
	}
}

// RecordFailure records a failed call outside of Execute.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.cfg.Enabled {
		return
	}
	cb.totalFailures++
	now := time.Now()
	cb.lastFailure = &now

	switch cb.stateLocked() {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.resetCountersLocked()
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.resetCountersLocked()
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) resetCountersLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenProbes = 0
}

func (cb *CircuitBreaker) transitionLocked(s State) {
	cb.lastStateChange = time.Now()
	cb.bc.set(s)
	cb.log.WithFields(logrus.Fields{"breaker": cb.name, "state": s}).Info("circuit breaker transition")
}
