package httpenvelope

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// CircuitBreaker is a per-upstream-host trip switch (spec §4.1). Closed
// requests flow; each failure increments failureCount, and reaching
// threshold opens the circuit. Open fails fast until recoveryTimeout has
// elapsed, then allows exactly one half-open trial.
type CircuitBreaker struct {
	host             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu              sync.Mutex
	state           domain.CircuitState
	failureCount    int
	lastFailureTime time.Time

	// halfOpenInFlight gates the single permitted half-open trial via CAS
	// so concurrent callers never race two trial requests.
	halfOpenInFlight atomic.Bool

	onStateChange func(domain.CircuitState)
}

// NewCircuitBreaker builds a breaker for host with the given threshold and
// recovery timeout (spec defaults: 5 failures, 60s).
func NewCircuitBreaker(host string, failureThreshold int, recoveryTimeout time.Duration, onStateChange func(domain.CircuitState)) *CircuitBreaker {
	return &CircuitBreaker{
		host:             host,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            domain.CircuitClosed,
		onStateChange:    onStateChange,
	}
}

// Allow reports whether a call may proceed, and if so whether this call is
// the permitted half-open trial (the caller must call Release when it is,
// even if it never issues the request, to avoid deadlocking the breaker).
func (cb *CircuitBreaker) Allow() (allowed bool, isHalfOpenTrial bool) {
	cb.mu.Lock()
	state := cb.state
	if state == domain.CircuitOpen && time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
		state = domain.CircuitHalfOpen
		cb.state = domain.CircuitHalfOpen
		cb.notify()
	}
	cb.mu.Unlock()

	switch state {
	case domain.CircuitClosed:
		return true, false
	case domain.CircuitHalfOpen:
		if cb.halfOpenInFlight.CompareAndSwap(false, true) {
			return true, true
		}
		return false, false
	default: // open
		return false, false
	}
}

// Release clears the half-open in-flight gate; call after a half-open
// trial completes.
func (cb *CircuitBreaker) Release() {
	cb.halfOpenInFlight.Store(false)
}

// RecordSuccess resets the breaker to closed with zero counts.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.state = domain.CircuitClosed
	cb.notify()
}

// RecordFailure increments the failure count, opening the circuit once
// threshold is reached (or immediately, on a failed half-open trial).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	if cb.state == domain.CircuitHalfOpen {
		cb.state = domain.CircuitOpen
		cb.failureCount = cb.failureThreshold
		cb.notify()
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.state = domain.CircuitOpen
		cb.notify()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() domain.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) notify() {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.state)
	}
}

// Manager keys a CircuitBreaker per upstream host.
type Manager struct {
	mu               sync.Mutex
	breakers         map[string]*CircuitBreaker
	failureThreshold int
	recoveryTimeout  time.Duration
	onStateChange    func(host string, state domain.CircuitState)
}

// NewManager builds a Manager that lazily creates one breaker per host.
func NewManager(failureThreshold int, recoveryTimeout time.Duration, onStateChange func(host string, state domain.CircuitState)) *Manager {
	return &Manager{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		onStateChange:    onStateChange,
	}
}

// Get returns (creating if necessary) the breaker for host.
func (m *Manager) Get(host string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[host]; ok {
		return cb
	}
	cb := NewCircuitBreaker(host, m.failureThreshold, m.recoveryTimeout, func(s domain.CircuitState) {
		if m.onStateChange != nil {
			m.onStateChange(host, s)
		}
	})
	m.breakers[host] = cb
	return cb
}
