package mx

import (
	"sync"
	"time"
)

const (
	circuitStateClosed   = "closed"
	circuitStateOpen     = "open"
	circuitStateHalfOpen = "half-open"

	defaultFailureThreshold = 5
	defaultResetTimeout     = 5 * time.Minute
)

// CircuitBreaker tracks per-MX-host delivery failures and skips hosts that
// are consistently failing, rather than spending a connect and EHLO
// round-trip on a host known to be down. Because each recipient group binds
// to exactly one host with no intra-group fallback, this is a pre-connect
// skip check, not a retry strategy: a tripped breaker turns a connection
// attempt into an immediate mailerr.Connect failure for that group.
type CircuitBreaker struct {
	mu               sync.Mutex
	hosts            map[string]*hostState
	failureThreshold int
	resetTimeout     time.Duration
	nowFunc          func() time.Time
}

type hostState struct {
	state               string
	consecutiveFailures int
	lastFailureTime     time.Time
}

// NewCircuitBreaker builds a CircuitBreaker. A zero failureThreshold or
// resetTimeout is replaced with a default (5 failures, 5 minutes).
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	return &CircuitBreaker{
		hosts:            make(map[string]*hostState),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		nowFunc:          time.Now,
	}
}

// Allow reports whether a delivery attempt to host is currently permitted.
// An unknown host is treated as closed (allowed).
func (cb *CircuitBreaker) Allow(host string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hs, ok := cb.hosts[host]
	if !ok {
		return true
	}

	switch hs.state {
	case circuitStateOpen:
		if cb.nowFunc().Sub(hs.lastFailureTime) >= cb.resetTimeout {
			hs.state = circuitStateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count for host and closes its circuit.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hs, ok := cb.hosts[host]
	if !ok {
		return
	}
	hs.consecutiveFailures = 0
	hs.state = circuitStateClosed
}

// RecordFailure records a failed delivery attempt to host. The circuit opens
// once consecutive failures reach the threshold; a half-open circuit reopens
// on the first failure.
func (cb *CircuitBreaker) RecordFailure(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hs, ok := cb.hosts[host]
	if !ok {
		hs = &hostState{state: circuitStateClosed}
		cb.hosts[host] = hs
	}

	hs.consecutiveFailures++
	hs.lastFailureTime = cb.nowFunc()

	switch hs.state {
	case circuitStateClosed:
		if hs.consecutiveFailures >= cb.failureThreshold {
			hs.state = circuitStateOpen
		}
	case circuitStateHalfOpen:
		hs.state = circuitStateOpen
	}
}
