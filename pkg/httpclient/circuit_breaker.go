package httpclient

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests flow normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means a limited number of test requests are allowed.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern.
// After threshold consecutive failures the circuit opens and requests are
// rejected until resetTimeout elapses, at which point a limited number of
// probe requests are allowed through (half-open). A success closes the
// circuit again; a failure reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int

	state         CircuitState
	failures      int
	successes     int
	halfOpenCount int
	lastFailure   time.Time
	openedAt      time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
// threshold is the number of consecutive failures before opening.
// resetTimeout is how long the circuit stays open before probing.
// halfOpenMax is the number of probe requests allowed in half-open state.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultCircuitTimeout
	}
	if halfOpenMax <= 0 {
		halfOpenMax = DefaultCircuitHalfOpenMax
	}
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		state:        CircuitClosed,
	}
}

// Allow returns true if a request should be allowed through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(cb.openedAt) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCount = 1
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.failures = 0

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.halfOpenCount = 0
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.threshold {
			cb.state = CircuitOpen
			cb.openedAt = time.Now()
		}
	case CircuitHalfOpen:
		// A probe failed, go back to open
		cb.state = CircuitOpen
		cb.openedAt = time.Now()
		cb.halfOpenCount = 0
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state and clears counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCount = 0
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Successes returns the total success count.
func (cb *CircuitBreaker) Successes() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.successes
}

// CircuitBreakerStats is a snapshot of circuit breaker state for monitoring.
type CircuitBreakerStats struct {
	State        string        `json:"state"`
	Failures     int           `json:"failures"`
	Successes    int           `json:"successes"`
	LastFailure  time.Time     `json:"last_failure,omitempty"`
	Threshold    int           `json:"threshold"`
	ResetTimeout time.Duration `json:"reset_timeout"`
}

// Stats returns a snapshot of the circuit breaker state.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:        cb.state.String(),
		Failures:     cb.failures,
		Successes:    cb.successes,
		LastFailure:  cb.lastFailure,
		Threshold:    cb.threshold,
		ResetTimeout: cb.resetTimeout,
	}
}
