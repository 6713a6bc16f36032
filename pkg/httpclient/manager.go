package httpclient

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitBreakerManager maintains shared circuit breakers by name.
// Multiple clients requesting the same name receive the same breaker
// instance, so failures observed by one client protect the others.
// Breaker states are exposed for health reporting via GetAllStats.
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	logger       *slog.Logger
}

// NewCircuitBreakerManager creates a manager whose breakers are created
// with the given parameters. Zero or negative values fall back to the
// package defaults.
func NewCircuitBreakerManager(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:     make(map[string]*CircuitBreaker),
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger for the manager.
func (m *CircuitBreakerManager) WithLogger(logger *slog.Logger) *CircuitBreakerManager {
	m.logger = logger
	return m
}

// GetOrCreate returns an existing circuit breaker for the service name,
// or creates a new one with the manager's parameters.
// Multiple calls with the same name return the same breaker instance.
func (m *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[name]; ok {
		return breaker
	}

	breaker := NewCircuitBreaker(m.threshold, m.resetTimeout, m.halfOpenMax)
	m.breakers[name] = breaker

	m.logger.Debug("created circuit breaker",
		slog.String("service", name),
		slog.Int("failure_threshold", m.threshold),
		slog.Duration("reset_timeout", m.resetTimeout),
	)

	return breaker
}

// Get returns an existing circuit breaker by name, or nil if not found.
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// Names returns the names of all active circuit breakers.
func (m *CircuitBreakerManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	return names
}

// GetAllStats returns statistics for all active circuit breakers.
func (m *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(m.breakers))
	for name, breaker := range m.breakers {
		stats[name] = breaker.Stats()
	}
	return stats
}

// ResetBreaker resets a specific circuit breaker to closed state.
func (m *CircuitBreakerManager) ResetBreaker(name string) bool {
	m.mu.RLock()
	breaker, ok := m.breakers[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	breaker.Reset()
	m.logger.Info("circuit breaker reset", slog.String("service", name))
	return true
}

// ResetAll resets all circuit breakers to closed state.
func (m *CircuitBreakerManager) ResetAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for name, breaker := range m.breakers {
		breaker.Reset()
		m.logger.Debug("circuit breaker reset", slog.String("service", name))
		count++
	}
	return count
}

// Remove removes a circuit breaker from the manager.
// The breaker itself continues to work but is no longer reported.
func (m *CircuitBreakerManager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.breakers[name]; !ok {
		return false
	}
	delete(m.breakers, name)
	return true
}

// DefaultManager is the global default circuit breaker manager.
var DefaultManager = NewCircuitBreakerManager(DefaultCircuitThreshold, DefaultCircuitTimeout, DefaultCircuitHalfOpenMax)
