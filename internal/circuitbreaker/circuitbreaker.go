package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/onnwee/caseace-cache/internal/metrics"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state
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
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing dependency for a cool-down period.
// The cache uses one per key/value store so a dead store is skipped instead
// of being hit by every cache write.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	name            string
	now             func() time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
}

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold int           // Number of consecutive failures before opening
	SuccessThreshold int           // Number of successes needed to close from half-open
	Timeout          time.Duration // Time to wait before trying half-open
	Clock            func() time.Time
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	cb := &CircuitBreaker{
		state:            StateClosed,
		name:             cfg.Name,
		now:              cfg.Clock,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return cb
}

// Name returns the breaker's metrics label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Call executes fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.timeout {
			cb.setStateLocked(StateHalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()
	cb.successCount = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.tripLocked()
		}
	case StateHalfOpen:
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.setStateLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.failureCount = 0
	cb.setStateLocked(StateOpen)
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

func (cb *CircuitBreaker) setStateLocked(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed, e.g. after the store was cleared by an operator.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.successCount = 0
	cb.setStateLocked(StateClosed)
}
