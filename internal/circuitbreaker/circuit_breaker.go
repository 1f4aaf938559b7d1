// Package circuitbreaker stops calling an upstream provider after repeated failures
// and tries it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cardano-portfolio/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests flow to the provider
	StateClosed State = "closed"
	// StateOpen means requests are rejected without calling the provider
	StateOpen State = "open"
	// StateHalfOpen means a limited number of trial requests are let through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open trial budget is used up
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string

	// MinCalls is the number of calls observed before the failure rate is considered
	MinCalls int

	// FailureThreshold is the failure rate (0.0-1.0) that opens the circuit
	FailureThreshold float64

	// MaxConsecutiveFails opens the circuit regardless of the rate
	MaxConsecutiveFails int

	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration

	// HalfOpenMaxCalls is the number of trial calls, and successes needed to close again
	HalfOpenMaxCalls int
}

// DefaultConfig returns the configuration used for price sources and the balance provider
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		MinCalls:            10,
		FailureThreshold:    0.5,
		MaxConsecutiveFails: 5,
		Timeout:             30 * time.Second,
		HalfOpenMaxCalls:    2,
	}
}

// CircuitBreaker guards calls to one upstream provider
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	calls            int
	failures         int
	consecutiveFails int
	halfOpenCalls    int
	halfOpenOK       int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:             *cfg,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open. Context cancellation is not
// counted as a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cfg.Timeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
	}
	return nil
}

// release returns a half-open trial slot that produced no verdict
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.calls++
	if err == nil {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.cfg.HalfOpenMaxCalls {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.failures++
	cb.consecutiveFails++
	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.cfg.MaxConsecutiveFails {
		return true
	}
	return cb.calls >= cb.cfg.MinCalls && cb.failureRate() >= cb.cfg.FailureThreshold
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.calls == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.calls)
}

// transition must be called with the lock held
func (cb *CircuitBreaker) transition(state State) {
	logging.WithFields(map[string]interface{}{
		"circuitBreaker":   cb.cfg.Name,
		"from":             cb.state,
		"to":               state,
		"failureRate":      cb.failureRate(),
		"consecutiveFails": cb.consecutiveFails,
	}).Info("Circuit breaker state change")

	cb.state = state
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	if state == StateClosed {
		cb.calls = 0
		cb.failures = 0
		cb.consecutiveFails = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Calls            int       `json:"calls"`
	Failures         int       `json:"failures"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// Stats returns a point-in-time copy of the counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		Calls:            cb.calls,
		Failures:         cb.failures,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.failureRate(),
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset closes the circuit and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}
