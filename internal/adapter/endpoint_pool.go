package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EndpointHealth represents the health of the endpoint currently in use
type EndpointHealth struct {
	CurrentURL       string        `json:"currentUrl"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// EndpointPool holds a primary and an optional secondary base URL for one
// upstream API and switches between them when requests fail
type EndpointPool struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

// NewEndpointPool creates a pool. secondaryURL may be empty.
func NewEndpointPool(primaryURL, secondaryURL string) (*EndpointPool, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &EndpointPool{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}, nil
}

// CurrentURL returns the base URL requests should go to
func (p *EndpointPool) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL
}

// Failover switches to the other endpoint
func (p *EndpointPool) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secondaryURL == "" {
		return fmt.Errorf("no secondary endpoint configured")
	}
	if p.currentURL == p.primaryURL {
		p.currentURL = p.secondaryURL
	} else {
		p.currentURL = p.primaryURL
	}
	p.consecutiveFails = 0
	return nil
}

// RecordSuccess records a successful request for health tracking
func (p *EndpointPool) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.successfulReqs++
	p.totalLatency += duration
	p.lastSuccess = time.Now()
	p.consecutiveFails = 0
}

// RecordFailure records a failed request for health tracking
func (p *EndpointPool) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.failedReqs++
	p.lastFailure = time.Now()
	p.consecutiveFails++
}

// Health returns the current health snapshot
func (p *EndpointPool) Health() EndpointHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var successRate float64
	if p.totalRequests > 0 {
		successRate = float64(p.successfulReqs) / float64(p.totalRequests)
	}

	var avgLatency time.Duration
	if p.successfulReqs > 0 {
		avgLatency = p.totalLatency / time.Duration(p.successfulReqs)
	}

	return EndpointHealth{
		CurrentURL:       p.currentURL,
		TotalRequests:    p.totalRequests,
		SuccessfulReqs:   p.successfulReqs,
		FailedReqs:       p.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      p.lastSuccess,
		LastFailure:      p.lastFailure,
		ConsecutiveFails: p.consecutiveFails,
		IsHealthy:        p.isHealthyLocked(),
	}
}

// IsHealthy returns true if the current endpoint is considered healthy
func (p *EndpointPool) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isHealthyLocked()
}

// isHealthyLocked must be called with the lock held
func (p *EndpointPool) isHealthyLocked() bool {
	if p.consecutiveFails >= p.maxConsecutiveFails {
		return false
	}
	if p.totalRequests >= 10 {
		if float64(p.successfulReqs)/float64(p.totalRequests) < p.minSuccessRate {
			return false
		}
	}
	return true
}

// Reset returns to the primary endpoint
func (p *EndpointPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
}

// Do calls fn with the current base URL. If fn fails with an error that
// shouldFailover accepts and a secondary endpoint exists, it switches endpoints
// and calls fn once more.
func (p *EndpointPool) Do(ctx context.Context, shouldFailover func(error) bool, fn func(baseURL string) error) error {
	start := time.Now()
	err := fn(p.CurrentURL())
	if err == nil {
		p.RecordSuccess(time.Since(start))
		return nil
	}
	p.RecordFailure()

	if ctx.Err() != nil || !shouldFailover(err) {
		return err
	}
	if ferr := p.Failover(); ferr != nil {
		return err
	}

	start = time.Now()
	if err := fn(p.CurrentURL()); err != nil {
		p.RecordFailure()
		return err
	}
	p.RecordSuccess(time.Since(start))
	return nil
}
