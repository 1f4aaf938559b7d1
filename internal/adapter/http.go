// Package adapter holds the HTTP clients for the chain indexer, the price
// sources and the notification webhook.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/cardano-portfolio/internal/circuitbreaker"
)

const userAgent = "cardano-portfolio/1.0"

// maxErrorBody caps how much of a failed response body ends up in an error
const maxErrorBody = 2048

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// isServerSide reports whether an error is worth trying on another endpoint:
// transport failures, 429 and 5xx responses
func isServerSide(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return !errors.Is(err, circuitbreaker.ErrCircuitOpen)
}

// transport bundles the pieces every client shares
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func newTransport(name string, client *http.Client, requestsPerSecond float64) transport {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return transport{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(name)),
	}
}

// do paces, guards and sends req, decoding a 2xx JSON body into out
func (t transport) do(ctx context.Context, req *http.Request, out interface{}) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	return t.breaker.Execute(ctx, func() error {
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return &HTTPError{StatusCode: resp.StatusCode, Body: string(body), URL: req.URL.Redacted()}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", req.URL.Redacted(), err)
		}
		return nil
	})
}

func newJSONRequest(ctx context.Context, method, url string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
