package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onlinefem/onlinefem/internal/circuitbreaker"
	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
)

// SolverClient is the femapi-side view of the solver service.
// FetchNumbers asks for the number set registered under name; Ping checks
// reachability for health checks and degraded-state recovery.
type SolverClient interface {
	FetchNumbers(ctx context.Context, name string) (models.NumberSet, error)
	Ping(ctx context.Context) error
}

var (
	// ErrNoData means the solver answered but has nothing registered under
	// the requested name (a JSON null body).
	ErrNoData          = errors.New("no data for name")
	ErrUpstreamFailure = errors.New("solver failure")
	ErrRateLimited     = errors.New("rate limited")
)

// HTTPSolverClient talks to the solver over its form-POST protocol with
// retries and an optional circuit breaker.
type HTTPSolverClient struct {
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewHTTPSolverClient creates a client with default retry settings.
func NewHTTPSolverClient(baseURL string, timeout time.Duration) (*HTTPSolverClient, error) {
	return NewHTTPSolverClientWithRetry(baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewHTTPSolverClientWithRetry creates a client with explicit retry settings.
func NewHTTPSolverClientWithRetry(baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HTTPSolverClient, error) {
	if baseURL == "" {
		return nil, errors.New("solver URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid solver URL: %w", err)
	}

	return &HTTPSolverClient{
		baseURL:        baseURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps subsequent calls in the breaker. Call before
// serving traffic; not safe to swap concurrently with requests.
func (c *HTTPSolverClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// FetchNumbers posts the name to the solver and decodes the number set,
// retrying retryable failures with exponential backoff. A JSON null body
// maps to ErrNoData and is not retried.
func (c *HTTPSolverClient) FetchNumbers(ctx context.Context, name string) (models.NumberSet, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.SolverRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.NumberSet{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		var result models.NumberSet
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, func() error {
				var callErr error
				result, callErr = c.callSolver(ctx, name)
				return callErr
			})
		} else {
			result, err = c.callSolver(ctx, name)
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.NumberSet{}, err
		}
	}

	return models.NumberSet{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPSolverClient) callSolver(ctx context.Context, name string) (models.NumberSet, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("name", name)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		observability.SolverCallsTotal.WithLabelValues("error").Inc()
		return models.NumberSet{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.SolverCallsTotal.WithLabelValues("error").Inc()
		observability.SolverCallDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.NumberSet{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.NumberSet{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.SolverCallsTotal.WithLabelValues(status).Inc()
	observability.SolverCallDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.NumberSet{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NumberSet{}, fmt.Errorf("read response body: %w", err)
	}

	// The solver answers null for names it does not know.
	if isJSONNull(body) {
		return models.NumberSet{}, fmt.Errorf("%w: %s", ErrNoData, name)
	}

	var set models.NumberSet
	if err := json.Unmarshal(body, &set); err != nil {
		return models.NumberSet{}, fmt.Errorf("parse response: %w", err)
	}
	set.FetchedAt = time.Now()
	return set, nil
}

func isJSONNull(body []byte) bool {
	return strings.TrimSpace(string(body)) == "null"
}

func (c *HTTPSolverClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNoData) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *HTTPSolverClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *HTTPSolverClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: solver rejected request (HTTP 400)", ErrUpstreamFailure)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// Ping issues a GET against the solver root and expects a 200. Used by the
// health handler and the degraded-state recovery loop.
func (c *HTTPSolverClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
