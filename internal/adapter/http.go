package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/logger"
)

// HTTPResponse is a fully read HTTP response
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

// HTTPClient defines an interface for HTTP client operations to enable mocking
//
//go:generate mockgen -source=http.go -destination=../mocks/http.go -package=mocks -mock_names=HTTPClient=MockHTTPClient
type HTTPClient interface {
	// Get performs an idempotent GET request.
	// Network errors, 429 and 502/503/504 are retried with exponential backoff;
	// any other status is returned to the caller as is.
	Get(ctx context.Context, url string) (*HTTPResponse, error)

	// Send performs a single request with a JSON body and never retries.
	// Mutations must not be replayed.
	Send(ctx context.Context, method string, url string, body []byte) (*HTTPResponse, error)
}

// HTTPOption customizes a RealHTTPClient
type HTTPOption func(c *RealHTTPClient)

// WithRetryBackoff overrides the backoff used for GET retries
func WithRetryBackoff(initial, maxElapsed time.Duration) HTTPOption {
	return func(c *RealHTTPClient) {
		c.initialInterval = initial
		c.maxElapsed = maxElapsed
	}
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client          *http.Client
	initialInterval time.Duration
	maxElapsed      time.Duration
}

// NewHTTPClient creates a new real HTTP client
func NewHTTPClient(timeout time.Duration, opts ...HTTPOption) HTTPClient {
	c := &RealHTTPClient{
		client:          &http.Client{Timeout: timeout},
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Get performs a GET request with exponential backoff retry
func (c *RealHTTPClient) Get(ctx context.Context, url string) (*HTTPResponse, error) {
	var out *HTTPResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(req)
		if err != nil {
			// Network errors are retryable
			return err
		}
		if retryableStatus(resp.StatusCode) {
			logger.WarnCtx(ctx, "transient HTTP status, retrying with backoff",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode))
			out = resp
			return fmt.Errorf("transient status %d", resp.StatusCode)
		}

		out = resp
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = c.maxElapsed
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		// The last transient response is more useful to callers than the retry error
		if out != nil && ctx.Err() == nil {
			return out, nil
		}
		return nil, fmt.Errorf("request failed after retries: %w", err)
	}

	return out, nil
}

// Send performs a single request without retry
func (c *RealHTTPClient) Send(ctx context.Context, method string, url string, body []byte) (*HTTPResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

func (c *RealHTTPClient) do(req *http.Request) (*HTTPResponse, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", zap.Error(err), zap.String("url", req.URL.String()))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &HTTPResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
