// Package httpclient provides the uniform HTTP request façade used by fetch
// handlers, the credential store and publish steps. Core code never touches
// a raw transport directly.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeoutSeconds = 30

// BasicAuth carries client credentials for HTTP Basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one upstream call.
type Request struct {
	Method    string
	URL       string
	Headers   map[string]string
	Query     url.Values
	Body      []byte
	Form      url.Values
	BasicAuth *BasicAuth
}

// Response is the decoded result of an upstream call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the response carries a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client is the narrow interface consumed by components; swappable with a
// fake in tests.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	client *http.Client
	retry  RetryConfig
	logger *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.client.Timeout = timeout
	}
}

// WithRetry enables retries on transport errors.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *HTTPClient) {
		c.retry = RetryConfig{Attempts: attempts, Delay: delay}
	}
}

// NewHTTPClient creates a client with the default timeout and no retries.
func NewHTTPClient(logger *slog.Logger, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		retry:  RetryConfig{Attempts: 1},
		logger: logger.With("module", "httpclient"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Do executes the request, retrying transport errors up to the configured
// attempt count. Non-2xx statuses are returned to the caller, not retried:
// the caller decides whether a status is fatal.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, "Retrying request",
				"attempt", attempt, "url", req.URL)

			select {
			case <-time.After(c.retry.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.do(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", req.URL, c.retry.Attempts, lastErr)
}

func (c *HTTPClient) do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		separator := "?"
		if strings.Contains(target, "?") {
			separator = "&"
		}

		target += separator + req.Query.Encode()
	}

	var body io.Reader

	switch {
	case len(req.Form) > 0:
		body = strings.NewReader(req.Form.Encode())
	case len(req.Body) > 0:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if len(req.Form) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	return httpReq, nil
}
