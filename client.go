package jalur

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client is the rate-limited HTTP request dispatcher. It consults the
// rate gate before every call, merges client-wide headers and query
// parameters under each descriptor's own, and classifies responses
// against a success range. It is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	globalHeader    http.Header
	globalQuery     url.Values
	gate            *RateGate
	globalLimit     *rate.Limiter
	successLo       int
	successHi       int
	onUnauthorized  func(*http.Response)
	metrics         *MetricsCollector
	debug           *DebugConfig
	logger          Logger
	validationError error
}

// Response is the raw outcome of a dispatched request whose status fell
// inside the success range.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New constructs a Client for the given base URL using the provided
// functional options. A best effort validation is performed; call
// IsValid / ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:      baseURL,
		globalHeader: http.Header{},
		globalQuery:  url.Values{},
		gate:         NewRateGate(),
		successLo:    200,
		successHi:    300,
		debug:        DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get dispatches an HTTP GET for the given path.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, path, opts...))
}

// Post dispatches an HTTP POST for the given path.
func (c *Client) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodPost, path, opts...))
}

// CallOption adjusts classification for a single dispatch.
type CallOption func(*callConfig)

type callConfig struct {
	successLo int
	successHi int
}

// WithSuccessRange overrides the half-open [lo, hi) status range treated
// as success for this call.
func WithSuccessRange(lo, hi int) CallOption {
	return func(cfg *callConfig) {
		cfg.successLo = lo
		cfg.successHi = hi
	}
}

// Do dispatches one descriptor: wait for rate-gate admission, build the
// wire request, issue it, and classify the response status. Network and
// decode errors are never retried here; the caller decides.
func (c *Client) Do(ctx context.Context, d Descriptor, opts ...CallOption) (*Response, error) {
	start := time.Now()
	endpoint := d.Path()

	cfg := &callConfig{successLo: c.successLo, successHi: c.successHi}
	for _, opt := range opts {
		opt(cfg)
	}

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debugEnabled(c.debug != nil && c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "method", d.Method(), "endpoint", endpoint)
	}

	c.metrics.RecordRequestStart(d.Method(), endpoint)
	defer c.metrics.RecordRequestEnd(d.Method(), endpoint)

	if c.globalLimit != nil {
		if err := c.globalLimit.Wait(ctx); err != nil {
			return nil, err
		}
	}

	admitStart := time.Now()
	if !c.gate.Admit(endpoint, d.RatePolicy()) {
		c.metrics.RecordAdmission(endpoint, false)
		if c.debugEnabled(c.debug != nil && c.debug.LogRateGate) {
			c.logger.Debug("Held by rate gate", "requestID", requestID, "endpoint", endpoint)
		}
		if err := c.gate.Wait(ctx, endpoint, d.RatePolicy()); err != nil {
			return nil, err
		}
	}
	c.metrics.RecordAdmissionWait(endpoint, time.Since(admitStart))
	c.metrics.RecordAdmission(endpoint, true)
	if c.debugEnabled(c.debug != nil && c.debug.LogRateGate) {
		c.logger.Debug("Admitted by rate gate", "requestID", requestID, "endpoint", endpoint, "waited", time.Since(admitStart))
	}

	c.gate.Begin(endpoint)

	req, err := c.buildRequest(ctx, d, requestID)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordError(ErrorTypeUnexpectedResponse, d.Method(), endpoint)
		return nil, c.newError(ErrorTypeUnexpectedResponse, "transport returned no usable response", err, requestID, d, 0, "", start)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordError(ErrorTypeUnexpectedResponse, d.Method(), endpoint)
		return nil, c.newError(ErrorTypeUnexpectedResponse, "reading response body failed", err, requestID, d, resp.StatusCode, "", start)
	}

	c.metrics.RecordRequest(d.Method(), endpoint, resp.StatusCode, time.Since(start))

	if c.debugEnabled(c.debug != nil && c.debug.LogResponses) {
		c.logger.Debug("Received response", "requestID", requestID, "status", resp.StatusCode, "bytes", len(body))
	}

	if resp.StatusCode >= cfg.successLo && resp.StatusCode < cfg.successHi {
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, nil
	}

	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(resp)
	}

	c.metrics.RecordError(ErrorTypeHTTPStatus, d.Method(), endpoint)
	return nil, c.newError(ErrorTypeHTTPStatus, "response status outside success range", nil, requestID, d, resp.StatusCode, string(body), start)
}

// Call dispatches the descriptor and decodes the response body as T.
// When T is a plain string and structured decoding fails, the raw body
// text is returned instead of a decode failure.
func Call[T any](ctx context.Context, c *Client, d Descriptor, opts ...CallOption) (T, error) {
	var zero T

	resp, err := c.Do(ctx, d, opts...)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		if s, ok := any(&out).(*string); ok {
			*s = string(resp.Body)
			return out, nil
		}
		c.metrics.RecordError(ErrorTypeDecodeFailure, d.Method(), d.Path())
		return zero, c.newError(ErrorTypeDecodeFailure, "response body did not match expected shape", err, "", d, resp.StatusCode, string(resp.Body), time.Now())
	}

	return out, nil
}

func (c *Client) buildRequest(ctx context.Context, d Descriptor, requestID string) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, c.newError(ErrorTypeInvalidURL, "malformed base URL", err, requestID, d, 0, "", time.Now())
	}

	target := base.JoinPath(d.Path())
	target.RawQuery = mergeQuery(c.globalQuery, d.Query()).Encode()

	body, err := d.Body()
	if err != nil {
		return nil, c.newError(ErrorTypeEncoding, "request body could not be produced", err, requestID, d, 0, "", time.Now())
	}

	req, err := http.NewRequestWithContext(ctx, d.Method(), target.String(), body)
	if err != nil {
		return nil, c.newError(ErrorTypeInvalidURL, "request construction failed", err, requestID, d, 0, "", time.Now())
	}

	for key, vs := range mergeHeader(c.globalHeader, d.Header()) {
		req.Header[key] = vs
	}

	return req, nil
}

func (c *Client) newError(errorType, message string, cause error, requestID string, d Descriptor, statusCode int, body string, start time.Time) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     d.Method(),
		URL:        c.baseURL,
		Endpoint:   d.Path(),
		StatusCode: statusCode,
		Body:       body,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag && c.logger != nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
