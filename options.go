package jalur

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Option represents a configuration option for Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithGlobalHeader sets a header applied to every request. Descriptor
// headers with the same name override it.
func WithGlobalHeader(key, value string) Option {
	return func(c *Client) {
		c.globalHeader.Set(key, value)
	}
}

// WithGlobalQuery sets a query parameter applied to every request.
// Descriptor parameters with the same name override it.
func WithGlobalQuery(key, value string) Option {
	return func(c *Client) {
		c.globalQuery.Set(key, value)
	}
}

// WithGlobalRateLimit applies a client-wide token-bucket ceiling on top
// of the per-endpoint sliding windows.
func WithGlobalRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.globalLimit = rate.NewLimiter(r, burst)
	}
}

// WithRateGate shares a rate gate between clients.
func WithRateGate(gate *RateGate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// WithDefaultSuccessRange overrides the client default half-open
// [lo, hi) status range treated as success.
func WithDefaultSuccessRange(lo, hi int) Option {
	return func(c *Client) {
		c.successLo = lo
		c.successHi = hi
	}
}

// WithUnauthorizedHook installs a hook invoked on a 401 response before
// the error is surfaced.
func WithUnauthorizedHook(fn func(*http.Response)) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns
// an error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.baseURL == "" {
		problems = append(problems, "base URL must not be empty")
	} else if u, err := url.Parse(c.baseURL); err != nil {
		problems = append(problems, fmt.Sprintf("base URL does not parse: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		problems = append(problems, fmt.Sprintf("base URL scheme must be http or https, got %q", u.Scheme))
	}

	if c.successLo >= c.successHi {
		problems = append(problems, fmt.Sprintf("success range [%d, %d) is empty", c.successLo, c.successHi))
	}

	if c.httpClient == nil {
		problems = append(problems, "HTTP client must not be nil")
	}

	if c.gate == nil {
		problems = append(problems, "rate gate must not be nil")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
