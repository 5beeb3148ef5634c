package jalur

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RatePolicy limits calls to an endpoint to Times admissions per rolling
// Interval. A nil policy means unlimited.
type RatePolicy struct {
	Times    int
	Interval time.Duration
}

// BodyFunc lazily produces a request body. It runs once per dispatch, at
// the moment the wire request is built.
type BodyFunc func() (io.Reader, error)

// Descriptor describes one HTTP request: method, path relative to the
// client's base URL, headers and query values merged over the client's
// globals, a lazy body, and an optional rate-limit policy.
type Descriptor interface {
	Method() string
	Path() string
	Header() http.Header
	Query() url.Values
	Body() (io.Reader, error)
	RatePolicy() *RatePolicy
}

// Request is the value-type Descriptor. The zero value is not usable;
// construct through NewRequest.
type Request struct {
	method string
	path   string
	header http.Header
	query  url.Values
	body   BodyFunc
	policy *RatePolicy
}

// RequestOption configures a Request under construction.
type RequestOption func(*Request)

// NewRequest builds an immutable request descriptor.
func NewRequest(method, path string, opts ...RequestOption) *Request {
	r := &Request{
		method: method,
		path:   path,
		header: http.Header{},
		query:  url.Values{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithRequestHeader sets a header on the descriptor.
func WithRequestHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

// WithRequestQuery sets a query parameter on the descriptor.
func WithRequestQuery(key, value string) RequestOption {
	return func(r *Request) {
		r.query.Set(key, value)
	}
}

// WithRequestQueryValues sets multiple query parameters at once.
func WithRequestQueryValues(values url.Values) RequestOption {
	return func(r *Request) {
		for key, vs := range values {
			for i, v := range vs {
				if i == 0 {
					r.query.Set(key, v)
				} else {
					r.query.Add(key, v)
				}
			}
		}
	}
}

// WithJSONBody marshals v lazily when the wire request is built and sets
// the Content-Type header.
func WithJSONBody(v interface{}) RequestOption {
	return func(r *Request) {
		r.header.Set("Content-Type", "application/json")
		r.body = func() (io.Reader, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return bytes.NewReader(data), nil
		}
	}
}

// WithRawBody uses the given bytes as the request body.
func WithRawBody(data []byte, contentType string) RequestOption {
	return func(r *Request) {
		if contentType != "" {
			r.header.Set("Content-Type", contentType)
		}
		r.body = func() (io.Reader, error) {
			return bytes.NewReader(data), nil
		}
	}
}

// WithBodyFunc installs a custom lazy body producer.
func WithBodyFunc(fn BodyFunc) RequestOption {
	return func(r *Request) {
		r.body = fn
	}
}

// WithRatePolicy attaches a sliding-window rate limit to the descriptor's
// endpoint.
func WithRatePolicy(times int, interval time.Duration) RequestOption {
	return func(r *Request) {
		r.policy = &RatePolicy{Times: times, Interval: interval}
	}
}

func (r *Request) Method() string { return r.method }

func (r *Request) Path() string { return r.path }

func (r *Request) Header() http.Header { return r.header }

func (r *Request) Query() url.Values { return r.query }

// Body produces the lazy body, or nil when the descriptor has none.
func (r *Request) Body() (io.Reader, error) {
	if r.body == nil {
		return nil, nil
	}
	return r.body()
}

func (r *Request) RatePolicy() *RatePolicy { return r.policy }

// mergeQuery applies global values first, then local values. A local
// parameter replaces every global value under the same name: last write
// wins on collision.
func mergeQuery(global, local url.Values) url.Values {
	merged := url.Values{}
	for key, vs := range global {
		for _, v := range vs {
			merged.Add(key, v)
		}
	}
	for key, vs := range local {
		merged.Del(key)
		for _, v := range vs {
			merged.Add(key, v)
		}
	}
	return merged
}

// mergeHeader applies global headers first, then local ones with the
// same override semantics as mergeQuery.
func mergeHeader(global, local http.Header) http.Header {
	merged := http.Header{}
	for key, vs := range global {
		for _, v := range vs {
			merged.Add(key, v)
		}
	}
	for key, vs := range local {
		merged.Del(key)
		for _, v := range vs {
			merged.Add(key, v)
		}
	}
	return merged
}
