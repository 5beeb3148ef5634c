package jalur

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCorrelationTimeout is returned when no matching inbound frame
	// arrives before the correlated send's deadline.
	ErrCorrelationTimeout = errors.New("jalur: correlation timeout")

	// ErrExtractorMissing is returned when a correlated send is attempted
	// without a message-id extractor configured.
	ErrExtractorMissing = errors.New("jalur: message id extractor not configured")

	// ErrSocketClosed is returned when an operation requires an open
	// connection that has already been closed.
	ErrSocketClosed = errors.New("jalur: socket closed")
)

// Error type discriminators carried by ClientError.Type.
const (
	ErrorTypeInvalidURL         = "InvalidURL"
	ErrorTypeHTTPStatus         = "HttpStatus"
	ErrorTypeUnexpectedResponse = "UnexpectedResponse"
	ErrorTypeDecodeFailure      = "DecodeFailure"
	ErrorTypeEncoding           = "EncodingError"
	ErrorTypeCorrelationTimeout = "CorrelationTimeout"
	ErrorTypeConfiguration      = "ConfigurationError"
)

// ClientError is the error surfaced by the HTTP and socket paths. Type
// discriminates the failure class; the remaining fields carry request
// context for diagnostics. HttpStatus errors keep the response body
// verbatim in Body.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Body       string
	Timestamp  time.Time
	Duration   time.Duration
}

// IsTransient determines if an error represents a transient failure that
// might succeed on a later attempt. 5xx and 429 responses and correlation
// timeouts are transient; malformed URLs, decode/encode failures and
// configuration errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCorrelationTimeout) || errors.Is(err, ErrSocketClosed) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeCorrelationTimeout, ErrorTypeUnexpectedResponse:
			return true
		case ErrorTypeHTTPStatus:
			return clientErr.StatusCode >= 500 || clientErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	switch target {
	case ErrCorrelationTimeout:
		return e.Type == ErrorTypeCorrelationTimeout
	case ErrExtractorMissing:
		return e.Type == ErrorTypeConfiguration
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Body != "" {
		info += fmt.Sprintf("Body: %s\n", e.Body)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
