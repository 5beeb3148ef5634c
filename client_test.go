package jalur

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCallDecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"name":"widget","count":3}`)); err != nil {
			t.Fatalf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	client := New(server.URL)
	got, err := Call[item](context.Background(), client, NewRequest(http.MethodGet, "/items"))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if got.Name != "widget" || got.Count != 3 {
		t.Errorf("unexpected decode result: %+v", got)
	}
}

func TestCallStringFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("plain text, not json")); err != nil {
			t.Fatalf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	got, err := Call[string](context.Background(), client, NewRequest(http.MethodGet, "/raw"))
	if err != nil {
		t.Fatalf("expected raw body fallback for string type, got error: %v", err)
	}
	if got != "plain text, not json" {
		t.Errorf("expected raw body text, got %q", got)
	}
}

func TestCallDecodeFailureForStructuredType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("not json")); err != nil {
			t.Fatalf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	type item struct{ Name string }

	client := New(server.URL)
	_, err := Call[item](context.Background(), client, NewRequest(http.MethodGet, "/items"))
	if err == nil {
		t.Fatal("expected decode failure")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeDecodeFailure {
		t.Errorf("expected DecodeFailure, got %v", err)
	}
}

func TestHTTPStatusErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		if _, err := w.Write([]byte("upstream exploded")); err != nil {
			t.Fatalf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/items"))
	if err == nil {
		t.Fatal("expected status error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError, got %T", err)
	}
	if clientErr.Type != ErrorTypeHTTPStatus {
		t.Errorf("expected HttpStatus type, got %s", clientErr.Type)
	}
	if clientErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", clientErr.StatusCode)
	}
	if clientErr.Body != "upstream exploded" {
		t.Errorf("expected verbatim body text, got %q", clientErr.Body)
	}
}

func TestUnauthorizedHookRunsBeforeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	hookCalled := false
	client := New(server.URL, WithUnauthorizedHook(func(resp *http.Response) {
		hookCalled = true
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("hook saw status %d", resp.StatusCode)
		}
	}))

	_, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/secure"))
	if err == nil {
		t.Fatal("expected 401 to surface as an error")
	}
	if !hookCalled {
		t.Error("unauthorized hook was not invoked")
	}
}

func TestSuccessRangeOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL)
	resp, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/maybe"),
		WithSuccessRange(200, 500))
	if err != nil {
		t.Fatalf("404 should be a success under the widened range: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestQueryMergeOnWire(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer server.Close()

	client := New(server.URL, WithGlobalQuery("a", "1"))
	_, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/items",
		WithRequestQuery("a", "2"),
		WithRequestQuery("b", "3")))
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}

	if gotQuery != "a=2&b=3" {
		t.Errorf("expected a=2&b=3 on the wire, got %s", gotQuery)
	}
}

func TestHeaderMergeOnWire(t *testing.T) {
	var gotAccept, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotKey = r.Header.Get("X-Api-Key")
	}))
	defer server.Close()

	client := New(server.URL,
		WithGlobalHeader("Accept", "application/xml"),
		WithGlobalHeader("X-Api-Key", "k1"))
	_, err := client.Do(context.Background(), NewRequest(http.MethodGet, "/items",
		WithRequestHeader("Accept", "application/json")))
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}

	if gotAccept != "application/json" {
		t.Errorf("expected per-call Accept to win, got %s", gotAccept)
	}
	if gotKey != "k1" {
		t.Errorf("expected global header to survive, got %s", gotKey)
	}
}

func TestRatePolicyHoldsCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := New(server.URL)
	descriptor := NewRequest(http.MethodGet, "/limited", WithRatePolicy(2, 300*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Do(context.Background(), descriptor); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}
	elapsed := time.Since(start)

	// Two calls pass immediately; the third is held until the window
	// frees, never rejected.
	if elapsed < 200*time.Millisecond {
		t.Errorf("third call completed after %v; expected it to be held", elapsed)
	}
}

func TestHeldCallIsLoggedAndCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	core, logs := observer.New(zap.DebugLevel)
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(server.URL,
		WithDebug(),
		WithLogger(NewZapLogger(zap.New(core))),
		WithMetricsCollector(collector),
	)
	descriptor := NewRequest(http.MethodGet, "/limited", WithRatePolicy(1, 200*time.Millisecond))

	for i := 0; i < 2; i++ {
		if _, err := client.Do(context.Background(), descriptor); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}

	if got := testutil.ToFloat64(collector.admissionsTotal.WithLabelValues("/limited", "held")); got != 1 {
		t.Errorf("expected 1 held decision, got %v", got)
	}
	if got := testutil.ToFloat64(collector.admissionsTotal.WithLabelValues("/limited", "admitted")); got != 2 {
		t.Errorf("expected 2 admitted decisions, got %v", got)
	}
	if logs.FilterMessage("Held by rate gate").Len() != 1 {
		t.Errorf("expected one hold log line, got %d", logs.FilterMessage("Held by rate gate").Len())
	}
	if logs.FilterMessage("Admitted by rate gate").Len() != 2 {
		t.Errorf("expected two admission log lines, got %d", logs.FilterMessage("Admitted by rate gate").Len())
	}
}

func TestSaturatedEndpointDoesNotBlockOthers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := New(server.URL)
	limited := NewRequest(http.MethodGet, "/limited", WithRatePolicy(1, time.Minute))
	free := NewRequest(http.MethodGet, "/free", WithRatePolicy(1, time.Minute))

	if _, err := client.Do(context.Background(), limited); err != nil {
		t.Fatalf("saturating call failed: %v", err)
	}

	start := time.Now()
	if _, err := client.Do(context.Background(), free); err != nil {
		t.Fatalf("call on independent endpoint failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("independent endpoint was delayed %v by another endpoint's saturation", elapsed)
	}
}

func TestInvalidBaseURL(t *testing.T) {
	client := New("://not-a-url")

	if client.IsValid() {
		t.Error("expected validation to fail for a malformed base URL")
	}
	if client.ValidationError() == nil {
		t.Error("expected a validation error")
	}
}

func TestNewDefaults(t *testing.T) {
	client := New("https://api.example.com")

	if !client.IsValid() {
		t.Fatalf("default configuration should validate: %v", client.ValidationError())
	}
	if client.successLo != 200 || client.successHi != 300 {
		t.Errorf("expected default success range [200,300), got [%d,%d)", client.successLo, client.successHi)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %v", client.httpClient.Timeout)
	}
}

func TestEncodingErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Do(context.Background(), NewRequest(http.MethodPost, "/items",
		WithJSONBody(make(chan int)))) // channels cannot marshal
	if err == nil {
		t.Fatal("expected encoding error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeEncoding {
		t.Errorf("expected EncodingError, got %v", err)
	}
}
