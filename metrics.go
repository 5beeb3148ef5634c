package jalur

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the HTTP dispatch and
// socket lifecycle. All methods are nil-safe so instrumentation points
// never need guarding. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	admissionsTotal *prometheus.CounterVec
	admissionWait   *prometheus.HistogramVec

	socketState     *prometheus.GaugeVec
	framesTotal     *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	droppedFrames   *prometheus.CounterVec

	correlationTimeouts *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jalur_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jalur_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		admissionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_admissions_total",
				Help: "Total number of rate-gate admission decisions",
			},
			[]string{"endpoint", "decision"},
		),
		admissionWait: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jalur_admission_wait_seconds",
				Help:    "Time spent waiting for rate-gate admission",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		socketState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jalur_socket_state",
				Help: "Current socket state (0=not connected, 1=connecting, 2=connected, 3=closed)",
			},
			[]string{"url"},
		),
		framesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_socket_frames_total",
				Help: "Total number of socket frames by direction",
			},
			[]string{"direction", "type"},
		),
		reconnectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_socket_reconnects_total",
				Help: "Total number of automatic reconnect attempts",
			},
			[]string{"url"},
		),
		queueDepth: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jalur_socket_queue_depth",
				Help: "Number of outbound frames waiting for an open connection",
			},
			[]string{"url"},
		),
		droppedFrames: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_socket_dropped_frames_total",
				Help: "Total number of queued frames dropped after exhausting send attempts",
			},
			[]string{"url"},
		),
		correlationTimeouts: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_correlation_timeouts_total",
				Help: "Total number of correlated sends that timed out",
			},
			[]string{"url"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalur_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
		registry: registry,
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordAdmission counts one admission decision.
func (mc *MetricsCollector) RecordAdmission(endpoint string, admitted bool) {
	if mc == nil {
		return
	}

	decision := "admitted"
	if !admitted {
		decision = "held"
	}
	mc.admissionsTotal.WithLabelValues(endpoint, decision).Inc()
}

// RecordAdmissionWait observes how long a caller waited for admission.
func (mc *MetricsCollector) RecordAdmissionWait(endpoint string, wait time.Duration) {
	if mc == nil {
		return
	}

	mc.admissionWait.WithLabelValues(endpoint).Observe(wait.Seconds())
}

// RecordSocketState sets the state gauge for a socket URL.
func (mc *MetricsCollector) RecordSocketState(url string, state ConnState) {
	if mc == nil {
		return
	}

	mc.socketState.WithLabelValues(url).Set(float64(state))
}

// RecordFrame counts one frame by direction ("in"/"out") and type.
func (mc *MetricsCollector) RecordFrame(direction, frameType string) {
	if mc == nil {
		return
	}

	mc.framesTotal.WithLabelValues(direction, frameType).Inc()
}

// RecordReconnect counts one automatic reconnect attempt.
func (mc *MetricsCollector) RecordReconnect(url string) {
	if mc == nil {
		return
	}

	mc.reconnectsTotal.WithLabelValues(url).Inc()
}

// RecordQueueDepth sets the outbound queue depth gauge.
func (mc *MetricsCollector) RecordQueueDepth(url string, depth int) {
	if mc == nil {
		return
	}

	mc.queueDepth.WithLabelValues(url).Set(float64(depth))
}

// RecordDroppedFrame counts one queued frame discarded after its final
// send attempt.
func (mc *MetricsCollector) RecordDroppedFrame(url string) {
	if mc == nil {
		return
	}

	mc.droppedFrames.WithLabelValues(url).Inc()
}

// RecordCorrelationTimeout counts one correlated send that timed out.
func (mc *MetricsCollector) RecordCorrelationTimeout(url string) {
	if mc == nil {
		return
	}

	mc.correlationTimeouts.WithLabelValues(url).Inc()
}

// RecordError increments the error counter for the given type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
