package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exposes session measurements as Prometheus collectors.
type PrometheusRecorder struct {
	operations  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	enrichments *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPrometheusRecorder creates the session collectors and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parlor_session_operations_total",
			Help: "Session operations by outcome.",
		}, []string{"operation", "result", "error_kind"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parlor_session_operation_duration_seconds",
			Help:    "Session operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parlor_session_enrichments_total",
			Help: "Profile enrichment attempts by outcome.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parlor_session_transitions_total",
			Help: "Session status transitions.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.opDuration, r.enrichments, r.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordOperation(m OperationMetric) {
	r.operations.WithLabelValues(m.Operation, m.Result, m.ErrorKind).Inc()
	if m.Duration > 0 {
		r.opDuration.WithLabelValues(m.Operation).Observe(m.Duration.Seconds())
	}
}

func (r *PrometheusRecorder) RecordEnrichment(m EnrichmentMetric) {
	r.enrichments.WithLabelValues(m.Result).Inc()
}

func (r *PrometheusRecorder) RecordTransition(status string) {
	r.transitions.WithLabelValues(status).Inc()
}

// HTTPMetrics instruments HTTP handlers with request counters and latencies.
type HTTPMetrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the HTTP collectors and registers them with reg.
// Collectors that are already registered are reused.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	var err error
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Instrument wraps next and records in-flight, count, and latency per route pattern.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.duration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(r.Method, path, status).Inc()
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
