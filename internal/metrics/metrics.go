// Package metrics holds the client's prometheus collectors.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder encapsulates Prometheus instrumentation for outbound API traffic and client state.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	discarded       *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	authenticated   prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	failureCount         uint64
	discardedCount       uint64
}

// Snapshot is a point-in-time summary printed by the CLI.
type Snapshot struct {
	RequestsTotal            uint64
	RequestFailures          uint64
	AverageRequestDurationMs float64
	DiscardedResponses       uint64
	Goroutines               int
	GeneratedAt              time.Time
}

// New registers the client collectors on a private registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "client_request_duration_seconds",
		Help:    "Duration of outbound API requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_requests_total",
		Help: "Total number of outbound API requests",
	}, []string{"method", "endpoint", "status"})

	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "list_responses_discarded_total",
		Help: "List responses dropped because a newer fetch was issued",
	}, []string{"resource"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "list_mutations_total",
		Help: "List mutations by resource, operation and outcome",
	}, []string{"resource", "operation", "outcome"})

	authenticated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_authenticated",
		Help: "1 when a user is signed in, 0 otherwise",
	})

	registry.MustRegister(requestDuration, requestTotal, discarded, mutations, authenticated,
		collectors.NewGoCollector())

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		discarded:       discarded,
		mutations:       mutations,
		authenticated:   authenticated,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Recorder) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Recorder) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one outbound request. status 0 means the transport failed.
func (m *Recorder) ObserveRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestDuration.WithLabelValues(method, endpoint, label).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, endpoint, label).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
	if status == 0 || status >= 400 {
		atomic.AddUint64(&m.failureCount, 1)
	}
}

// RecordDiscarded counts a stale list response dropped by the sequence guard.
func (m *Recorder) RecordDiscarded(resource string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(resource).Inc()
	atomic.AddUint64(&m.discardedCount, 1)
}

// RecordMutation counts a list mutation outcome.
func (m *Recorder) RecordMutation(resource, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.mutations.WithLabelValues(resource, operation, outcome).Inc()
}

// SetAuthenticated mirrors the session state.
func (m *Recorder) SetAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}

// Snapshot returns aggregated counters.
func (m *Recorder) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	duration := atomic.LoadUint64(&m.requestDurationTotal)

	var avg float64
	if requests > 0 {
		avg = float64(duration) / float64(requests) / float64(time.Millisecond)
	}

	return Snapshot{
		RequestsTotal:            requests,
		RequestFailures:          atomic.LoadUint64(&m.failureCount),
		AverageRequestDurationMs: avg,
		DiscardedResponses:       atomic.LoadUint64(&m.discardedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
