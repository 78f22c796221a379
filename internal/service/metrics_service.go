package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

// Ledger outcome labels beyond the two successful submit outcomes.
const (
	outcomeLabelBusy        = "busy"
	outcomeLabelUnavailable = "storage_unavailable"
	outcomeLabelCorrupt     = "storage_corrupt"
	outcomeLabelError       = "error"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	submitDuration  *prometheus.HistogramVec
	submitTotal     *prometheus.CounterVec
	busyRetries     prometheus.Counter
	sessionEvents   *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	submitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_submit_duration_seconds",
		Help:    "Duration of ledger submits including the lock wait",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	submitTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_submits_total",
		Help: "Ledger submits by outcome",
	}, []string{"outcome"})

	busyRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_busy_retries_total",
		Help: "Check-in submits retried after the ledger reported busy",
	})

	sessionEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_events_total",
		Help: "Session lifecycle transitions",
	}, []string{"event"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		submitDuration, submitTotal, busyRetries, sessionEvents, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		submitDuration:  submitDuration,
		submitTotal:     submitTotal,
		busyRetries:     busyRetries,
		sessionEvents:   sessionEvents,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSubmit records one ledger submit under its outcome label.
func (m *MetricsService) ObserveSubmit(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.submitDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.submitTotal.WithLabelValues(outcome).Inc()
}

// RecordBusyRetry counts a check-in retry after a busy ledger.
func (m *MetricsService) RecordBusyRetry() {
	if m == nil {
		return
	}
	m.busyRetries.Inc()
}

// RecordSessionEvent counts session transitions ("created", "replaced",
// "deactivated", "expired").
func (m *MetricsService) RecordSessionEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionEvents.WithLabelValues(event).Add(float64(n))
}

func submitOutcomeLabel(outcome models.SubmitOutcome) string {
	return string(outcome)
}
