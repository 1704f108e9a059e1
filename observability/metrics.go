// Package observability carries the broker's ambient concerns — metrics,
// request-id propagation, and health endpoints — that sit alongside the
// gsecret API rather than inside it. Every component here is constructed
// explicitly in main and passed down; none of it is package-level global
// state.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the broker's Prometheus metric vectors on their own
// registry, so /metrics never accidentally serves the default global
// registry's process metrics mixed with ad-hoc collectors from elsewhere.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ChainDispatches     *prometheus.CounterVec
	RateLimitWaits      *prometheus.CounterVec
	UpstreamSyncErrors  *prometheus.CounterVec
}

// NewMetrics registers every gsecret metric vector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsecret_http_requests_total",
		Help: "Total number of HTTP requests served by the broker.",
	}, []string{"method", "path", "status_code"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gsecret_http_request_duration_seconds",
		Help:    "Duration of HTTP requests served by the broker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	chainDispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsecret_chain_dispatches_total",
		Help: "Total number of requests dispatched into a chain, by outcome.",
	}, []string{"chain", "operation", "status"})

	rateLimitWaits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsecret_rate_limit_waits_total",
		Help: "Total number of requests that were queued behind a bucket's rate limit.",
	}, []string{"bucket"})

	upstreamSyncErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gsecret_upstream_sync_errors_total",
		Help: "Total number of failed background sync attempts against an upstream.",
	}, []string{"chain"})

	reg.MustRegister(httpRequestsTotal, httpRequestDuration, chainDispatches, rateLimitWaits, upstreamSyncErrors)

	return &Metrics{
		registry:            reg,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		ChainDispatches:     chainDispatches,
		RateLimitWaits:      rateLimitWaits,
		UpstreamSyncErrors:  upstreamSyncErrors,
	}
}

// Handler returns the handler that serves this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordChainDispatch records the outcome of one chain dispatch.
func (m *Metrics) RecordChainDispatch(chainName, operation, status string) {
	m.ChainDispatches.WithLabelValues(chainName, operation, status).Inc()
}

// RecordRateLimitWait records that a request was queued against bucket.
func (m *Metrics) RecordRateLimitWait(bucket string) {
	m.RateLimitWaits.WithLabelValues(bucket).Inc()
}

// RecordUpstreamSyncError records a failed background sync for chainName.
func (m *Metrics) RecordUpstreamSyncError(chainName string) {
	m.UpstreamSyncErrors.WithLabelValues(chainName).Inc()
}

// InstrumentHandler wraps next so every request it serves is recorded
// against path (the route pattern, not the raw request path, to keep
// cardinality bounded).
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
