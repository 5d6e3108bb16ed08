// Package metrics exposes Prometheus collectors for upstream calls, lookup
// searches and return submissions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmadesk"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	lookupSearches   *prometheus.CounterVec
	lookupDuration   *prometheus.HistogramVec
	lookupSessions   prometheus.Gauge
	submissions      *prometheus.CounterVec
	returnedAmount   *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the pharmacy backend.",
		}, []string{"method", "resource", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of requests sent to the pharmacy backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "resource"}),
		lookupSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_searches_total",
			Help:      "Debounced lookup searches by outcome (applied, stale, failed).",
		}, []string{"kind", "outcome"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_search_duration_seconds",
			Help:      "Latency of debounced lookup searches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		lookupSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lookup_sessions_active",
			Help:      "Lookup sessions currently held in memory.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_submissions_total",
			Help:      "Return submissions by flow and result (success, rejected, failed).",
		}, []string{"flow", "result"}),
		returnedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returned_amount_total",
			Help:      "Sum of successfully submitted return totals.",
		}, []string{"flow"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.upstreamRequests,
		m.upstreamDuration,
		m.lookupSearches,
		m.lookupDuration,
		m.lookupSessions,
		m.submissions,
		m.returnedAmount,
	)
	return m
}

// ObserveUpstream records one backend call. Status 0 means no response.
func (m *Metrics) ObserveUpstream(method, resource string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(method, resource, code).Inc()
	m.upstreamDuration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// ObserveLookup records how a debounced search ended
func (m *Metrics) ObserveLookup(kind, outcome string, elapsed time.Duration) {
	m.lookupSearches.WithLabelValues(kind, outcome).Inc()
	m.lookupDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetLookupSessions reports the number of live lookup sessions
func (m *Metrics) SetLookupSessions(n int) {
	m.lookupSessions.Set(float64(n))
}

// ObserveSubmission records a return submission; amount counts on success only
func (m *Metrics) ObserveSubmission(flow, result string, amount float64) {
	m.submissions.WithLabelValues(flow, result).Inc()
	if result == "success" {
		m.returnedAmount.WithLabelValues(flow).Add(amount)
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinHandler adapts Handler for a gin route
func (m *Metrics) GinHandler() gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
