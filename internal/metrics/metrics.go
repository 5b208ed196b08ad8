// Package metrics holds the Prometheus collectors opgate exposes on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opgate"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	outcomes *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by method, route and status.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Requests currently being served.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Auth operations by operation and result (ok or error kind).",
		}, []string{"operation", "result"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.inflight,
		m.outcomes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RequestStarted() { m.inflight.Inc() }

// RequestFinished records one served request. path must be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) RequestFinished(method, path string, status int, elapsed time.Duration) {
	m.inflight.Dec()
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RecordOutcome counts an auth operation. A nil err counts as "ok".
func (m *Metrics) RecordOutcome(operation string, err error) {
	result := "ok"
	if err != nil {
		result = core.KindOf(err).String()
	}
	m.outcomes.WithLabelValues(operation, result).Inc()
}

// WatchCache exports the counters of an identity cache that keeps stats.
func (m *Metrics) WatchCache(name string, stats func() core.CacheStats) error {
	labels := prometheus.Labels{"cache": name}
	gauges := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_cache_hits_total", Help: "Identity cache hits.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_cache_misses_total", Help: "Identity cache misses.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_cache_evictions_total", Help: "Identity cache evictions.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "identity_cache_entries", Help: "Identity cache entries.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Size) }),
	}
	for _, c := range gauges {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
