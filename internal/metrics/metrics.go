// Package metrics exposes Prometheus collectors for the HTTP server, the
// chart cache and item history.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webventory"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	chartCache     *prometheus.CounterVec
	chartRenders   prometheus.Counter
	historyAppends prometheus.Counter
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		chartCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_cache_lookups_total",
			Help:      "Chart cache lookups by result (hit or miss).",
		}, []string{"result"}),
		chartRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_renders_total",
			Help:      "Charts rendered from item history.",
		}),
		historyAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_history_appends_total",
			Help:      "Price or quantity changes recorded in item history.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.chartCache,
		m.chartRenders,
		m.historyAppends,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts and times every request passing through next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return promhttp.InstrumentHandlerDuration(m.duration,
		promhttp.InstrumentHandlerCounter(m.requests, next),
	)
}

// ChartCacheHit records a chart served from the cache.
func (m *Metrics) ChartCacheHit() {
	if m != nil {
		m.chartCache.WithLabelValues("hit").Inc()
	}
}

// ChartCacheMiss records a chart that had to be rendered.
func (m *Metrics) ChartCacheMiss() {
	if m != nil {
		m.chartCache.WithLabelValues("miss").Inc()
	}
}

// ChartRendered records one chart render.
func (m *Metrics) ChartRendered() {
	if m != nil {
		m.chartRenders.Inc()
	}
}

// HistoryAppended records one item history row.
func (m *Metrics) HistoryAppended() {
	if m != nil {
		m.historyAppends.Inc()
	}
}
