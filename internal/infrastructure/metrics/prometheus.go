package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheHitRate      prometheus.Gauge
	cacheKeys         prometheus.Gauge
	cacheEvictions    prometheus.Counter
	checkDecisions    *prometheus.CounterVec
	insightDuration   *prometheus.HistogramVec
	degradedForecasts prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	httpErrors        *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bluecore_check_cache_hits_total",
			Help: "Total number of cache hits for permission checks",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bluecore_check_cache_misses_total",
			Help: "Total number of cache misses for permission checks",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bluecore_check_cache_hit_rate",
			Help: "Current cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bluecore_check_cache_keys_current",
			Help: "Current number of keys in the check cache",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bluecore_check_cache_evictions_total",
			Help: "Total number of cache evictions due to capacity limits",
		}),
		checkDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bluecore_check_decisions_total",
				Help: "Total number of permission decisions by outcome",
			},
			[]string{"outcome", "reason"},
		),
		insightDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bluecore_insight_duration_seconds",
				Help:    "Duration of insight sub-queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"kind"},
		),
		degradedForecasts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bluecore_forecasts_degraded_total",
			Help: "Total number of forecasts served by the fallback estimator",
		}),
		httpRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bluecore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route"},
		),
		httpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bluecore_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"route"},
		),
		httpErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bluecore_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"route"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated on the request path, so only update gauges here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(route string) {
	e.httpRequests.WithLabelValues(route).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(route string, durationSeconds float64) {
	e.httpDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordError records an error response in Prometheus.
func (e *PrometheusExporter) RecordError(route string) {
	e.httpErrors.WithLabelValues(route).Inc()
}

// RecordDecision records a permission decision outcome.
func (e *PrometheusExporter) RecordDecision(allowed bool, reason string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	e.checkDecisions.WithLabelValues(outcome, reason).Inc()
}

// RecordInsightDuration records the duration of one insight sub-query.
func (e *PrometheusExporter) RecordInsightDuration(kind string, durationSeconds float64) {
	e.insightDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordDegradedForecast records a forecast served by the fallback estimator.
func (e *PrometheusExporter) RecordDegradedForecast() {
	e.degradedForecasts.Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit() {
	e.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss() {
	e.cacheMisses.Inc()
}

// RecordCacheEviction records a cache eviction.
func (e *PrometheusExporter) RecordCacheEviction() {
	e.cacheEvictions.Inc()
}
