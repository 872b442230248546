package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonsearch",
			Name:      "search_requests_total",
			Help:      "Total number of search pipeline runs",
		},
		[]string{"outcome"}, // "cached" / "full" / "degraded" / "rate_limited"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lessonsearch",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	SkippedOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonsearch",
			Name:      "skipped_operations_total",
			Help:      "Optional operations skipped due to budget",
		},
		[]string{"operation"},
	)

	DegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonsearch",
			Name:      "degradations_total",
			Help:      "Degraded responses by reason",
		},
		[]string{"reason"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonsearch",
			Name:      "cache_total",
			Help:      "Response and parsed-query cache hits and misses",
		},
		[]string{"kind", "result"}, // kind: "response"/"parsed_query"/"embedding", result: "hit"/"miss"
	)

	UncachedInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lessonsearch",
			Name:      "uncached_pipelines_in_flight",
			Help:      "Concurrent uncached pipeline runs",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(SkippedOperationsTotal)
	prometheus.MustRegister(DegradationsTotal)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(UncachedInFlight)
	pipelineMetricsRegistered = true
}
