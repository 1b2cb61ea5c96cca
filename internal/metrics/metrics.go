package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aggregator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "upstream_requests_total",
		Help:      "Total requests to upstream sites by upstream name and result status.",
	}, []string{"upstream", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aggregator",
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream site request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"upstream"})

	AIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "ai_requests_total",
		Help:      "Total AI completion requests by operation and result status.",
	}, []string{"operation", "status"})

	AIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aggregator",
		Name:      "ai_request_duration_seconds",
		Help:      "AI completion request duration in seconds.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90},
	}, []string{"operation"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		AIRequestsTotal,
		AIRequestDuration,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
