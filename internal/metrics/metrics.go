// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ComposedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_composed_responses_total",
			Help: "Purchase pipeline outcomes by response kind",
		},
		[]string{"kind"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_pipeline_failures_total",
			Help: "Purchase pipeline evaluations aborted by a collaborator failure",
		},
		[]string{"reason"},
	)

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replybot_encode_duration_seconds",
			Help:    "Latency of embedding encode calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	EncodeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_encode_cache_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replybot_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// WatchCacheEntries exports the entry count reported by size as a gauge.
// It registers with the default registry and must be called once.
func WatchCacheEntries(size func() int) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "replybot_cache_entries",
			Help: "Entries held by the in-process cache",
		},
		func() float64 { return float64(size()) },
	)
}
