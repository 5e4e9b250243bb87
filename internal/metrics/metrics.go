package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics for production monitoring
var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claudeway_requests_total",
			Help: "Total number of /v1/messages requests",
		},
		[]string{"model", "mode", "status"}, // mode: stream/json
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claudeway_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"model", "mode"},
	)

	TimeToFirstEvent = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claudeway_time_to_first_event_seconds",
			Help:    "Latency from request receipt to the first SSE event",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"model"},
	)

	// Upstream metrics
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claudeway_upstream_errors_total",
			Help: "Upstream failures by error kind",
		},
		[]string{"model", "kind"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claudeway_tokens_total",
			Help: "Tokens reported by the upstream",
		},
		[]string{"model", "type"}, // type: input/output
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "claudeway_active_streams",
			Help: "Number of SSE streams currently open",
		},
	)
)
