package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the broadcast service. Registered on the default
// registry and exposed by the HTTP server under /metrics.
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockpulse_active_connections",
		Help: "Number of currently open WebSocket connections.",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_messages_sent_total",
		Help: "Total messages accepted into per-connection send buffers.",
	})

	RateLimitSuppressions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_rate_limited_total",
		Help: "Total data messages suppressed by the per-connection rate limiter.",
	})

	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_send_errors_total",
		Help: "Total failed sends (closed connection or full send buffer).",
	})

	SupersededUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_superseded_updates_total",
		Help: "Total queued price updates replaced in place by a newer update for the same symbol.",
	})

	ProviderErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_provider_errors_total",
		Help: "Total upstream data provider failures.",
	})

	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_heartbeat_timeouts_total",
		Help: "Total connections dropped for missing heartbeats.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockpulse_broadcast_queue_depth",
		Help: "Current number of pending updates in the broadcast queue.",
	})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockpulse_poll_duration_seconds",
		Help:    "Duration of a full polling cycle across all tracked symbols.",
		Buckets: prometheus.DefBuckets,
	})
)
