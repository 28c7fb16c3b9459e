// Package observability holds the Prometheus collectors and OpenTelemetry setup.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by statement verb.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carkey_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of open notification sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carkey_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carkey_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// NotificationsCreated counts inbox entries by notif_type.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carkey_notifications_created_total",
		Help: "Total notifications created by type",
	}, []string{"type"})

	// RecommendEvents counts like and unlike actions, including rejected duplicates.
	RecommendEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carkey_recommend_events_total",
		Help: "Board recommendation events by action and result",
	}, []string{"action", "result"})

	// UploadsTotal counts stored or attached images by backend and source.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carkey_uploads_total",
		Help: "Images attached by storage backend and source (presigned, multipart)",
	}, []string{"backend", "source"})
)
