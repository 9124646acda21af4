// Package metrics defines the Prometheus instruments shared across the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session registry metrics
var (
	// RegistryRegistrations tracks live registrations per registry map
	RegistryRegistrations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_registrations",
			Help: "Live connection registrations by registry map (users/videos/collabs)",
		},
		[]string{"map"},
	)

	// RegistryBroadcasts tracks broadcast calls per registry map and outcome
	RegistryBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_broadcasts_total",
			Help: "Broadcast calls by registry map and status (ok/failed)",
		},
		[]string{"map", "status"},
	)

	// RegistryMessagesSent tracks messages enqueued by successful broadcasts
	RegistryMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_messages_sent_total",
			Help: "Messages enqueued to connections by registry map",
		},
		[]string{"map"},
	)

	// CollabJoins tracks collab join attempts by result
	CollabJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_joins_total",
			Help: "Collab session join attempts by result (ok/rejected)",
		},
		[]string{"result"},
	)
)

// WebSocket metrics
var (
	// WebSocketActiveConnections tracks currently open client connections
	WebSocketActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Currently open WebSocket client connections",
		},
	)

	// WebSocketMessageSendDuration tracks outbound message write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one outbound message to a client",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Keepalive pings that failed to send",
		},
	)
)

// Video pipeline metrics
var (
	// MetadataJobDuration tracks per-file metadata extraction latency
	MetadataJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metadata_job_duration_seconds",
			Help:    "Time to run mediainfo and parse its output for one file",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// MetadataFailures tracks files whose metadata extraction failed
	MetadataFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metadata_failures_total",
			Help: "Files whose metadata extraction failed",
		},
	)

	// IngestedVideos tracks videos accepted into the store by outcome
	IngestedVideos = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingested_videos_total",
			Help: "Uploaded videos processed by outcome (ok/duplicate/failed)",
		},
		[]string{"outcome"},
	)
)
