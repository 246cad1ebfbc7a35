// Package metrics exposes Prometheus instrumentation for the realtime layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_connections",
			Help: "Current number of open websocket connections",
		},
	)

	WSDroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_ws_dropped_frames_total",
			Help: "Outbound frames dropped because a connection's send buffer was full or closed",
		},
	)

	WSInvalidFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_invalid_frames_total",
			Help: "Inbound frames rejected by decoding or validation",
		},
		[]string{"event"},
	)

	// Presence
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Current number of user identities with a live connection",
		},
	)

	// Calls
	ActiveCallSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calls_active_sessions",
			Help: "Current number of ringing or active call sessions",
		},
	)

	CallsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_initiated_total",
			Help: "Call initiation attempts by result",
		},
		[]string{"result"}, // "ringing", "offline", "duplicate"
	)

	CallResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_resolved_total",
			Help: "Terminated calls by history status and trigger",
		},
		[]string{"status", "trigger"},
	)

	CallHistoryWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_history_write_failures_total",
			Help: "Call history append attempts that failed after retries",
		},
	)

	SignalingRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_relayed_total",
			Help: "WebRTC negotiation payloads by kind and result",
		},
		[]string{"kind", "result"}, // result: "forwarded", "dropped"
	)
)
