// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectionsCurrent tracks current active WebSocket connections
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// ConnectionsTotal tracks connection attempts by result (anonymous/authenticated/rejected)
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total WebSocket connection attempts by result (anonymous/authenticated/rejected)",
		},
		[]string{"result"},
	)

	// ConnectionsRejected tracks rejected connection attempts by reason
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit/origin)",
		},
		[]string{"reason"},
	)

	// HeartbeatEvictions tracks connections evicted for missing a liveness probe
	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeat_evictions_total",
			Help: "Total connections evicted after failing to answer a heartbeat probe",
		},
	)

	// SlowClientsEvicted tracks connections evicted because their send buffer filled
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_slow_clients_evicted_total",
			Help: "Total connections evicted due to a full send buffer",
		},
	)
)

// Subscription Metrics
var (
	// ChannelsCurrent tracks the number of channels with at least one subscriber
	ChannelsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_channels_current",
			Help: "Number of channels with at least one subscriber",
		},
	)

	// SubscriptionsCurrent tracks the total number of (connection, channel) pairs
	SubscriptionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions_current",
			Help: "Current number of active subscriptions across all channels",
		},
	)

	// ControlFramesTotal tracks inbound control frames by type and result
	ControlFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_control_frames_total",
			Help: "Total inbound control frames by type and result (ok/rejected/error)",
		},
		[]string{"type", "result"},
	)
)

// Broadcast Metrics
var (
	// BroadcastsTotal tracks publish calls by kind
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total publish calls by kind (live_score/match_event/user_notification)",
		},
		[]string{"kind"},
	)

	// BroadcastFanout tracks the number of connections reached per publish call
	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_broadcast_fanout_size",
			Help:    "Connections reached per publish call",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// BroadcastDrops tracks frames dropped because a subscriber's buffer was full
	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_broadcast_drops_total",
			Help: "Total frames dropped during fanout due to full send buffers",
		},
	)

	// HubCommandChannelDepth tracks current hub command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)
)

// Rate Limiter Metrics
var (
	// RateLimitRejections tracks control frames rejected by the limiter
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_rate_limit_rejections_total",
			Help: "Total control frames rejected by the frame rate limiter",
		},
	)

	// RateLimitFailOpens tracks limiter checks that failed open on store errors
	RateLimitFailOpens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_rate_limit_fail_opens_total",
			Help: "Total limiter checks allowed because the counter store was unreachable",
		},
	)

	// RateLimitStoreDuration tracks counter-store round-trip latency
	RateLimitStoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_rate_limit_store_duration_seconds",
			Help:    "Rate-limit store round-trip duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// CircuitBreakerStateChanges tracks limiter-store breaker transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)
