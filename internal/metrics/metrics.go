// ABOUTME: Prometheus metrics for cheque transitions and notification delivery
// ABOUTME: Registered via promauto, exposed on /metrics by the HTTP server

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Routing metrics
	ChequesDeposited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chequegate_cheques_deposited_total",
			Help: "Total cheques deposited",
		},
	)

	ChequesTransferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chequegate_cheques_transferred_total",
			Help: "Total cheques transferred to their target bank",
		},
	)

	ChequesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chequegate_cheques_resolved_total",
			Help: "Total cheques resolved, by outcome",
		},
		[]string{"outcome"}, // "approved", "rejected", "validated"
	)

	TransitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chequegate_transition_conflicts_total",
			Help: "Total compare-and-set conflicts on cheque transitions",
		},
	)

	NoAgentAvailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chequegate_no_agent_available_total",
			Help: "Total routing failures due to an empty active-agent roster",
		},
		[]string{"bank_id"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chequegate_notifications_sent_total",
			Help: "Total notification events delivered to a connection",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chequegate_notifications_dropped_total",
			Help: "Total notification sends that failed or timed out",
		},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chequegate_live_connections",
			Help: "Currently open real-time connections",
		},
	)
)
