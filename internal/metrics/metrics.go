package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_mutations_total",
			Help: "Notification mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications created by type",
		},
		[]string{"type"},
	)

	MembershipGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_grants_total",
			Help: "Membership grant attempts by source and result",
		},
		[]string{"source", "result"},
	)

	FanoutDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_events_delivered_total",
			Help: "Events written to a live session",
		},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_dropped_total",
			Help: "Events dropped before reaching a session",
		},
		[]string{"reason"},
	)

	FanoutSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_sessions_active",
			Help: "Live realtime sessions on this instance",
		},
	)
)
