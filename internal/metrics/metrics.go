package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_events_relayed_total",
			Help: "Events relayed to room members",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_events_dropped_total",
			Help: "Events not delivered to a member",
		},
		[]string{"reason"}, // "buffer_full" or "unauthorized"
	)

	MessagesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_messages_created_total",
			Help: "Messages persisted through the API",
		},
	)

	NotificationsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_web_push_sent_total",
			Help: "Web push notifications sent to offline members",
		},
	)
)
