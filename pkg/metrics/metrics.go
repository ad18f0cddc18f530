package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently open live notification connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_active_connections",
			Help: "Number of open websocket connections",
		},
	)

	// ConnectedUsers tracks distinct users with at least one live connection.
	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_connected_users",
			Help: "Number of distinct users with a live connection",
		},
	)

	// NotificationsCreated counts persisted notifications by kind.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"type"},
	)

	// LiveDeliveries counts live push attempts by result (delivered|dropped|offline).
	LiveDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_live_deliveries_total",
			Help: "Total number of live delivery attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
