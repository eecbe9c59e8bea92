// Package metrics provides Prometheus metrics for the orderdesk backend
// (RED for the HTTP surface plus notification fan-out health).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderdesk"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// NotificationClientsActive is the current number of subscribed UI clients.
	NotificationClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_clients_active",
			Help:      "Number of currently subscribed notification clients.",
		},
	)

	// NotificationsPublishedTotal counts events that passed the throttle, by kind.
	NotificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Total number of notifications published to the bus, by event kind.",
		},
		[]string{"type"},
	)

	// NotificationsThrottledTotal counts events suppressed by a cooldown, by kind.
	NotificationsThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_throttled_total",
			Help:      "Total number of notifications suppressed by throttling, by event kind.",
		},
		[]string{"type"},
	)

	// NotificationsDroppedTotal counts events shed from slow-consumer buffers.
	NotificationsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of buffered notifications shed because a consumer fell behind.",
		},
	)

	// ClientsEvictedTotal counts liveness-timeout evictions.
	ClientsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_clients_evicted_total",
			Help:      "Total number of clients evicted for missing liveness updates.",
		},
	)

	// PollCyclesTotal counts completed change-detection scans.
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_poll_cycles_total",
			Help:      "Total number of completed order change-detection cycles.",
		},
	)

	// PollFailuresTotal counts scans abandoned on a datastore error.
	PollFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_poll_failures_total",
			Help:      "Total number of order scans that failed before completing.",
		},
	)

	// OrderChangesDetectedTotal counts fingerprint mismatches found by the poller.
	OrderChangesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_changes_detected_total",
			Help:      "Total number of order state changes detected by fingerprint diffing.",
		},
	)
)
