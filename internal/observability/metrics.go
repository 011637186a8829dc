package observability

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Live connection metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of registered live connections",
		},
	)

	ChannelSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "channel_subscriptions_active",
			Help: "Number of (connection, channel) subscriptions currently held",
		},
	)

	WebSocketEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_sent_total",
			Help: "Total number of events queued for delivery to live connections",
		},
		[]string{"type"},
	)

	WebSocketEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_dropped_total",
			Help: "Total number of events dropped because a connection could not keep up",
		},
		[]string{"type"},
	)

	// Task relay metrics
	TaskEventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_events_relayed_total",
			Help: "Task change notifications exchanged with the broker",
		},
		[]string{"direction", "result"},
	)

	// Channel existence cache
	ChannelCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_cache_lookups_total",
			Help: "Channel existence cache lookups by outcome",
		},
		[]string{"result"},
	)

	// Storage metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Message store operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// ObserveStoreOperation records the latency of a store call started at start.
func ObserveStoreOperation(backend, operation string, start time.Time) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// ObserveQuery records the latency of a SQL statement started at start.
func ObserveQuery(operation, table string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// RecordDBStats copies pool statistics into the connection gauges
func RecordDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}

// WatchDBStats samples db pool statistics until ctx is cancelled.
func WatchDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	RecordDBStats(db.Stats())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RecordDBStats(db.Stats())
		}
	}
}
