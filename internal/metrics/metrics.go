// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total circuit breaker calls by outcome",
		},
		[]string{"name", "result"}, // success, failure, rejected, fallback, ignored
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerSlowCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_slow_calls_total",
			Help: "Total calls slower than the slow call threshold",
		},
		[]string{"name"},
	)

	// Offline Queue Metrics
	QueueEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchsync_queue_entries",
			Help: "Current offline queue entries by bucket",
		},
		[]string{"bucket"}, // pending, retrying, failed
	)

	QueueEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchsync_queue_enqueued_total",
			Help: "Total events placed in the offline queue",
		},
	)

	QueueEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchsync_queue_evicted_total",
			Help: "Total events evicted from a full offline queue (oldest first)",
		},
	)

	QueuePersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchsync_queue_persist_failures_total",
			Help: "Total failed writes of the offline queue to local storage",
		},
	)

	// Sync Coordinator Metrics
	SyncSubmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchsync_submits_total",
			Help: "Total event submissions by outcome",
		},
		[]string{"outcome"}, // committed, queued, rejected, duplicate
	)

	SyncDrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchsync_drains_total",
			Help: "Total queue drain runs by result",
		},
		[]string{"result"}, // completed, stopped, skipped
	)

	SyncDrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchsync_drain_duration_seconds",
			Help:    "Duration of queue drain runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	SyncDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchsync_drain_delivered_total",
			Help: "Total queued events delivered by drains",
		},
	)

	SyncAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchsync_drain_abandoned_total",
			Help: "Total queued events dropped after a business rejection",
		},
	)

	SyncOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchsync_online",
			Help: "Whether the ingestion server is considered reachable (1=online)",
		},
	)

	// Ingestion Client Metrics
	IngestRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchsync_ingest_request_duration_seconds",
			Help:    "Duration of ingestion API calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_match_rooms_active",
			Help: "Current number of matches with at least one subscriber",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"kind"},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total messages dropped because a client send buffer was full",
		},
	)

	// Fan-out Bridge Metrics
	FanoutPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchsync_fanout_published_total",
			Help: "Total updates published to NATS by result",
		},
		[]string{"kind", "result"}, // success, failure, rejected
	)

	FanoutReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchsync_fanout_received_total",
			Help: "Total updates received from NATS",
		},
		[]string{"kind"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordIngestCall records one ingestion API round trip.
func RecordIngestCall(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	IngestRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// UpdateQueueGauges sets the per-bucket offline queue gauges.
func UpdateQueueGauges(pending, retrying, failed int) {
	QueueEntries.WithLabelValues("pending").Set(float64(pending))
	QueueEntries.WithLabelValues("retrying").Set(float64(retrying))
	QueueEntries.WithLabelValues("failed").Set(float64(failed))
}

// RecordDrain records a completed drain run.
func RecordDrain(result string, delivered int, duration time.Duration) {
	SyncDrains.WithLabelValues(result).Inc()
	SyncDrainDuration.Observe(duration.Seconds())
	SyncDelivered.Add(float64(delivered))
}

// SetOnline records the current network status.
func SetOnline(online bool) {
	if online {
		SyncOnline.Set(1)
		return
	}
	SyncOnline.Set(0)
}
