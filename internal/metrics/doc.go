// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package metrics registers the Prometheus collectors for Matchsync.
//
// All collectors are created with promauto on the default registry and
// exposed by the API at GET /metrics.
//
// # Circuit Breakers
//
//   - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
//   - circuit_breaker_requests_total: outcome per call (counter)
//   - circuit_breaker_state_transitions_total: from/to pairs (counter)
//   - circuit_breaker_slow_calls_total: calls over the slow threshold (counter)
//
// # Offline Queue and Sync
//
//   - matchsync_queue_entries{bucket}: pending, retrying, failed (gauge)
//   - matchsync_queue_evicted_total: oldest-first evictions when capped
//   - matchsync_submits_total{outcome}: committed, queued, rejected, duplicate
//   - matchsync_drains_total{result} and matchsync_drain_duration_seconds
//
// # Example Alert
//
//	- alert: MatchsyncBacklogStuck
//	  expr: matchsync_queue_entries{bucket="failed"} > 0
//	  for: 5m
package metrics
