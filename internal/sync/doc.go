// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
Package sync routes match events to the ingestion server, falling back to
the offline queue when the server cannot be reached.

# Submission

While online with an empty queue, Submit delivers the event through the
ingestion circuit breaker. A transport failure, timeout or open breaker
queues the event instead; a rejection from the server is returned to the
caller and nothing is queued. While offline, or while older events are
still queued, new events join the back of the queue so the server always
sees events in the order they were logged.

# Draining

DrainQueue walks the queue in order. Each delivered entry is removed and
fanned out to viewers. The first entry that fails, or is not yet due for a
retry, stops the pass so later entries never overtake it. Entries that
exhaust their retries are skipped and kept for RetryFailed.

Only one drain runs at a time. Coming back online (SetOnline) drains before
returning, and Serve drains periodically while online.
*/
package sync
