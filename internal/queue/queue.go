// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package queue holds events that could not be delivered yet.
//
// The queue keeps insertion order, which is the order events must reach
// the server. State lives in memory and the whole list is written through
// to local storage after every mutation, so a crash loses at most the
// mutation in flight.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/metrics"
	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/storage"
)

// StorageKey is the key the serialized queue is stored under.
const StorageKey = "matchsync:offline-queue"

// DefaultMaxRetries is the retry budget used for the queue gauges when
// Options.MaxRetries is unset.
const DefaultMaxRetries = 5

// QueuedEvent is an event plus its delivery bookkeeping.
type QueuedEvent struct {
	Event        models.Event `json:"event"`
	Retries      int          `json:"retries"`
	FirstAttempt time.Time    `json:"first_attempt"`
	LastAttempt  time.Time    `json:"last_attempt"`
}

// Stats counts queue entries by bucket.
type Stats struct {
	Pending  int `json:"pending"`  // never retried
	Retrying int `json:"retrying"` // retried, budget left
	Failed   int `json:"failed"`   // budget exhausted, needs an operator
	Total    int `json:"total"`
}

// Options configures a Queue.
type Options struct {
	// MaxSize caps the queue; 0 means unbounded. When full, the oldest
	// entry is evicted to make room.
	MaxSize int

	// MaxRetries is used to bucket entries for the metrics gauges.
	MaxRetries int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Queue is the offline event queue. It is safe for concurrent use.
type Queue struct {
	store storage.Storage
	opts  Options

	mu      sync.Mutex
	entries []QueuedEvent
}

// Open loads the persisted queue once. A corrupt blob is moved aside and
// the queue starts empty rather than blocking startup.
func Open(store storage.Storage, opts Options) (*Queue, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	q := &Queue{store: store, opts: opts}

	raw, ok, err := store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load offline queue: %w", err)
	}
	if ok && raw != "" {
		var entries []QueuedEvent
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			aside := fmt.Sprintf("%s.corrupt-%d", StorageKey, opts.Now().Unix())
			logging.Error().Err(err).Str("moved_to", aside).Msg("Offline queue is corrupt, starting empty")
			if setErr := store.Set(aside, raw); setErr != nil {
				logging.Error().Err(setErr).Msg("Failed to preserve corrupt offline queue")
			}
		} else {
			q.entries = entries
		}
	}

	q.mu.Lock()
	q.updateGauges()
	q.mu.Unlock()

	logging.Info().Int("entries", len(q.entries)).Msg("Offline queue loaded")
	return q, nil
}

// Enqueue appends ev to the tail. It returns false when an entry with the
// same event id is already queued.
func (q *Queue) Enqueue(ev models.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(ev.ID) >= 0 {
		return false
	}

	if q.opts.MaxSize > 0 && len(q.entries) >= q.opts.MaxSize {
		evicted := q.entries[0]
		q.entries = append(q.entries[:0:0], q.entries[1:]...)
		metrics.QueueEvicted.Inc()
		logging.Warn().
			Str("event_id", evicted.Event.ID).
			Str("match_id", evicted.Event.MatchID).
			Int("max_size", q.opts.MaxSize).
			Msg("Offline queue full, evicted oldest event")
	}

	now := q.opts.Now()
	q.entries = append(q.entries, QueuedEvent{
		Event:        ev,
		FirstAttempt: now,
		LastAttempt:  now,
	})
	metrics.QueueEnqueued.Inc()
	q.persist()
	return true
}

// PeekAll returns a copy of the queue in insertion order.
func (q *Queue) PeekAll() []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueuedEvent(nil), q.entries...)
}

// Remove deletes every entry whose event id is in ids and returns how many
// were removed.
func (q *Queue) Remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0:0]
	for _, e := range q.entries {
		if _, drop := set[e.Event.ID]; !drop {
			kept = append(kept, e)
		}
	}
	removed := len(q.entries) - len(kept)
	if removed == 0 {
		return 0
	}
	q.entries = kept
	q.persist()
	return removed
}

// MarkAttempt records a failed delivery attempt for one entry. It returns
// false if the id is not queued.
func (q *Queue) MarkAttempt(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.entries[i].Retries++
	q.entries[i].LastAttempt = q.opts.Now()
	q.persist()
	return true
}

// ResetRetries clears the retry count of the given entries, or of every
// entry when no ids are passed, so failed events become drainable again.
// It returns how many entries changed.
func (q *Queue) ResetRetries(ids ...string) int {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for i := range q.entries {
		if len(set) > 0 {
			if _, ok := set[q.entries[i].Event.ID]; !ok {
				continue
			}
		}
		if q.entries[i].Retries == 0 {
			continue
		}
		q.entries[i].Retries = 0
		changed++
	}
	if changed > 0 {
		q.persist()
	}
	return changed
}

// ReadyForRetry returns, in order, the entries that still have retry budget
// and whose last attempt is at least retryDelay ago.
func (q *Queue) ReadyForRetry(retryDelay time.Duration, maxRetries int) []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.opts.Now()
	var ready []QueuedEvent
	for _, e := range q.entries {
		if e.Retries < maxRetries && now.Sub(e.LastAttempt) >= retryDelay {
			ready = append(ready, e)
		}
	}
	return ready
}

// Stats buckets the entries against maxRetries.
func (q *Queue) Stats(maxRetries int) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats(maxRetries)
}

func (q *Queue) stats(maxRetries int) Stats {
	s := Stats{Total: len(q.entries)}
	for _, e := range q.entries {
		switch {
		case e.Retries == 0:
			s.Pending++
		case e.Retries < maxRetries:
			s.Retrying++
		default:
			s.Failed++
		}
	}
	return s
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Contains reports whether an event id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(id) >= 0
}

func (q *Queue) indexOf(id string) int {
	for i := range q.entries {
		if q.entries[i].Event.ID == id {
			return i
		}
	}
	return -1
}

// persist writes the whole list through to storage. Failures are logged
// and counted; the in-memory list stays authoritative. Must hold mu.
func (q *Queue) persist() {
	defer q.updateGauges()

	data, err := json.Marshal(q.entries)
	if err != nil {
		metrics.QueuePersistFailures.Inc()
		logging.Error().Err(err).Msg("Failed to encode offline queue")
		return
	}
	if err := q.store.Set(StorageKey, string(data)); err != nil {
		metrics.QueuePersistFailures.Inc()
		logging.Error().Err(err).Int("entries", len(q.entries)).Msg("Failed to persist offline queue")
	}
}

func (q *Queue) updateGauges() {
	s := q.stats(q.opts.MaxRetries)
	metrics.UpdateQueueGauges(s.Pending, s.Retrying, s.Failed)
}
