// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
coordinator.go - Sync Coordinator

The coordinator decides, for every logged event, whether it is delivered
now or parked in the offline queue, and replays the queue when delivery is
possible again.

Delivery path:
  - Submit tries the ingestion API through the circuit breaker while online
    and the queue is empty.
  - While the queue holds events, a new event is appended and the queue is
    drained, so no event overtakes an older one.
  - Offline, breaker rejections, timeouts and transport failures park the
    event. Business rejections are returned to the caller and never queued.

Drain triggers:
  - SetOnline(true) after an offline period (forced, ignores RetryDelay)
  - The periodic driver in Serve
  - DrainQueue and RetryFailed

Only one drain runs at a time; a second caller returns immediately.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/ingest"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/metrics"
	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/queue"
	"github.com/tomtom215/matchsync/internal/timeline"
)

var (
	// ErrNoMatchBound is returned by Submit before BindMatch.
	ErrNoMatchBound = errors.New("no match bound")

	// ErrMatchMismatch is returned for an event that belongs to a match
	// other than the bound one.
	ErrMatchMismatch = errors.New("event does not belong to the bound match")

	// ErrRejected wraps a business rejection from the ingestion server.
	// The event is not queued; retrying cannot succeed.
	ErrRejected = errors.New("event rejected by ingestion server")
)

// DefaultBreakerName is the registry name of the ingestion breaker.
const DefaultBreakerName = "event-ingestion"

// Config configures a Coordinator.
type Config struct {
	// RetryDelay is the minimum gap between attempts of a retried entry
	// on periodic drains.
	RetryDelay time.Duration

	// MaxRetries is the per-entry retry budget. Entries that exhaust it
	// stay queued as failed until RetryFailed.
	MaxRetries int

	// DrainInterval is the period of the background driver.
	DrainInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		RetryDelay:    5 * time.Second,
		MaxRetries:    queue.DefaultMaxRetries,
		DrainInterval: 30 * time.Second,
	}
}

// IngestBreakerSettings returns s with an error filter that keeps business
// rejections out of the failure count.
func IngestBreakerSettings(s breaker.Settings) breaker.Settings {
	s.ErrorFilter = ingest.CountsAsFailure
	return s
}

// SubscriptionID identifies an observer registered with OnSyncUpdate.
type SubscriptionID uint64

// DrainResult describes one drain run.
type DrainResult struct {
	Delivered []string `json:"delivered"`
	Abandoned []string `json:"abandoned"`
	Remaining int      `json:"remaining"`

	// Stopped is set when an entry failed or was not yet due, leaving it
	// and the entries behind it queued.
	Stopped bool `json:"stopped"`

	// Skipped names why nothing was attempted: offline, in_progress or empty.
	Skipped string `json:"skipped,omitempty"`
}

// Status is a snapshot of the coordinator.
type Status struct {
	Online    bool        `json:"online"`
	MatchID   string      `json:"match_id,omitempty"`
	Draining  bool        `json:"draining"`
	Pending   int         `json:"pending"`
	Queue     queue.Stats `json:"queue"`
	Breaker   string      `json:"breaker_state"`
	LastDrain time.Time   `json:"last_drain,omitempty"`
}

// Coordinator routes events to the ingestion server or the offline queue.
// It is safe for concurrent use.
type Coordinator struct {
	client    ingest.Client
	queue     *queue.Queue
	breaker   *breaker.Breaker
	publisher fanout.Publisher
	cfg       Config

	online   atomic.Bool
	draining atomic.Bool
	// rerun is set by drain requests that found a drain running. The
	// running drain makes another pass so their entries are not left
	// waiting for the next interval.
	rerun      atomic.Bool
	rerunForce atomic.Bool

	mu        sync.RWMutex
	matchID   string
	lastDrain time.Time

	observersMu sync.Mutex
	observers   map[SubscriptionID]func(pending int)
	nextSubID   SubscriptionID
}

// NewCoordinator creates a coordinator. It starts offline; the network
// signal or the host calls SetOnline.
func NewCoordinator(client ingest.Client, q *queue.Queue, cb *breaker.Breaker, pub fanout.Publisher, cfg Config) *Coordinator {
	d := DefaultConfig()
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = d.DrainInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if pub == nil {
		pub = fanout.Discard
	}

	metrics.SetOnline(false)
	return &Coordinator{
		client:    client,
		queue:     q,
		breaker:   cb,
		publisher: pub,
		cfg:       cfg,
		observers: make(map[SubscriptionID]func(int)),
	}
}

// BindMatch sets the match new events must belong to. Queued events of a
// previously bound match are still drained.
func (c *Coordinator) BindMatch(matchID string) error {
	if matchID == "" {
		return fmt.Errorf("%w: empty match id", models.ErrMissingMatchID)
	}
	c.mu.Lock()
	prev := c.matchID
	c.matchID = matchID
	c.mu.Unlock()

	if prev != matchID {
		logging.Info().Str("match_id", matchID).Str("previous", prev).Msg("Bound match")
	}
	return nil
}

// MatchID returns the bound match, or "".
func (c *Coordinator) MatchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matchID
}

// Online reports the last network signal.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// SetOnline records the network signal. Coming back online drains the
// queue before returning, ignoring RetryDelay.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	was := c.online.Swap(online)
	metrics.SetOnline(online)
	if was == online {
		return
	}

	if !online {
		logging.Warn().Int("pending", c.queue.Len()).Msg("Went offline, queueing events")
		return
	}

	logging.Info().Int("pending", c.queue.Len()).Msg("Back online, draining offline queue")
	c.drain(ctx, true)
}

// Submit delivers ev or queues it. committed is true only when the server
// acknowledged the event during this call. The error is non-nil only for
// contract violations and business rejections.
func (c *Coordinator) Submit(ctx context.Context, ev models.Event) (committed bool, err error) {
	bound := c.MatchID()
	if bound == "" {
		return false, ErrNoMatchBound
	}
	if ev.MatchID != bound {
		return false, fmt.Errorf("%w: event for %q, bound to %q", ErrMatchMismatch, ev.MatchID, bound)
	}

	if c.queue.Contains(ev.ID) {
		metrics.SyncSubmits.WithLabelValues("duplicate").Inc()
		return false, nil
	}

	if !c.online.Load() {
		c.enqueue(ev, "offline")
		return false, nil
	}

	if c.queue.Len() > 0 {
		c.enqueue(ev, "backlog")
		res := c.drain(ctx, true)
		switch {
		case slices.Contains(res.Delivered, ev.ID):
			metrics.SyncSubmits.WithLabelValues("committed").Inc()
			return true, nil
		case slices.Contains(res.Abandoned, ev.ID):
			metrics.SyncSubmits.WithLabelValues("rejected").Inc()
			return false, fmt.Errorf("%w: event %s", ErrRejected, ev.ID)
		}
		return false, nil
	}

	err = c.deliver(ctx, ev)
	switch {
	case err == nil:
		metrics.SyncSubmits.WithLabelValues("committed").Inc()
		return true, nil
	case ingest.IsRejection(err):
		metrics.SyncSubmits.WithLabelValues("rejected").Inc()
		logging.Warn().Err(err).Str("event_id", ev.ID).Msg("Event rejected by ingestion server")
		return false, fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		logging.Debug().Err(err).Str("event_id", ev.ID).Msg("Delivery failed, queueing event")
		c.enqueue(ev, "failed")
		return false, nil
	}
}

func (c *Coordinator) enqueue(ev models.Event, reason string) {
	if c.queue.Enqueue(ev) {
		metrics.SyncSubmits.WithLabelValues("queued").Inc()
		logging.Debug().Str("event_id", ev.ID).Str("reason", reason).Msg("Event queued")
		c.notify()
	}
}

// deliver sends one event through the breaker and fans it out on success.
func (c *Coordinator) deliver(ctx context.Context, ev models.Event) error {
	accepted, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (*models.Event, error) {
		return c.client.SubmitEvent(ctx, ev.MatchID, ev)
	}, nil)
	if err != nil {
		return err
	}

	committed := ev
	if accepted != nil && accepted.ID == ev.ID {
		committed = *accepted
	}
	c.publish(ctx, fanout.EventMessage(committed, timeline.Format(committed)))
	return nil
}

func (c *Coordinator) publish(ctx context.Context, msg fanout.Message) {
	if err := c.publisher.Publish(ctx, msg); err != nil {
		logging.Warn().Err(err).Str("match_id", msg.MatchID).Str("type", string(msg.Kind)).Msg("Fan-out publish failed")
	}
}

// DrainQueue replays queued events in order. It honours RetryDelay.
func (c *Coordinator) DrainQueue(ctx context.Context) DrainResult {
	return c.drain(ctx, false)
}

// RetryFailed gives failed entries a fresh retry budget and drains. With
// no ids every failed entry is reset.
func (c *Coordinator) RetryFailed(ctx context.Context, ids ...string) (reset int, res DrainResult) {
	reset = c.queue.ResetRetries(ids...)
	if reset > 0 {
		logging.Info().Int("reset", reset).Msg("Reset retry budget of failed events")
		c.notify()
	}
	return reset, c.drain(ctx, true)
}

func (c *Coordinator) drain(ctx context.Context, force bool) DrainResult {
	if !c.online.Load() {
		return DrainResult{Skipped: "offline", Remaining: c.queue.Len()}
	}
	if !c.draining.CompareAndSwap(false, true) {
		if force {
			c.rerunForce.Store(true)
		}
		c.rerun.Store(true)
		metrics.SyncDrains.WithLabelValues("skipped").Inc()
		return DrainResult{Skipped: "in_progress", Remaining: c.queue.Len()}
	}

	start := c.cfg.Now()
	var (
		res      DrainResult
		attempts int
	)
	for {
		c.rerun.Store(false)
		force = c.rerunForce.Swap(false) || force
		attempts += c.drainPass(ctx, force, &res)

		if !c.rerun.Load() || ctx.Err() != nil || !c.online.Load() {
			c.draining.Store(false)
			// A request may have found the drain running after the check
			// above. Pick it up unless another drain already has.
			if !c.rerun.Load() || ctx.Err() != nil || !c.online.Load() ||
				!c.draining.CompareAndSwap(false, true) {
				break
			}
		}
	}
	res.Remaining = c.queue.Len()

	if attempts == 0 && len(res.Delivered) == 0 && len(res.Abandoned) == 0 && !res.Stopped && res.Remaining == 0 {
		return DrainResult{Skipped: "empty"}
	}

	c.mu.Lock()
	c.lastDrain = c.cfg.Now()
	c.mu.Unlock()

	result := "completed"
	if res.Stopped {
		result = "stopped"
	}
	metrics.RecordDrain(result, len(res.Delivered), c.cfg.Now().Sub(start))
	if len(res.Delivered) > 0 || len(res.Abandoned) > 0 {
		logging.Info().
			Int("delivered", len(res.Delivered)).
			Int("abandoned", len(res.Abandoned)).
			Int("remaining", res.Remaining).
			Msg("Drained offline queue")
	}

	c.notify()
	return res
}

// drainPass walks one snapshot of the queue in order, adding to res. It
// returns the number of delivery attempts made.
func (c *Coordinator) drainPass(ctx context.Context, force bool, res *DrainResult) int {
	entries := c.queue.PeekAll()
	res.Stopped = false

	var delivered, abandoned []string
	attempts := 0
	for _, entry := range entries {
		if entry.Retries >= c.cfg.MaxRetries {
			continue
		}
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}
		if !force && entry.Retries > 0 && c.cfg.Now().Sub(entry.LastAttempt) < c.cfg.RetryDelay {
			res.Stopped = true
			break
		}

		attempts++
		err := c.deliver(ctx, entry.Event)
		if err == nil {
			delivered = append(delivered, entry.Event.ID)
			continue
		}
		if ingest.IsRejection(err) {
			abandoned = append(abandoned, entry.Event.ID)
			metrics.SyncAbandoned.Inc()
			logging.Error().Err(err).
				Str("event_id", entry.Event.ID).
				Str("match_id", entry.Event.MatchID).
				Int("retries", entry.Retries).
				Msg("Abandoning queued event rejected by ingestion server")
			continue
		}

		c.queue.MarkAttempt(entry.Event.ID)
		res.Stopped = true
		logging.Debug().Err(err).Str("event_id", entry.Event.ID).Msg("Drain stopped")
		break
	}

	c.queue.Remove(append(delivered, abandoned...)...)
	res.Delivered = append(res.Delivered, delivered...)
	res.Abandoned = append(res.Abandoned, abandoned...)
	return attempts
}

// OnSyncUpdate registers fn to be called with the pending count after
// every queue change.
func (c *Coordinator) OnSyncUpdate(fn func(pending int)) SubscriptionID {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.nextSubID++
	c.observers[c.nextSubID] = fn
	return c.nextSubID
}

// OffSyncUpdate removes an observer.
func (c *Coordinator) OffSyncUpdate(id SubscriptionID) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	delete(c.observers, id)
}

func (c *Coordinator) notify() {
	c.observersMu.Lock()
	fns := make([]func(int), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.observersMu.Unlock()

	pending := c.queue.Len()
	for _, fn := range fns {
		fn(pending)
	}
}

// StartMatch marks a match live on the server and announces it to viewers.
func (c *Coordinator) StartMatch(ctx context.Context, matchID string) (*models.MatchStatus, error) {
	return c.lifecycle(ctx, matchID, c.client.StartMatch)
}

// EndMatch marks a match finished on the server and announces it to viewers.
func (c *Coordinator) EndMatch(ctx context.Context, matchID string) (*models.MatchStatus, error) {
	return c.lifecycle(ctx, matchID, c.client.EndMatch)
}

func (c *Coordinator) lifecycle(ctx context.Context, matchID string, call func(context.Context, string) (*models.MatchStatus, error)) (*models.MatchStatus, error) {
	if matchID == "" {
		matchID = c.MatchID()
	}
	if matchID == "" {
		return nil, ErrNoMatchBound
	}

	status, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (*models.MatchStatus, error) {
		return call(ctx, matchID)
	}, nil)
	if err != nil {
		return nil, err
	}
	if status.MatchID == "" {
		status.MatchID = matchID
	}
	c.publish(ctx, fanout.StatusMessage(*status))
	return status, nil
}

// PublishScore relays a score update to viewers. Scores are not sent to
// the ingestion server.
func (c *Coordinator) PublishScore(ctx context.Context, score models.ScoreUpdate) error {
	if score.MatchID == "" {
		score.MatchID = c.MatchID()
	}
	if score.MatchID == "" {
		return ErrNoMatchBound
	}
	if score.Timestamp.IsZero() {
		score.Timestamp = c.cfg.Now().UTC()
	}
	score.Clock = score.Clock.Clamp()
	return c.publisher.Publish(ctx, fanout.ScoreMessage(score))
}

// Status returns a snapshot for the status endpoint.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	matchID, lastDrain := c.matchID, c.lastDrain
	c.mu.RUnlock()

	stats := c.queue.Stats(c.cfg.MaxRetries)
	return Status{
		Online:    c.online.Load(),
		MatchID:   matchID,
		Draining:  c.draining.Load(),
		Pending:   stats.Total,
		Queue:     stats,
		Breaker:   c.breaker.State().String(),
		LastDrain: lastDrain,
	}
}

// Serve runs the periodic drain until ctx is canceled.
func (c *Coordinator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	logging.Info().Dur("interval", c.cfg.DrainInterval).Msg("Sync driver started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync driver stopped")
			return ctx.Err()
		case <-ticker.C:
			c.DrainQueue(ctx)
		}
	}
}

// String implements fmt.Stringer for the supervisor.
func (c *Coordinator) String() string {
	return "sync-driver"
}
