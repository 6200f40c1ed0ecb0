// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/matchsync/internal/metrics"
	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func testEvent(t *testing.T, n int) models.Event {
	t.Helper()
	ev, err := models.NewEvent(models.EventInput{
		MatchID:       "m1",
		Type:          models.EventGoal,
		Time:          models.NewMatchClock(n, 0, 0),
		ActorPlayerID: fmt.Sprintf("P%d", n),
		Metadata:      models.GoalMetadata{GoalType: models.GoalOpenPlay},
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func openQueue(t *testing.T, store storage.Storage, clock *fakeClock, opts Options) *Queue {
	t.Helper()
	opts.Now = clock.Now
	q, err := Open(store, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return q
}

func ids(entries []QueuedEvent) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Event.ID
	}
	return out
}

func TestQueue_EnqueuePreservesOrder(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{})
	events := []models.Event{testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)}
	for _, ev := range events {
		if !q.Enqueue(ev) {
			t.Fatalf("Enqueue(%s) returned false", ev.ID)
		}
	}

	got := ids(q.PeekAll())
	for i, ev := range events {
		if got[i] != ev.ID {
			t.Errorf("position %d: expected %s, got %s", i, ev.ID, got[i])
		}
	}
}

func TestQueue_EnqueueSetsBookkeeping(t *testing.T) {
	clock := newClock()
	q := openQueue(t, storage.NewMemory(), clock, Options{})
	q.Enqueue(testEvent(t, 1))

	e := q.PeekAll()[0]
	if e.Retries != 0 || !e.FirstAttempt.Equal(clock.Now()) || !e.LastAttempt.Equal(clock.Now()) {
		t.Errorf("unexpected bookkeeping: %+v", e)
	}
}

func TestQueue_EnqueueRejectsDuplicateID(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{})
	ev := testEvent(t, 1)

	q.Enqueue(ev)
	if q.Enqueue(ev) {
		t.Error("expected duplicate enqueue to return false")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", q.Len())
	}
	if !q.Contains(ev.ID) {
		t.Error("expected Contains to find the event")
	}
}

func TestQueue_PeekAllIsACopy(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{})
	q.Enqueue(testEvent(t, 1))

	snap := q.PeekAll()
	snap[0].Retries = 99
	if q.PeekAll()[0].Retries != 0 {
		t.Error("mutating a snapshot must not change the queue")
	}
}

func TestQueue_Remove(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{})
	a, b, c := testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	if n := q.Remove(a.ID, c.ID, "unknown"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	got := ids(q.PeekAll())
	if len(got) != 1 || got[0] != b.ID {
		t.Errorf("expected only %s left, got %v", b.ID, got)
	}
	if n := q.Remove(); n != 0 {
		t.Errorf("expected empty Remove to do nothing, got %d", n)
	}
}

func TestQueue_MarkAttempt(t *testing.T) {
	clock := newClock()
	q := openQueue(t, storage.NewMemory(), clock, Options{})
	ev := testEvent(t, 1)
	q.Enqueue(ev)

	clock.Advance(5 * time.Second)
	if !q.MarkAttempt(ev.ID) {
		t.Fatal("MarkAttempt returned false")
	}
	e := q.PeekAll()[0]
	if e.Retries != 1 || !e.LastAttempt.Equal(clock.Now()) {
		t.Errorf("unexpected entry after attempt: %+v", e)
	}
	if e.FirstAttempt.Equal(e.LastAttempt) {
		t.Error("FirstAttempt must not move")
	}
	if q.MarkAttempt("unknown") {
		t.Error("expected MarkAttempt on unknown id to return false")
	}
}

func TestQueue_ReadyForRetry(t *testing.T) {
	clock := newClock()
	q := openQueue(t, storage.NewMemory(), clock, Options{})
	fresh, retried, exhausted := testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)
	q.Enqueue(fresh)
	q.Enqueue(retried)
	q.Enqueue(exhausted)

	for i := 0; i < 3; i++ {
		q.MarkAttempt(exhausted.ID)
	}
	clock.Advance(10 * time.Second)
	q.MarkAttempt(retried.ID)

	ready := ids(q.ReadyForRetry(10*time.Second, 3))
	if len(ready) != 1 || ready[0] != fresh.ID {
		t.Errorf("expected only the fresh event ready, got %v", ready)
	}

	clock.Advance(10 * time.Second)
	ready = ids(q.ReadyForRetry(10*time.Second, 3))
	if len(ready) != 2 || ready[0] != fresh.ID || ready[1] != retried.ID {
		t.Errorf("expected fresh and retried in order, got %v", ready)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{MaxRetries: 3})
	pending, retrying, failed := testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)
	q.Enqueue(pending)
	q.Enqueue(retrying)
	q.Enqueue(failed)
	q.MarkAttempt(retrying.ID)
	for i := 0; i < 3; i++ {
		q.MarkAttempt(failed.ID)
	}

	want := Stats{Pending: 1, Retrying: 1, Failed: 1, Total: 3}
	if got := q.Stats(3); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if got := testutil.ToFloat64(metrics.QueueEntries.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected failed gauge 1, got %v", got)
	}
}

func TestQueue_WriteThroughAndReload(t *testing.T) {
	store := storage.NewMemory()
	clock := newClock()
	q := openQueue(t, store, clock, Options{})
	a, b := testEvent(t, 1), testEvent(t, 2)

	q.Enqueue(a)
	q.Enqueue(b)
	q.MarkAttempt(a.ID)
	if store.Writes() != 3 {
		t.Errorf("expected a write per mutation, got %d", store.Writes())
	}

	reloaded := openQueue(t, store, clock, Options{})
	entries := reloaded.PeekAll()
	if len(entries) != 2 || entries[0].Event.ID != a.ID || entries[1].Event.ID != b.ID {
		t.Fatalf("expected reload in order, got %v", ids(entries))
	}
	if entries[0].Retries != 1 {
		t.Errorf("expected retries to survive reload, got %d", entries[0].Retries)
	}
	if _, ok := entries[0].Event.Metadata.(models.GoalMetadata); !ok {
		t.Errorf("expected goal metadata to survive reload, got %#v", entries[0].Event.Metadata)
	}
}

func TestQueue_PersistFailureKeepsMemoryState(t *testing.T) {
	store := storage.NewMemory()
	q := openQueue(t, store, newClock(), Options{})
	store.SetFailWrites(errors.New("quota exceeded"))
	before := testutil.ToFloat64(metrics.QueuePersistFailures)

	if !q.Enqueue(testEvent(t, 1)) {
		t.Fatal("expected enqueue to succeed in memory")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", q.Len())
	}
	if got := testutil.ToFloat64(metrics.QueuePersistFailures); got != before+1 {
		t.Errorf("expected persist failure to be counted, got %v", got)
	}
}

func TestQueue_CorruptBlobStartsEmpty(t *testing.T) {
	store := storage.NewMemory()
	if err := store.Set(StorageKey, "{not json"); err != nil {
		t.Fatal(err)
	}
	clock := newClock()
	q := openQueue(t, store, clock, Options{})

	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
	aside := fmt.Sprintf("%s.corrupt-%d", StorageKey, clock.Now().Unix())
	if v, ok, _ := store.Get(aside); !ok || v != "{not json" {
		t.Errorf("expected corrupt blob preserved at %s", aside)
	}
}

func TestQueue_ResetRetries(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{MaxRetries: 2})
	a, b, c := testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	for i := 0; i < 2; i++ {
		q.MarkAttempt(a.ID)
		q.MarkAttempt(b.ID)
	}

	if n := q.ResetRetries(a.ID, c.ID); n != 1 {
		t.Errorf("expected only %s to change, got %d", a.ID, n)
	}
	if got := q.Stats(2); got.Failed != 1 || got.Pending != 2 {
		t.Errorf("unexpected stats after targeted reset: %+v", got)
	}

	if n := q.ResetRetries(); n != 1 {
		t.Errorf("expected reset-all to change 1 entry, got %d", n)
	}
	if got := q.Stats(2); got.Pending != 3 {
		t.Errorf("expected all pending, got %+v", got)
	}
}

func TestQueue_MaxSizeEvictsOldest(t *testing.T) {
	q := openQueue(t, storage.NewMemory(), newClock(), Options{MaxSize: 2})
	a, b, c := testEvent(t, 1), testEvent(t, 2), testEvent(t, 3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	got := ids(q.PeekAll())
	if len(got) != 2 || got[0] != b.ID || got[1] != c.ID {
		t.Errorf("expected [%s %s], got %v", b.ID, c.ID, got)
	}
}
