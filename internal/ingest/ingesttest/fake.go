// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package ingesttest provides a scriptable in-memory ingestion server for
// tests of the sync coordinator and the API.
package ingesttest

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/matchsync/internal/ingest"
	"github.com/tomtom215/matchsync/internal/models"
)

// Fake records every call and fails on demand.
type Fake struct {
	mu        sync.Mutex
	submitted []models.Event
	calls     int
	failWith  error
	rejectIDs map[string]error
	block     chan struct{}
	started   chan struct{}
	lifecycle []string
}

var _ ingest.Client = (*Fake)(nil)

// New returns a Fake that accepts everything.
func New() *Fake {
	return &Fake{rejectIDs: make(map[string]error)}
}

// FailWith makes every call fail with err until cleared with nil.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// Reject makes SubmitEvent return err for one event id.
func (f *Fake) Reject(eventID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectIDs[eventID] = err
}

// Accept clears a Reject for one event id.
func (f *Fake) Accept(eventID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rejectIDs, eventID)
}

// Block makes SubmitEvent wait until Release. Started is closed once the
// first blocked call is in flight.
func (f *Fake) Block() (started <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	return f.started
}

// Release unblocks SubmitEvent.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

func (f *Fake) SubmitEvent(ctx context.Context, matchID string, ev models.Event) (*models.Event, error) {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	if started != nil {
		close(started)
		f.started = nil
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &ingest.TimeoutError{Op: "submit_event", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if err, ok := f.rejectIDs[ev.ID]; ok {
		return nil, err
	}
	f.submitted = append(f.submitted, ev)
	return &ev, nil
}

func (f *Fake) StartMatch(_ context.Context, matchID string) (*models.MatchStatus, error) {
	return f.lifecycleCall(matchID, models.MatchLive)
}

func (f *Fake) EndMatch(_ context.Context, matchID string) (*models.MatchStatus, error) {
	return f.lifecycleCall(matchID, models.MatchFinished)
}

func (f *Fake) lifecycleCall(matchID string, state models.MatchState) (*models.MatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lifecycle = append(f.lifecycle, string(state))
	return &models.MatchStatus{MatchID: matchID, Status: state, UpdatedAt: time.Now().UTC()}, nil
}

// Submitted returns the accepted events in arrival order.
func (f *Fake) Submitted() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.submitted...)
}

// SubmittedIDs returns the accepted event ids in arrival order.
func (f *Fake) SubmittedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	for i, ev := range f.submitted {
		out[i] = ev.ID
	}
	return out
}

// Calls returns how many calls reached the fake, including failed ones.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Lifecycle returns the lifecycle states reported so far.
func (f *Fake) Lifecycle() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lifecycle...)
}
