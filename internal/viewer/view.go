// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package viewer reconciles the updates a viewer receives into a
// consistent picture of a match.
//
// The fan-out channel is at-least-once and does not order across message
// kinds, so a MatchView applies events idempotently by id and keeps score
// and status updates last-write-wins on their timestamps.
package viewer

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/timeline"
)

// MatchView is the reconciled state of one match. It is safe for
// concurrent use.
type MatchView struct {
	mu      sync.RWMutex
	matchID string

	events map[string]models.Event
	lines  map[string]string
	score  *models.ScoreUpdate
	status *models.MatchStatus
}

// Snapshot is a point-in-time copy of a MatchView.
type Snapshot struct {
	MatchID  string              `json:"match_id"`
	Score    *models.ScoreUpdate `json:"score,omitempty"`
	Status   *models.MatchStatus `json:"status,omitempty"`
	Timeline []string            `json:"timeline"`
	Events   int                 `json:"events"`

	// SuspectedDuplicates lists ids whose line and clock match an earlier
	// event. They stay on the timeline; the id decides identity.
	SuspectedDuplicates []string `json:"suspected_duplicates,omitempty"`
}

// NewMatchView returns an empty view of matchID.
func NewMatchView(matchID string) *MatchView {
	return &MatchView{
		matchID: matchID,
		events:  make(map[string]models.Event),
		lines:   make(map[string]string),
	}
}

// MatchID returns the match this view follows.
func (v *MatchView) MatchID() string {
	return v.matchID
}

// Apply folds msg into the view and reports whether anything changed.
// Messages for other matches are ignored.
func (v *MatchView) Apply(msg fanout.Message) bool {
	if msg.MatchID != v.matchID {
		return false
	}
	switch msg.Kind {
	case fanout.KindEvent:
		if msg.Event == nil {
			return false
		}
		return v.ApplyEvent(*msg.Event, msg.Line)
	case fanout.KindScore:
		if msg.Score == nil {
			return false
		}
		return v.ApplyScore(*msg.Score)
	case fanout.KindStatus:
		if msg.Status == nil {
			return false
		}
		return v.ApplyStatus(*msg.Status)
	}
	return false
}

// ApplyEvent records ev once. Redelivery of a known id is a no-op. When
// line is empty the line is formatted locally.
func (v *MatchView) ApplyEvent(ev models.Event, line string) bool {
	if ev.MatchID != v.matchID || ev.ID == "" {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.events[ev.ID]; ok {
		return false
	}
	if line == "" {
		line = timeline.Format(ev)
	}
	v.events[ev.ID] = ev
	v.lines[ev.ID] = line
	return true
}

// ApplyScore keeps s when it is newer than the current score.
func (v *MatchView) ApplyScore(s models.ScoreUpdate) bool {
	if s.MatchID != v.matchID {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.score != nil && !s.Timestamp.After(v.score.Timestamp) {
		logging.Debug().
			Str("match_id", v.matchID).
			Time("current", v.score.Timestamp).
			Time("received", s.Timestamp).
			Msg("Ignoring stale score update")
		return false
	}
	v.score = &s
	return true
}

// ApplyStatus keeps s when it is newer than the current status.
func (v *MatchView) ApplyStatus(s models.MatchStatus) bool {
	if s.MatchID != v.matchID {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status != nil && !s.UpdatedAt.After(v.status.UpdatedAt) {
		return false
	}
	v.status = &s
	return true
}

// Score returns the latest score, if any.
func (v *MatchView) Score() (models.ScoreUpdate, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.score == nil {
		return models.ScoreUpdate{}, false
	}
	return *v.score, true
}

// Status returns the latest status, if any.
func (v *MatchView) Status() (models.MatchStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.status == nil {
		return models.MatchStatus{}, false
	}
	return *v.status, true
}

// Timeline returns one formatted line per event id in match-clock order.
func (v *MatchView) Timeline() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	lines, _ := v.timelineLocked()
	return lines
}

// SuspectedDuplicates returns the ids of events that share a dedup key
// with an earlier event on the timeline.
func (v *MatchView) SuspectedDuplicates() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, dups := v.timelineLocked()
	return dups
}

func (v *MatchView) timelineLocked() (lines, dups []string) {
	events := make([]models.Event, 0, len(v.events))
	for _, ev := range v.events {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if am, bm := a.Time.Clamp().Millis(), b.Time.Clamp().Millis(); am != bm {
			return am < bm
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	seen := make(map[string]struct{}, len(events))
	lines = make([]string, 0, len(events))
	for _, ev := range events {
		key := timeline.DedupKey(ev)
		if _, dup := seen[key]; dup {
			dups = append(dups, ev.ID)
		}
		seen[key] = struct{}{}
		lines = append(lines, v.lines[ev.ID])
	}
	return lines, dups
}

// Len returns the number of distinct events.
func (v *MatchView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.events)
}

// Snapshot copies the current view.
func (v *MatchView) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	lines, dups := v.timelineLocked()
	snap := Snapshot{
		MatchID:             v.matchID,
		Timeline:            lines,
		Events:              len(v.events),
		SuspectedDuplicates: dups,
	}
	if v.score != nil {
		s := *v.score
		snap.Score = &s
	}
	if v.status != nil {
		s := *v.status
		snap.Status = &s
	}
	return snap
}

// lastActivity is used by Store to evict idle views.
func (v *MatchView) lastActivity() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var last time.Time
	if v.score != nil && v.score.Timestamp.After(last) {
		last = v.score.Timestamp
	}
	if v.status != nil && v.status.UpdatedAt.After(last) {
		last = v.status.UpdatedAt
	}
	for _, ev := range v.events {
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return last
}
