// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package viewer

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/logging"
)

// DefaultMaxMatches bounds the number of views a Store keeps.
const DefaultMaxMatches = 256

// Store keeps a MatchView per match. It is a fanout.Publisher so it can sit
// beside the WebSocket hub and see exactly what viewers see.
type Store struct {
	mu         sync.RWMutex
	views      map[string]*MatchView
	maxMatches int
}

var _ fanout.Publisher = (*Store)(nil)

// NewStore returns a store holding at most maxMatches views. The view with
// the oldest activity is evicted when a new match arrives at capacity.
func NewStore(maxMatches int) *Store {
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	return &Store{
		views:      make(map[string]*MatchView),
		maxMatches: maxMatches,
	}
}

// Publish applies msg to the view of its match.
func (s *Store) Publish(_ context.Context, msg fanout.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.view(msg.MatchID).Apply(msg)
	return nil
}

func (s *Store) view(matchID string) *MatchView {
	s.mu.RLock()
	v, ok := s.views[matchID]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[matchID]; ok {
		return v
	}
	if len(s.views) >= s.maxMatches {
		s.evictLocked()
	}
	v = NewMatchView(matchID)
	s.views[matchID] = v
	return v
}

func (s *Store) evictLocked() {
	var oldest string
	var oldestView *MatchView
	for id, v := range s.views {
		if oldestView == nil || v.lastActivity().Before(oldestView.lastActivity()) {
			oldest, oldestView = id, v
		}
	}
	if oldestView != nil {
		delete(s.views, oldest)
		logging.Debug().Str("match_id", oldest).Msg("Evicted idle match view")
	}
}

// Get returns the view of matchID.
func (s *Store) Get(matchID string) (*MatchView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[matchID]
	return v, ok
}

// Matches lists the followed match ids in sorted order.
func (s *Store) Matches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops the view of matchID.
func (s *Store) Forget(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, matchID)
}
