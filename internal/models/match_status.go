// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package models

import "time"

// MatchState is the lifecycle state of a match as reported by the ingestion server.
type MatchState string

const (
	MatchScheduled MatchState = "scheduled"
	MatchLive      MatchState = "live"
	MatchHalfTime  MatchState = "half_time"
	MatchFinished  MatchState = "finished"
	MatchAbandoned MatchState = "abandoned"
)

// MatchStatus is relayed to viewers on a lifecycle change. Matchsync does
// not own it.
type MatchStatus struct {
	MatchID   string     `json:"match_id"`
	Status    MatchState `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Period names the phase of play a score update refers to.
type Period string

const (
	PeriodFirstHalf  Period = "first_half"
	PeriodSecondHalf Period = "second_half"
	PeriodExtraTime  Period = "extra_time"
	PeriodPenalties  Period = "penalties"
)

// ScoreUpdate is a score delta. Viewers reconcile these last-write-wins on
// Timestamp because the fan-out channel does not order across kinds.
type ScoreUpdate struct {
	MatchID   string     `json:"match_id"`
	Home      int        `json:"home"`
	Away      int        `json:"away"`
	Clock     MatchClock `json:"clock"`
	Period    Period     `json:"period"`
	Timestamp time.Time  `json:"timestamp"`
}
