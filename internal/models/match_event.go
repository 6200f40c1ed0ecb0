// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package models

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TimestampLayout is the wall-clock wire format: ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Match clock bounds. Values outside are clamped.
const (
	MaxMinute      = 120
	MaxSecond      = 59
	MaxMillisecond = 999
)

var (
	// ErrUnknownEventType is returned when an event type is outside the closed set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMetadataMismatch is returned when metadata does not belong to the event type.
	ErrMetadataMismatch = errors.New("metadata does not match event type")

	// ErrMissingMatchID is returned when an event is created without a match.
	ErrMissingMatchID = errors.New("event requires a match id")
)

// EventType is the closed set of things that can happen in a match.
type EventType string

const (
	EventGoal         EventType = "goal"
	EventCard         EventType = "card"
	EventSubstitution EventType = "substitution"
	EventFoul         EventType = "foul"
	EventInjury       EventType = "injury"
	EventVARReview    EventType = "var_review"
	EventPenalty      EventType = "penalty"
	EventKickoff      EventType = "kickoff"
	EventHalfTime     EventType = "half_time"
	EventFullTime     EventType = "full_time"
	EventOther        EventType = "other"
)

// AllEventTypes lists every EventType in display order.
var AllEventTypes = []EventType{
	EventGoal, EventCard, EventSubstitution, EventFoul, EventInjury,
	EventVARReview, EventPenalty, EventKickoff, EventHalfTime, EventFullTime, EventOther,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MatchClock is a position on the match clock. It is independent of wall
// time: it stops at half-time while the wall clock keeps running.
type MatchClock struct {
	Minute      int `json:"minute"`
	Second      int `json:"second"`
	Millisecond int `json:"millisecond"`
}

// NewMatchClock builds a clamped MatchClock.
func NewMatchClock(minute, second, millisecond int) MatchClock {
	return MatchClock{Minute: minute, Second: second, Millisecond: millisecond}.Clamp()
}

// Clamp pulls every component into its valid range.
func (c MatchClock) Clamp() MatchClock {
	return MatchClock{
		Minute:      clamp(c.Minute, 0, MaxMinute),
		Second:      clamp(c.Second, 0, MaxSecond),
		Millisecond: clamp(c.Millisecond, 0, MaxMillisecond),
	}
}

// Millis returns the clock position in milliseconds since kickoff.
func (c MatchClock) Millis() int64 {
	return int64(c.Minute)*60_000 + int64(c.Second)*1_000 + int64(c.Millisecond)
}

// Before reports whether c is earlier on the match clock than o.
func (c MatchClock) Before(o MatchClock) bool {
	return c.Millis() < o.Millis()
}

// String renders the clock as MM:SS.mmm.
func (c MatchClock) String() string {
	return fmt.Sprintf("%02d:%02d.%03d", c.Minute, c.Second, c.Millisecond)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Event is an immutable fact about something that happened in a match.
// Corrections are recorded as new events, never as edits.
type Event struct {
	ID                string        `json:"id"`
	MatchID           string        `json:"match_id"`
	Type              EventType     `json:"type"`
	Time              MatchClock    `json:"time"`
	Timestamp         time.Time     `json:"timestamp"`
	ActorPlayerID     string        `json:"actor_player_id"`
	SecondaryPlayerID string        `json:"secondary_player_id,omitempty"`
	Metadata          EventMetadata `json:"metadata,omitempty"`
}

// EventInput carries the logger-supplied fields of a new event.
type EventInput struct {
	MatchID           string
	Type              EventType
	Time              MatchClock
	ActorPlayerID     string
	SecondaryPlayerID string
	Metadata          EventMetadata
}

// NewEvent creates an event with a client-side id and capture timestamp.
// The match clock is clamped rather than rejected.
func NewEvent(in EventInput) (Event, error) {
	return NewEventAt(in, time.Now())
}

// NewEventAt is NewEvent with an explicit capture time.
func NewEventAt(in EventInput, capturedAt time.Time) (Event, error) {
	if strings.TrimSpace(in.MatchID) == "" {
		return Event{}, ErrMissingMatchID
	}
	if !in.Type.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, in.Type)
	}
	if in.Metadata != nil && in.Metadata.Kind() != MetadataKindFor(in.Type) {
		return Event{}, fmt.Errorf("%w: %s metadata on %s event", ErrMetadataMismatch, in.Metadata.Kind(), in.Type)
	}
	if in.Metadata != nil {
		if err := ValidateMetadata(in.Metadata); err != nil {
			return Event{}, err
		}
	}

	return Event{
		ID:                uuid.New().String(),
		MatchID:           in.MatchID,
		Type:              in.Type,
		Time:              in.Time.Clamp(),
		Timestamp:         capturedAt.UTC().Truncate(time.Millisecond),
		ActorPlayerID:     in.ActorPlayerID,
		SecondaryPlayerID: in.SecondaryPlayerID,
		Metadata:          in.Metadata,
	}, nil
}

type eventWire struct {
	ID                string          `json:"id"`
	MatchID           string          `json:"match_id"`
	Type              EventType       `json:"type"`
	Time              MatchClock      `json:"time"`
	Timestamp         string          `json:"timestamp"`
	ActorPlayerID     string          `json:"actor_player_id"`
	SecondaryPlayerID string          `json:"secondary_player_id,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// MarshalJSON writes the timestamp with millisecond precision and the
// metadata as a kind-tagged object.
func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWire{
		ID:                e.ID,
		MatchID:           e.MatchID,
		Type:              e.Type,
		Time:              e.Time,
		Timestamp:         e.Timestamp.UTC().Format(TimestampLayout),
		ActorPlayerID:     e.ActorPlayerID,
		SecondaryPlayerID: e.SecondaryPlayerID,
	}
	if e.Metadata != nil {
		raw, err := MarshalMetadata(e.Metadata)
		if err != nil {
			return nil, err
		}
		w.Metadata = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event, selecting the metadata variant from the
// event type. The match clock is clamped on the way in.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}

	var ts time.Time
	if w.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return fmt.Errorf("invalid event timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	var meta EventMetadata
	if len(w.Metadata) > 0 && !bytes.Equal(w.Metadata, []byte("null")) {
		m, err := UnmarshalMetadata(w.Type, w.Metadata)
		if err != nil {
			return err
		}
		meta = m
	}

	*e = Event{
		ID:                w.ID,
		MatchID:           w.MatchID,
		Type:              w.Type,
		Time:              w.Time.Clamp(),
		Timestamp:         ts,
		ActorPlayerID:     w.ActorPlayerID,
		SecondaryPlayerID: w.SecondaryPlayerID,
		Metadata:          meta,
	}
	return nil
}
