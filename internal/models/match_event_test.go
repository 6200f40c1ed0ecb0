// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewEvent_ClampsMatchClock(t *testing.T) {
	ev, err := NewEvent(EventInput{
		MatchID:       "m1",
		Type:          EventGoal,
		Time:          MatchClock{Minute: 130, Second: 75, Millisecond: 1500},
		ActorPlayerID: "P1",
	})
	if err != nil {
		t.Fatalf("NewEvent returned error: %v", err)
	}

	want := MatchClock{Minute: 120, Second: 59, Millisecond: 999}
	if ev.Time != want {
		t.Errorf("expected clamped clock %+v, got %+v", want, ev.Time)
	}
	if ev.ID == "" {
		t.Error("expected client-assigned id")
	}
}

func TestMatchClock_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   MatchClock
		want MatchClock
	}{
		{"in range", MatchClock{45, 12, 300}, MatchClock{45, 12, 300}},
		{"negative", MatchClock{-1, -5, -20}, MatchClock{0, 0, 0}},
		{"upper bounds", MatchClock{120, 59, 999}, MatchClock{120, 59, 999}},
		{"overflow", MatchClock{121, 60, 1000}, MatchClock{120, 59, 999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Errorf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMatchClock_String(t *testing.T) {
	if got := NewMatchClock(5, 3, 7).String(); got != "05:03.007" {
		t.Errorf("expected 05:03.007, got %s", got)
	}
	if got := NewMatchClock(120, 0, 0).String(); got != "120:00.000" {
		t.Errorf("expected 120:00.000, got %s", got)
	}
}

func TestNewEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      EventInput
		wantErr error
	}{
		{"missing match", EventInput{Type: EventGoal}, ErrMissingMatchID},
		{"unknown type", EventInput{MatchID: "m1", Type: "corner"}, ErrUnknownEventType},
		{"wrong metadata", EventInput{MatchID: "m1", Type: EventGoal, Metadata: CardMetadata{Color: CardRed}}, ErrMetadataMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvent(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewEventAt_TruncatesTimestamp(t *testing.T) {
	captured := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.FixedZone("CET", 3600))
	ev, err := NewEventAt(EventInput{MatchID: "m1", Type: EventKickoff}, captured)
	if err != nil {
		t.Fatalf("NewEventAt returned error: %v", err)
	}

	want := time.Date(2026, 3, 14, 14, 9, 26, 535000000, time.UTC)
	if !ev.Timestamp.Equal(want) || ev.Timestamp.Location() != time.UTC {
		t.Errorf("expected %v, got %v", want, ev.Timestamp)
	}
}

func TestEvent_JSONWireFormat(t *testing.T) {
	ev, err := NewEventAt(EventInput{
		MatchID:           "m1",
		Type:              EventGoal,
		Time:              NewMatchClock(45, 12, 300),
		ActorPlayerID:     "P1",
		SecondaryPlayerID: "P2",
		Metadata:          GoalMetadata{GoalType: GoalHeader},
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewEventAt returned error: %v", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, `"timestamp":"2026-01-02T03:04:05.000Z"`) {
		t.Errorf("expected millisecond timestamp, got %s", body)
	}
	if !strings.Contains(body, `"metadata":{"kind":"goal","goal_type":"header"}`) {
		t.Errorf("expected kind-tagged metadata, got %s", body)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	goal, ok := decoded.Metadata.(GoalMetadata)
	if !ok || goal.GoalType != GoalHeader {
		t.Errorf("expected GoalMetadata{header}, got %#v", decoded.Metadata)
	}
	if !decoded.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp changed: %v vs %v", decoded.Timestamp, ev.Timestamp)
	}
}

func TestEvent_UnmarshalSelectsVariantFromType(t *testing.T) {
	tests := []struct {
		name string
		body string
		want EventMetadata
	}{
		{"card", `{"id":"1","match_id":"m","type":"card","time":{},"metadata":{"color":"red"}}`, CardMetadata{Color: CardRed}},
		{"var", `{"id":"1","match_id":"m","type":"var_review","time":{},"metadata":{"kind":"var","decision":"no goal"}}`, VARMetadata{Decision: "no goal"}},
		{"substitution", `{"id":"1","match_id":"m","type":"substitution","time":{},"metadata":{"kind":"substitution"}}`, SubstitutionMetadata{}},
		{"note", `{"id":"1","match_id":"m","type":"half_time","time":{},"metadata":{"text":"rain delay"}}`, NoteMetadata{Text: "rain delay"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			if err := json.Unmarshal([]byte(tt.body), &ev); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if ev.Metadata != tt.want {
				t.Errorf("expected %#v, got %#v", tt.want, ev.Metadata)
			}
		})
	}
}

func TestEvent_UnmarshalRejectsKindMismatch(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"id":"1","match_id":"m","type":"goal","time":{},"metadata":{"kind":"card","color":"red"}}`), &ev)
	if !errors.Is(err, ErrMetadataMismatch) {
		t.Errorf("expected ErrMetadataMismatch, got %v", err)
	}
}

func TestEvent_UnmarshalClampsClock(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"id":"1","match_id":"m","type":"other","time":{"minute":130}}`), &ev); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if ev.Time.Minute != MaxMinute {
		t.Errorf("expected minute clamped to %d, got %d", MaxMinute, ev.Time.Minute)
	}
}

func TestUnmarshalMetadata_RejectsValuesOutsideClosedSets(t *testing.T) {
	tests := []struct {
		name    string
		typ     EventType
		data    string
		wantErr bool
	}{
		{"goal header", EventGoal, `{"goal_type":"header"}`, false},
		{"goal unspecified", EventGoal, `{}`, false},
		{"goal unknown", EventGoal, `{"goal_type":"banana"}`, true},
		{"card second yellow", EventCard, `{"color":"second_yellow"}`, false},
		{"card purple", EventCard, `{"color":"purple"}`, true},
		{"injury severe", EventInjury, `{"severity":"severe"}`, false},
		{"injury fatal", EventInjury, `{"severity":"catastrophic"}`, true},
		{"penalty saved", EventPenalty, `{"outcome":"saved"}`, false},
		{"penalty teleported", EventPenalty, `{"outcome":"teleported"}`, true},
		{"foul free text", EventFoul, `{"category":"anything goes"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalMetadata(tt.typ, []byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMetadata) {
					t.Errorf("expected ErrInvalidMetadata, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewEvent_RejectsInvalidMetadataValue(t *testing.T) {
	_, err := NewEvent(EventInput{
		MatchID:  "m1",
		Type:     EventPenalty,
		Metadata: PenaltyMetadata{Outcome: "teleported"},
	})
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}

	if _, err := NewEvent(EventInput{
		MatchID:  "m1",
		Type:     EventCard,
		Metadata: CardMetadata{Color: CardRed},
	}); err != nil {
		t.Errorf("expected a red card to be accepted, got %v", err)
	}
}
