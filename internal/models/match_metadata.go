// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package models

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Metadata kinds, one per variant.
const (
	KindGoal         = "goal"
	KindCard         = "card"
	KindSubstitution = "substitution"
	KindFoul         = "foul"
	KindInjury       = "injury"
	KindVAR          = "var"
	KindPenalty      = "penalty"
	KindNote         = "note"
)

// ErrInvalidMetadata is returned when a metadata field holds a value outside
// its closed set. An empty value means unspecified and is allowed.
var ErrInvalidMetadata = errors.New("invalid metadata value")

// EventMetadata is the closed set of type-specific event attributes.
type EventMetadata interface {
	Kind() string
}

type GoalType string

const (
	GoalOpenPlay GoalType = "open_play"
	GoalHeader   GoalType = "header"
	GoalPenalty  GoalType = "penalty"
	GoalOwnGoal  GoalType = "own_goal"
	GoalFreeKick GoalType = "free_kick"
)

type CardColor string

const (
	CardYellow       CardColor = "yellow"
	CardSecondYellow CardColor = "second_yellow"
	CardRed          CardColor = "red"
)

// Valid reports whether g is a known goal type.
func (g GoalType) Valid() bool {
	switch g {
	case GoalOpenPlay, GoalHeader, GoalPenalty, GoalOwnGoal, GoalFreeKick:
		return true
	}
	return false
}

// Valid reports whether c is a known card color.
func (c CardColor) Valid() bool {
	switch c {
	case CardYellow, CardSecondYellow, CardRed:
		return true
	}
	return false
}

type InjurySeverity string

const (
	InjuryMinor    InjurySeverity = "minor"
	InjuryModerate InjurySeverity = "moderate"
	InjurySevere   InjurySeverity = "severe"
)

type PenaltyOutcome string

const (
	PenaltyScored PenaltyOutcome = "scored"
	PenaltySaved  PenaltyOutcome = "saved"
	PenaltyMissed PenaltyOutcome = "missed"
)

// Valid reports whether s is a known severity.
func (s InjurySeverity) Valid() bool {
	switch s {
	case InjuryMinor, InjuryModerate, InjurySevere:
		return true
	}
	return false
}

// Valid reports whether o is a known penalty outcome.
func (o PenaltyOutcome) Valid() bool {
	switch o {
	case PenaltyScored, PenaltySaved, PenaltyMissed:
		return true
	}
	return false
}

type GoalMetadata struct {
	GoalType GoalType `json:"goal_type"`
}

type CardMetadata struct {
	Color CardColor `json:"color"`
}

// SubstitutionMetadata carries nothing; the actor is the player leaving and
// the secondary player is the one coming on.
type SubstitutionMetadata struct{}

type FoulMetadata struct {
	Category string `json:"category"`
}

type InjuryMetadata struct {
	Severity InjurySeverity `json:"severity"`
}

type VARMetadata struct {
	Decision string `json:"decision"`
}

type PenaltyMetadata struct {
	Outcome PenaltyOutcome `json:"outcome"`
}

// NoteMetadata is free text for kickoff, half-time, full-time and other events.
type NoteMetadata struct {
	Text string `json:"text"`
}

func (GoalMetadata) Kind() string         { return KindGoal }
func (CardMetadata) Kind() string         { return KindCard }
func (SubstitutionMetadata) Kind() string { return KindSubstitution }
func (FoulMetadata) Kind() string         { return KindFoul }
func (InjuryMetadata) Kind() string       { return KindInjury }
func (VARMetadata) Kind() string          { return KindVAR }
func (PenaltyMetadata) Kind() string      { return KindPenalty }
func (NoteMetadata) Kind() string         { return KindNote }

// ValidateMetadata checks enumerated fields against their closed sets.
func ValidateMetadata(m EventMetadata) error {
	var field, value string
	switch v := m.(type) {
	case GoalMetadata:
		if v.GoalType == "" || v.GoalType.Valid() {
			return nil
		}
		field, value = "goal_type", string(v.GoalType)
	case CardMetadata:
		if v.Color == "" || v.Color.Valid() {
			return nil
		}
		field, value = "color", string(v.Color)
	case InjuryMetadata:
		if v.Severity == "" || v.Severity.Valid() {
			return nil
		}
		field, value = "severity", string(v.Severity)
	case PenaltyMetadata:
		if v.Outcome == "" || v.Outcome.Valid() {
			return nil
		}
		field, value = "outcome", string(v.Outcome)
	default:
		return nil
	}
	return fmt.Errorf("%w: %s %q", ErrInvalidMetadata, field, value)
}

// MetadataKindFor returns the metadata kind an event type carries.
func MetadataKindFor(t EventType) string {
	switch t {
	case EventGoal:
		return KindGoal
	case EventCard:
		return KindCard
	case EventSubstitution:
		return KindSubstitution
	case EventFoul:
		return KindFoul
	case EventInjury:
		return KindInjury
	case EventVARReview:
		return KindVAR
	case EventPenalty:
		return KindPenalty
	default:
		return KindNote
	}
}

// MarshalMetadata encodes metadata as {"kind": ..., <fields>}.
func MarshalMetadata(m EventMetadata) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s metadata: %w", m.Kind(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kind, _ := json.Marshal(m.Kind())
	buf.Write(kind)
	// body is always an object; splice its fields after the kind.
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalMetadata decodes metadata for the given event type. A "kind"
// field, when present, must agree with the type.
func UnmarshalMetadata(t EventType, data []byte) (EventMetadata, error) {
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	want := MetadataKindFor(t)
	if tag.Kind != "" && tag.Kind != want {
		return nil, fmt.Errorf("%w: %s metadata on %s event", ErrMetadataMismatch, tag.Kind, t)
	}

	var (
		m   EventMetadata
		err error
	)
	switch want {
	case KindGoal:
		var v GoalMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindCard:
		var v CardMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindSubstitution:
		m = SubstitutionMetadata{}
	case KindFoul:
		var v FoulMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindInjury:
		var v InjuryMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindVAR:
		var v VARMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindPenalty:
		var v PenaltyMetadata
		err = json.Unmarshal(data, &v)
		m = v
	default:
		var v NoteMetadata
		err = json.Unmarshal(data, &v)
		m = v
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", want, err)
	}
	if err := ValidateMetadata(m); err != nil {
		return nil, err
	}
	return m, nil
}
