// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package timeline renders match events as canonical, human-auditable lines.
//
// The rendering is pure: the same event always produces the same line, so
// lines double as a cheap duplicate check next to the event id.
//
//	45:12.300 [GOAL] Goal by P1 (Assist: P2) - header
package timeline

import (
	"strings"

	"github.com/tomtom215/matchsync/internal/models"
)

var markers = map[models.EventType]string{
	models.EventGoal:         "[GOAL]",
	models.EventCard:         "[CARD]",
	models.EventSubstitution: "[SUB]",
	models.EventFoul:         "[FOUL]",
	models.EventInjury:       "[INJURY]",
	models.EventVARReview:    "[VAR]",
	models.EventPenalty:      "[PEN]",
	models.EventKickoff:      "[KICKOFF]",
	models.EventHalfTime:     "[HT]",
	models.EventFullTime:     "[FT]",
	models.EventOther:        "[NOTE]",
}

// Marker returns the bracketed marker for an event type.
func Marker(t models.EventType) string {
	if m, ok := markers[t]; ok {
		return m
	}
	return "[NOTE]"
}

// Format renders ev as "MM:SS.mmm [MARKER] description".
func Format(ev models.Event) string {
	var b strings.Builder
	b.WriteString(ev.Time.Clamp().String())
	b.WriteByte(' ')
	b.WriteString(Marker(ev.Type))
	if desc := Describe(ev); desc != "" {
		b.WriteByte(' ')
		b.WriteString(desc)
	}
	return b.String()
}

// DedupKey is the clock position plus the formatted line. Two events with
// the same key are very likely duplicates; the event id stays authoritative.
func DedupKey(ev models.Event) string {
	return ev.MatchID + "|" + Format(ev)
}

// Describe composes the human-readable part of a line from the actors and
// metadata.
func Describe(ev models.Event) string {
	actor := orUnknown(ev.ActorPlayerID)

	switch ev.Type {
	case models.EventGoal:
		s := "Goal by " + actor
		if ev.SecondaryPlayerID != "" {
			s += " (Assist: " + ev.SecondaryPlayerID + ")"
		}
		if m, ok := ev.Metadata.(models.GoalMetadata); ok && m.GoalType != "" {
			s += " - " + humanize(string(m.GoalType))
		}
		return s

	case models.EventCard:
		color := "Card"
		if m, ok := ev.Metadata.(models.CardMetadata); ok && m.Color != "" {
			color = capitalize(humanize(string(m.Color))) + " card"
		}
		return color + " for " + actor

	case models.EventSubstitution:
		return "Substitution: " + orUnknown(ev.SecondaryPlayerID) + " on, " + actor + " off"

	case models.EventFoul:
		s := "Foul by " + actor
		if ev.SecondaryPlayerID != "" {
			s += " on " + ev.SecondaryPlayerID
		}
		if m, ok := ev.Metadata.(models.FoulMetadata); ok && m.Category != "" {
			s += " - " + humanize(m.Category)
		}
		return s

	case models.EventInjury:
		s := "Injury to " + actor
		if m, ok := ev.Metadata.(models.InjuryMetadata); ok && m.Severity != "" {
			s += " - " + humanize(string(m.Severity))
		}
		return s

	case models.EventVARReview:
		s := "VAR review"
		if ev.ActorPlayerID != "" {
			s += " involving " + ev.ActorPlayerID
		}
		if m, ok := ev.Metadata.(models.VARMetadata); ok && m.Decision != "" {
			s += " - " + m.Decision
		}
		return s

	case models.EventPenalty:
		s := "Penalty by " + actor
		if m, ok := ev.Metadata.(models.PenaltyMetadata); ok && m.Outcome != "" {
			s += " - " + humanize(string(m.Outcome))
		}
		return s

	case models.EventKickoff:
		return withNote("Kickoff", ev)
	case models.EventHalfTime:
		return withNote("Half-time", ev)
	case models.EventFullTime:
		return withNote("Full-time", ev)
	default:
		return withNote("Note", ev)
	}
}

func withNote(label string, ev models.Event) string {
	if m, ok := ev.Metadata.(models.NoteMetadata); ok && m.Text != "" {
		return label + " - " + m.Text
	}
	return label
}

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
