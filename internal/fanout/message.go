// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package fanout carries committed match updates to viewers.
//
// A Message is one update for one match. Publishers deliver it to every
// subscriber of that match and no one else. The local WebSocket hub is a
// Publisher; the NATS Bridge wraps it so updates also reach viewers
// connected to other relays.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matchsync/internal/models"
)

// Kind is the type of update a Message carries.
type Kind string

const (
	KindEvent  Kind = "event"
	KindScore  Kind = "score-update"
	KindStatus Kind = "status-update"
)

// ErrInvalidMessage is returned for a message whose payload does not match
// its kind.
var ErrInvalidMessage = errors.New("invalid fan-out message")

// Message is one update for one match. Exactly one payload is set.
type Message struct {
	Kind    Kind                `json:"type"`
	MatchID string              `json:"match_id"`
	Event   *models.Event       `json:"event,omitempty"`
	Score   *models.ScoreUpdate `json:"score,omitempty"`
	Status  *models.MatchStatus `json:"status,omitempty"`
	Line    string              `json:"line,omitempty"`
	SentAt  time.Time           `json:"sent_at"`

	// Origin identifies the relay that first published the message so a
	// bridge does not re-deliver its own updates.
	Origin string `json:"origin,omitempty"`
}

// Publisher delivers messages to the subscribers of a match.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

func (f PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Discard drops every message. It stands in when no viewer transport is
// configured.
var Discard Publisher = PublisherFunc(func(context.Context, Message) error { return nil })

// Tee delivers every message to each publisher in order and joins their
// errors. One failing sink does not starve the others.
func Tee(publishers ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, msg Message) error {
		var errs []error
		for _, p := range publishers {
			if err := p.Publish(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// EventMessage wraps a committed event.
func EventMessage(ev models.Event, line string) Message {
	return Message{Kind: KindEvent, MatchID: ev.MatchID, Event: &ev, Line: line, SentAt: time.Now().UTC()}
}

// ScoreMessage wraps a score update.
func ScoreMessage(s models.ScoreUpdate) Message {
	return Message{Kind: KindScore, MatchID: s.MatchID, Score: &s, SentAt: time.Now().UTC()}
}

// StatusMessage wraps a match status change.
func StatusMessage(s models.MatchStatus) Message {
	return Message{Kind: KindStatus, MatchID: s.MatchID, Status: &s, SentAt: time.Now().UTC()}
}

// Validate checks that the payload matches the kind and the match id.
func (m Message) Validate() error {
	if m.MatchID == "" {
		return fmt.Errorf("%w: missing match id", ErrInvalidMessage)
	}
	switch m.Kind {
	case KindEvent:
		if m.Event == nil || m.Event.MatchID != m.MatchID {
			return fmt.Errorf("%w: event payload", ErrInvalidMessage)
		}
	case KindScore:
		if m.Score == nil || m.Score.MatchID != m.MatchID {
			return fmt.Errorf("%w: score payload", ErrInvalidMessage)
		}
	case KindStatus:
		if m.Status == nil || m.Status.MatchID != m.MatchID {
			return fmt.Errorf("%w: status payload", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
