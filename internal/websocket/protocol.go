// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package websocket

import (
	"errors"

	"github.com/goccy/go-json"
)

// Client actions
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
)

// Control message types sent by the hub. Match updates use the fan-out
// kinds (event, score-update, status-update).
const (
	MessageTypeJoined = "joined"
	MessageTypeLeft   = "left"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
)

// MaxMatchIDLength bounds the match ids clients may join.
const MaxMatchIDLength = 128

var (
	// ErrInvalidMatchID is returned for an empty or oversized match id.
	ErrInvalidMatchID = errors.New("invalid match id")

	// ErrClientClosed is returned when joining with a disconnected client.
	ErrClientClosed = errors.New("client is closed")
)

// ClientMessage is a request from a viewer.
type ClientMessage struct {
	Action  string `json:"action"`
	MatchID string `json:"match_id,omitempty"`
}

// ControlMessage is a hub reply to a ClientMessage.
type ControlMessage struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MarshalControl encodes a control message.
func MarshalControl(msg ControlMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func validMatchID(id string) bool {
	return id != "" && len(id) <= MaxMatchIDLength
}
