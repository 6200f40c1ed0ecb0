// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// SubmitEventRequest is the body of POST /api/v1/matches/{matchID}/events.
// ID is optional; supplying it makes HTTP retries idempotent.
type SubmitEventRequest struct {
	ID                string          `json:"id" validate:"omitempty,uuid"`
	Type              string          `json:"type" validate:"required,event_type"`
	Minute            int             `json:"minute"`
	Second            int             `json:"second"`
	Millisecond       int             `json:"millisecond"`
	ActorPlayerID     string          `json:"actor_player_id" validate:"omitempty,max=64"`
	SecondaryPlayerID string          `json:"secondary_player_id" validate:"omitempty,max=64"`
	Metadata          json.RawMessage `json:"metadata"`
}

// Event builds the event for matchID. The clock is clamped, not rejected.
func (req *SubmitEventRequest) Event(matchID string) (models.Event, error) {
	eventType := models.EventType(req.Type)

	var meta models.EventMetadata
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		m, err := models.UnmarshalMetadata(eventType, req.Metadata)
		if err != nil {
			return models.Event{}, fmt.Errorf("invalid metadata: %w", err)
		}
		meta = m
	}

	ev, err := models.NewEvent(models.EventInput{
		MatchID:           matchID,
		Type:              eventType,
		Time:              models.NewMatchClock(req.Minute, req.Second, req.Millisecond),
		ActorPlayerID:     req.ActorPlayerID,
		SecondaryPlayerID: req.SecondaryPlayerID,
		Metadata:          meta,
	})
	if err != nil {
		return models.Event{}, err
	}
	if req.ID != "" {
		ev.ID = req.ID
	}
	return ev, nil
}

// ScoreRequest is the body of POST /api/v1/matches/{matchID}/score.
type ScoreRequest struct {
	Home        int    `json:"home" validate:"gte=0,lte=99"`
	Away        int    `json:"away" validate:"gte=0,lte=99"`
	Minute      int    `json:"minute"`
	Second      int    `json:"second"`
	Millisecond int    `json:"millisecond"`
	Period      string `json:"period" validate:"omitempty,period"`
}

// NetworkRequest is the body of POST /api/v1/network.
type NetworkRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// RetryFailedRequest is the optional body of POST /api/v1/sync/retry-failed.
// No ids means every failed entry.
type RetryFailedRequest struct {
	IDs []string `json:"ids" validate:"omitempty,max=1000,dive,required"`
}

// decodeAndValidate reads a JSON body into dst and validates it. It writes
// the error response itself and reports whether the handler may continue.
// An empty body is accepted when optional is set.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	rw := NewResponseWriter(w, r)

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && optional:
	case errors.Is(err, io.EOF):
		rw.BadRequest("Request body is required")
		return false
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large")
			return false
		}
		rw.BadRequest("Invalid JSON body")
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
