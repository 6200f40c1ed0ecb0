// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/ingest"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/models"
	syncpkg "github.com/tomtom215/matchsync/internal/sync"
	"github.com/tomtom215/matchsync/internal/timeline"
	"github.com/tomtom215/matchsync/internal/validation"
)

// EventResponse is returned for a submitted event. Committed is false when
// the event was queued for later delivery.
type EventResponse struct {
	Event     models.Event `json:"event"`
	Line      string       `json:"line"`
	Committed bool         `json:"committed"`
	Pending   int          `json:"pending"`
}

// BindResponse is returned by BindMatch.
type BindResponse struct {
	MatchID  string `json:"match_id"`
	Previous string `json:"previous,omitempty"`
}

// matchIDParam returns the path match id, writing a 400 when it is invalid.
func matchIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	matchID := chi.URLParam(r, "matchID")
	if !validation.ValidMatchID(matchID) {
		NewResponseWriter(w, r).BadRequest("Invalid match id")
		return "", false
	}
	return matchID, true
}

// BindMatch binds the relay to a match. New events must belong to it.
func (h *Handler) BindMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}

	previous := h.sync.MatchID()
	if err := h.sync.BindMatch(matchID); err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}
	NewResponseWriter(w, r).Success(BindResponse{MatchID: matchID, Previous: previous})
}

// SubmitEvent records a logger event. It answers 201 when the ingestion
// server committed it, 202 when it was queued, 422 when the server
// rejected it and 409 when the relay is bound to another match.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}

	var req SubmitEventRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	rw := NewResponseWriter(w, r)
	ev, err := req.Event(matchID)
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	ctx := logging.ContextWithMatchID(r.Context(), matchID)
	committed, err := h.sync.Submit(ctx, ev)
	switch {
	case errors.Is(err, syncpkg.ErrNoMatchBound), errors.Is(err, syncpkg.ErrMatchMismatch):
		rw.Conflict(err.Error())
		return
	case errors.Is(err, syncpkg.ErrRejected):
		rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeRejected, "Event rejected by ingestion server", map[string]string{
			"event_id": ev.ID,
			"reason":   err.Error(),
		})
		return
	case err != nil:
		rw.InternalError(err.Error())
		return
	}

	resp := EventResponse{
		Event:     ev,
		Line:      timeline.Format(ev),
		Committed: committed,
		Pending:   h.sync.Status().Pending,
	}
	if committed {
		rw.Created(resp)
		return
	}
	rw.Accepted(resp)
}

// StartMatch marks the match live.
func (h *Handler) StartMatch(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.sync.StartMatch)
}

// EndMatch marks the match finished.
func (h *Handler) EndMatch(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.sync.EndMatch)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, call func(context.Context, string) (*models.MatchStatus, error)) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}

	rw := NewResponseWriter(w, r)
	status, err := call(logging.ContextWithMatchID(r.Context(), matchID), matchID)
	switch {
	case err == nil:
		rw.Success(status)
	case breaker.IsRejection(err):
		rw.ServiceUnavailable("Ingestion server circuit is open, retry later")
	case ingest.IsRejection(err):
		rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeRejected, "Rejected by ingestion server", map[string]string{"reason": err.Error()})
	default:
		rw.UpstreamError(err)
	}
}

// PublishScore relays a score update to viewers of the match.
func (h *Handler) PublishScore(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}

	var req ScoreRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	score := models.ScoreUpdate{
		MatchID:   matchID,
		Home:      req.Home,
		Away:      req.Away,
		Clock:     models.NewMatchClock(req.Minute, req.Second, req.Millisecond),
		Period:    models.Period(req.Period),
		Timestamp: time.Now().UTC(),
	}

	rw := NewResponseWriter(w, r)
	err := h.sync.PublishScore(r.Context(), score)
	switch {
	case err == nil:
		rw.Success(score)
	case errors.Is(err, fanout.ErrInvalidMessage):
		rw.BadRequest(err.Error())
	default:
		// Local viewers may still have received it; only a sink failed.
		logging.Ctx(r.Context()).Warn().Err(err).Str("match_id", matchID).Msg("Score update partially delivered")
		rw.Accepted(score)
	}
}

// MatchView returns the reconciled view of a match as viewers see it.
func (h *Handler) MatchView(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}

	rw := NewResponseWriter(w, r)
	if h.views == nil {
		rw.ServiceUnavailable("Match views are not enabled")
		return
	}
	view, found := h.views.Get(matchID)
	if !found {
		rw.NotFound("No updates seen for match " + matchID)
		return
	}
	rw.Success(view.Snapshot())
}
