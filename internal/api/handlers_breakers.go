// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/matchsync/internal/logging"
)

// Breakers lists the metrics of every registered circuit breaker.
func (h *Handler) Breakers(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.breakers.All())
}

// ResetBreaker forces a breaker back to closed with cleared counters.
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rw := NewResponseWriter(w, r)

	cb, ok := h.breakers.Lookup(name)
	if !ok {
		rw.NotFound("Unknown circuit breaker")
		return
	}
	cb.Reset()
	logging.Ctx(r.Context()).Info().Str("breaker", name).Msg("Circuit breaker reset via API")
	rw.Success(cb.Metrics())
}
