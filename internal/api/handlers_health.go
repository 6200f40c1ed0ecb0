// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/netstatus"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime_seconds"`
	Timestamp string  `json:"timestamp"`
}

// ReadinessResponse is the body of GET /health/ready.
type ReadinessResponse struct {
	Ready        bool                `json:"ready"`
	Online       bool                `json:"online"`
	BreakerState string              `json:"breaker_state"`
	MatchID      string              `json:"match_id,omitempty"`
	Pending      int                 `json:"pending"`
	Network      *netstatus.Snapshot `json:"network,omitempty"`
}

// Health reports liveness. It never touches dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(h.startTime).Seconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthReady reports whether events can reach the ingestion server right
// now. It returns 503 while offline or while the ingestion breaker is open,
// so a load balancer can prefer another relay. Events are still accepted
// and queued either way.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := h.sync.Status()
	resp := ReadinessResponse{
		Online:       status.Online,
		BreakerState: status.Breaker,
		MatchID:      status.MatchID,
		Pending:      status.Pending,
	}
	if h.network != nil {
		snap := h.network.Snapshot()
		resp.Network = &snap
	}
	resp.Ready = status.Online && status.Breaker != breaker.StateOpen.String()

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).Status(code, resp)
}
