// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/netstatus"
	syncpkg "github.com/tomtom215/matchsync/internal/sync"
	"github.com/tomtom215/matchsync/internal/viewer"
	ws "github.com/tomtom215/matchsync/internal/websocket"
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_health.go: liveness and readiness
//   - handlers_matches.go: bind, events, lifecycle, score, view
//   - handlers_sync.go: sync status, drain, retry, network signal
//   - handlers_breakers.go: circuit breaker metrics and reset
//   - handlers_websocket.go: viewer WebSocket upgrade
type Handler struct {
	sync     *syncpkg.Coordinator
	breakers *breaker.Registry
	network  *netstatus.Monitor
	wsHub    *ws.Hub
	views    *viewer.Store

	allowedOrigins []string
	startTime      time.Time
}

// Deps are the components the handlers operate on. Network, Hub and Views
// are optional.
type Deps struct {
	Sync     *syncpkg.Coordinator
	Breakers *breaker.Registry
	Network  *netstatus.Monitor
	Hub      *ws.Hub
	Views    *viewer.Store

	// AllowedOrigins restricts WebSocket upgrades. "*" allows any origin.
	AllowedOrigins []string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		sync:           deps.Sync,
		breakers:       deps.Breakers,
		network:        deps.Network,
		wsHub:          deps.Hub,
		views:          deps.Views,
		allowedOrigins: deps.AllowedOrigins,
		startTime:      time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. Browsers
// always send Origin, so a missing header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds the length of a
// client-supplied value before it is logged.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
