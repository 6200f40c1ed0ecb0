// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"net/http"

	syncpkg "github.com/tomtom215/matchsync/internal/sync"
)

// RetryFailedResponse is returned by RetryFailed.
type RetryFailedResponse struct {
	Reset int                 `json:"reset"`
	Drain syncpkg.DrainResult `json:"drain"`
}

// NetworkResponse is returned by SetNetwork.
type NetworkResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
}

// SyncStatus returns the coordinator status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.sync.Status())
}

// DrainQueue runs one drain pass and returns its result. A drain that
// could not start reports why in the skipped field.
func (h *Handler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.sync.DrainQueue(r.Context()))
}

// RetryFailed gives entries that exhausted their retries a fresh budget
// and drains.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	var req RetryFailedRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	reset, res := h.sync.RetryFailed(r.Context(), req.IDs...)
	NewResponseWriter(w, r).Success(RetryFailedResponse{Reset: reset, Drain: res})
}

// SetNetwork accepts a connectivity signal from the host. Going online
// drains the queue before the response is written.
func (h *Handler) SetNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	online := *req.Online
	if h.network != nil {
		h.network.Set(r.Context(), online)
	} else {
		h.sync.SetOnline(r.Context(), online)
	}

	NewResponseWriter(w, r).Success(NetworkResponse{
		Online:  h.sync.Online(),
		Pending: h.sync.Status().Pending,
	})
}
