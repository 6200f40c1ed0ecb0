// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package api is the HTTP surface of a relay: event intake from match
// loggers, sync control, circuit breaker inspection and the viewer
// WebSocket endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/matchsync/internal/middleware"
)

// Router wires handlers and middleware.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil middleware config uses the defaults.
func NewRouter(handler *Handler, mwConfig *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Viewers hold the connection open; it is not rate limited per request.
	r.Get("/ws", router.handler.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Post("/bind", router.handler.BindMatch)
			r.Post("/events", router.handler.SubmitEvent)
			r.Post("/start", router.handler.StartMatch)
			r.Post("/end", router.handler.EndMatch)
			r.Post("/score", router.handler.PublishScore)
			r.Get("/view", router.handler.MatchView)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", router.handler.SyncStatus)
			r.Post("/drain", router.handler.DrainQueue)
			r.Post("/retry-failed", router.handler.RetryFailed)
		})

		r.Post("/network", router.handler.SetNetwork)

		r.Route("/breakers", func(r chi.Router) {
			r.Get("/", router.handler.Breakers)
			r.Post("/{name}/reset", router.handler.ResetBreaker)
		})
	})

	return r
}
