// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/matchsync/internal/logging"
)

// ErrNATSServerStopped is returned when the embedded server goes down while
// the tree is still running, so the supervisor records the failure.
var ErrNATSServerStopped = errors.New("embedded NATS server stopped")

// NATSServer is the lifecycle of *fanout.EmbeddedServer.
type NATSServer interface {
	ClientURL() string
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService keeps an already started in-process NATS server
// attached to the tree. The server is started before bridges connect, so
// Serve only watches it and shuts it down on cancellation.
type EmbeddedNATSService struct {
	server          NATSServer
	shutdownTimeout time.Duration
	checkInterval   time.Duration
}

// NewEmbeddedNATSService wraps server.
func NewEmbeddedNATSService(server NATSServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &EmbeddedNATSService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
	}
}

// Serve implements suture.Service. An embedded server cannot be restarted
// in place, so once it has stopped on its own Serve keeps failing and the
// supervisor backs off.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return ErrNATSServerStopped
	}
	logging.Info().Str("url", s.server.ClientURL()).Msg("Embedded NATS server attached to supervisor")

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("Embedded NATS server did not stop in time")
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.server.IsRunning() {
				return ErrNATSServerStopped
			}
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (s *EmbeddedNATSService) String() string {
	return "nats-server"
}
