// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package logging provides the zerolog-based structured logger shared by
// every Matchsync component.
//
// JSON output is the default; console output is available for development.
// Two adapters route third-party loggers into the same stream:
//
//   - NewSlogLogger feeds sutureslog so supervisor restarts are logged.
//   - NewWatermillAdapter feeds the NATS fan-out publisher and subscriber.
//
// Context helpers attach correlation, request and match identifiers:
//
//	ctx = logging.ContextWithMatchID(ctx, matchID)
//	logging.Ctx(ctx).Info().Str("event_id", ev.ID).Msg("event committed")
package logging
