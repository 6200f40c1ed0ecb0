// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package services adapts components whose lifecycle is not already
// Serve(ctx) shaped into suture services.
//
// The coordinator, network monitor, WebSocket hub, NATS bridge and Badger
// store implement suture.Service themselves and are added to the tree
// directly. This package covers the rest:
//
//   - HTTPServerService: ListenAndServe plus graceful Shutdown
//   - EmbeddedNATSService: holds a started in-process NATS server and
//     shuts it down when the tree stops
package services
