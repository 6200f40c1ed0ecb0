// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package main

import (
	"fmt"

	"github.com/tomtom215/matchsync/internal/config"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/storage"
	"github.com/tomtom215/matchsync/internal/supervisor"
)

// openStorage opens the queue's backing store. Badger's value-log GC loop
// is added to the storage layer of the tree.
func openStorage(cfg config.StorageConfig, tree *supervisor.Tree) (storage.Storage, func(), error) {
	switch cfg.Backend {
	case config.StorageMemory:
		logging.Warn().Msg("Using in-memory queue storage: queued events are lost on restart")
		return storage.NewMemory(), func() {}, nil

	case config.StorageBadger:
		bc := storage.DefaultBadgerConfig(cfg.Path)
		bc.SyncWrites = cfg.SyncWrites
		bc.Compression = cfg.Compression
		if cfg.GCInterval > 0 {
			bc.GCInterval = cfg.GCInterval
		}

		db, err := storage.OpenBadger(bc)
		if err != nil {
			return nil, nil, err
		}
		tree.AddStorageService(db)
		logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("BadgerDB queue storage opened")

		return db, func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing BadgerDB")
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
