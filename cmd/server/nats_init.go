// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package main

import (
	"time"

	"github.com/tomtom215/matchsync/internal/config"
	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/supervisor"
	"github.com/tomtom215/matchsync/internal/supervisor/services"
)

// initNATS starts the embedded server when configured and connects a
// bridge that mirrors local updates to other relays. The returned function
// closes the bridge connections.
func initNATS(cfg config.NATSConfig, local fanout.Publisher, tree *supervisor.Tree) (*fanout.Bridge, func(), error) {
	url := cfg.URL
	if cfg.Embedded {
		srv, err := fanout.StartEmbeddedServer(fanout.ServerConfig{
			Host:  cfg.Host,
			Port:  cfg.Port,
			Quiet: true,
		})
		if err != nil {
			return nil, nil, err
		}
		url = srv.ClientURL()
		tree.AddFanoutService(services.NewEmbeddedNATSService(srv, 10*time.Second))
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	bcfg := fanout.DefaultBridgeConfig(url)
	if cfg.SubjectPrefix != "" {
		bcfg.SubjectPrefix = cfg.SubjectPrefix
	}
	bcfg.NodeID = cfg.NodeID

	bridge, err := fanout.NewBridge(local, bcfg)
	if err != nil {
		return nil, nil, err
	}
	tree.AddFanoutService(bridge)

	go func() {
		select {
		case <-bridge.Ready():
			logging.Info().Str("node_id", bridge.NodeID()).Msg("NATS fan-out bridge ready")
		case <-time.After(30 * time.Second):
			logging.Warn().Msg("NATS fan-out bridge not subscribed after 30s")
		}
	}()

	return bridge, func() {
		if err := bridge.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS bridge")
		}
	}, nil
}
