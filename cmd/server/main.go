// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package main runs a matchsync relay.
//
// A relay sits between match loggers on a pitch-side network and the
// remote ingestion API. Events are delivered immediately while the link is
// up and persisted to an offline queue while it is not; the queue drains in
// order once connectivity returns. Committed events, scores and match
// status are fanned out to WebSocket viewers and, when NATS is enabled, to
// every other relay.
//
// # Startup order
//
//  1. Configuration (koanf: defaults, optional config file, environment)
//  2. Queue storage (BadgerDB or in-memory)
//  3. Circuit breaker registry and the ingestion breaker
//  4. Ingestion client
//  5. Fan-out: WebSocket hub, match view store, optional NATS bridge
//  6. Sync coordinator and network probe
//  7. HTTP API
//  8. Supervisor tree
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the tree. The HTTP server stops accepting
// requests and finishes in-flight ones; the queue is already durable, so
// nothing needs flushing.
//
// # Example
//
//	export INGESTION_URL=https://ingest.example.com
//	export INGESTION_API_KEY=secret
//	export SYNC_MATCH_ID=2026-cup-final
//	export STORAGE_PATH=/var/lib/matchsync/queue
//	./matchsync
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/matchsync/internal/api"
	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/config"
	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/ingest"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/netstatus"
	"github.com/tomtom215/matchsync/internal/queue"
	"github.com/tomtom215/matchsync/internal/supervisor"
	"github.com/tomtom215/matchsync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/matchsync/internal/sync"
	"github.com/tomtom215/matchsync/internal/viewer"
	ws "github.com/tomtom215/matchsync/internal/websocket"
)

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "matchsync",
	})
	logging.Info().
		Str("ingestion_url", cfg.Ingestion.BaseURL).
		Str("storage", cfg.Storage.Backend).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting matchsync relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	// Queue storage
	store, closeStore, err := openStorage(cfg.Storage, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open queue storage")
	}
	defer closeStore()

	q, err := queue.Open(store, queue.Options{
		MaxSize:    cfg.Queue.MaxSize,
		MaxRetries: cfg.Queue.MaxRetries,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open offline queue")
	}
	logging.Info().Int("pending", q.Len()).Msg("Offline queue loaded")

	// Circuit breakers
	breakers := breaker.NewRegistry(breakerSettings(cfg.Breaker))
	ingestBreaker := breakers.GetWithSettings(syncpkg.DefaultBreakerName, syncpkg.IngestBreakerSettings(breakerSettings(cfg.Breaker)))

	client := ingest.NewHTTPClient(ingest.Config{
		BaseURL:       cfg.Ingestion.BaseURL,
		APIKey:        cfg.Ingestion.APIKey,
		Timeout:       cfg.Ingestion.Timeout,
		RatePerSecond: cfg.Ingestion.RatePerSecond,
		Burst:         cfg.Ingestion.Burst,
		HealthPath:    cfg.Ingestion.HealthPath,
	})

	// Fan-out: local viewers first, then other relays.
	hub := ws.NewHub()
	views := viewer.NewStore(viewer.DefaultMaxMatches)
	tree.AddFanoutService(hub)

	var publisher fanout.Publisher = fanout.Tee(hub, views)
	if cfg.NATS.Enabled {
		bridge, closeNATS, err := initNATS(cfg.NATS, publisher, tree)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS fan-out")
		}
		defer closeNATS()
		publisher = bridge
	}

	coordinator := syncpkg.NewCoordinator(client, q, ingestBreaker, publisher, syncpkg.Config{
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxRetries:    cfg.Queue.MaxRetries,
		DrainInterval: cfg.Sync.DrainInterval,
	})
	if cfg.Sync.MatchID != "" {
		if err := coordinator.BindMatch(cfg.Sync.MatchID); err != nil {
			logging.Fatal().Err(err).Msg("Failed to bind match")
		}
	}
	coordinator.OnSyncUpdate(func(pending int) {
		logging.Debug().Int("pending", pending).Msg("Offline queue changed")
	})

	network := netstatus.New(client, netstatus.Config{
		Interval:          cfg.Sync.ProbeInterval,
		Timeout:           cfg.Sync.ProbeTimeout,
		FailuresToOffline: cfg.Sync.ProbeFailures,
	})
	network.Subscribe(coordinator.SetOnline)
	if cfg.Sync.StartOnline {
		network.Set(ctx, true)
	}

	tree.AddSyncService(network)
	tree.AddSyncService(coordinator)

	// HTTP API
	handler := api.NewHandler(api.Deps{
		Sync:           coordinator,
		Breakers:       breakers,
		Network:        network,
		Hub:            hub,
		Views:          views,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Server.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Server.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Server.RateLimitDisabled

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mwConfig).SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Int("pending", q.Len()).Msg("Relay stopped")
}

func breakerSettings(c config.BreakerConfig) breaker.Settings {
	return breaker.Settings{
		FailureThreshold:      c.FailureThreshold,
		SuccessThreshold:      c.SuccessThreshold,
		Timeout:               c.Timeout,
		MonitoringPeriod:      c.MonitoringPeriod,
		VolumeThreshold:       c.VolumeThreshold,
		HalfOpenMaxAttempts:   c.HalfOpenMaxAttempts,
		SlowCallThreshold:     c.SlowCallThreshold,
		SlowCallRateThreshold: c.SlowCallRateThreshold,
		CallTimeout:           c.CallTimeout,
	}
}
