// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
Package supervisor runs the long-lived parts of a relay under a suture v4
supervisor tree.

Every component with a background loop implements suture.Service:

	coordinator := syncpkg.NewCoordinator(client, q, cb, pub, cfg)
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(coordinator)
	tree.AddFanoutService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor tree stopped")
	}

Crashed services are restarted with backoff. Canceling ctx stops every
layer; services that miss ShutdownTimeout appear in UnstoppedServiceReport.
*/
package supervisor
