// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService runs until canceled, optionally failing its first runs.
type countingService struct {
	name     string
	failures int32
	starts   atomic.Int32
	running  atomic.Bool
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	s.running.Store(true)
	defer s.running.Store(false)
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewTree_Defaults(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})

	if tree.config != DefaultTreeConfig() {
		t.Errorf("expected defaults, got %+v", tree.config)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
}

func TestTree_RunsEveryLayer(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	svcs := []*countingService{
		{name: "storage"}, {name: "sync"}, {name: "fanout"}, {name: "api"},
	}
	tree.AddStorageService(svcs[0])
	tree.AddSyncService(svcs[1])
	tree.AddFanoutService(svcs[2])
	tree.AddAPIService(svcs[3])

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, s := range svcs {
		waitUntil(t, s.running.Load)
	}
	cancel()

	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	for _, s := range svcs {
		if s.running.Load() {
			t.Errorf("%s still running after shutdown", s.name)
		}
	}
	if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
		t.Errorf("expected a clean shutdown, got %v %v", report, err)
	}
}

func TestTree_RestartsFailedService(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	flaky := &countingService{name: "flaky", failures: 2}
	steady := &countingService{name: "steady"}
	tree.AddFanoutService(flaky)
	tree.AddAPIService(steady)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitUntil(t, flaky.running.Load)
	if got := flaky.starts.Load(); got != 3 {
		t.Errorf("expected 3 starts, got %d", got)
	}
	if got := steady.starts.Load(); got != 1 {
		t.Errorf("a failure in another layer must not restart steady, got %d starts", got)
	}

	cancel()
	<-errCh
}
