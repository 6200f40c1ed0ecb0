// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeNATSServer struct {
	running   atomic.Bool
	shutdowns atomic.Int32
}

func (f *fakeNATSServer) ClientURL() string { return "nats://127.0.0.1:4222" }
func (f *fakeNATSServer) IsRunning() bool   { return f.running.Load() }

func (f *fakeNATSServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.running.Store(false)
	return nil
}

func TestEmbeddedNATSService_ShutsDownOnCancel(t *testing.T) {
	server := &fakeNATSServer{}
	server.running.Store(true)
	svc := NewEmbeddedNATSService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if server.shutdowns.Load() != 1 || server.IsRunning() {
		t.Error("expected the server to be shut down")
	}
	if svc.String() != "nats-server" {
		t.Errorf("unexpected name %q", svc.String())
	}
}

func TestEmbeddedNATSService_ReportsStoppedServer(t *testing.T) {
	server := &fakeNATSServer{}
	svc := NewEmbeddedNATSService(server, time.Second)

	if err := svc.Serve(context.Background()); !errors.Is(err, ErrNATSServerStopped) {
		t.Errorf("expected ErrNATSServerStopped, got %v", err)
	}
}

func TestEmbeddedNATSService_DetectsCrash(t *testing.T) {
	server := &fakeNATSServer{}
	server.running.Store(true)
	svc := NewEmbeddedNATSService(server, time.Second)
	svc.checkInterval = 10 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(context.Background()) }()
	server.running.Store(false)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNATSServerStopped) {
			t.Errorf("expected ErrNATSServerStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("crash was not detected")
	}
}
