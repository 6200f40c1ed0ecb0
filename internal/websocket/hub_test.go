// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a hub for the duration of the test.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// registerClient registers an in-memory client and waits for the hub.
func registerClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	c := NewClient(hub, nil)
	want := hub.ClientCount() + 1
	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == want })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) fanout.Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		var m fanout.Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return fanout.Message{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("expected no message, got %s", data)
	case <-time.After(30 * time.Millisecond):
	}
}

func statusMsg(matchID string, state models.MatchState) fanout.Message {
	return fanout.StatusMessage(models.MatchStatus{MatchID: matchID, Status: state, UpdatedAt: time.Now()})
}

func TestHub_DeliversOnlyToRoom(t *testing.T) {
	hub := setupHub(t)
	a, b, c := registerClient(t, hub), registerClient(t, hub), registerClient(t, hub)
	if err := hub.Join(a, "m1"); err != nil {
		t.Fatal(err)
	}
	if err := hub.Join(b, "m2"); err != nil {
		t.Fatal(err)
	}

	if err := hub.Publish(context.Background(), statusMsg("m1", models.MatchLive)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := receive(t, a); got.MatchID != "m1" || got.Kind != fanout.KindStatus {
		t.Errorf("unexpected message %+v", got)
	}
	expectNothing(t, b)
	expectNothing(t, c)
}

func TestHub_PreservesPublishOrder(t *testing.T) {
	hub := setupHub(t)
	a := registerClient(t, hub)
	_ = hub.Join(a, "m1")

	states := []models.MatchState{models.MatchLive, models.MatchHalfTime, models.MatchLive, models.MatchFinished}
	for _, s := range states {
		_ = hub.Publish(context.Background(), statusMsg("m1", s))
	}
	for i, want := range states {
		if got := receive(t, a); got.Status.Status != want {
			t.Errorf("message %d: expected %s, got %s", i, want, got.Status.Status)
		}
	}
}

func TestHub_JoinLeave(t *testing.T) {
	hub := setupHub(t)
	a := registerClient(t, hub)

	if err := hub.Join(a, ""); !errors.Is(err, ErrInvalidMatchID) {
		t.Errorf("expected ErrInvalidMatchID, got %v", err)
	}
	_ = hub.Join(a, "m1")
	_ = hub.Join(a, "m2")
	if got := hub.Rooms(); len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("unexpected rooms %v", got)
	}

	hub.Leave(a, "m1")
	hub.Leave(a, "unknown")
	if hub.RoomSize("m1") != 0 || hub.RoomSize("m2") != 1 {
		t.Errorf("unexpected room sizes m1=%d m2=%d", hub.RoomSize("m1"), hub.RoomSize("m2"))
	}

	_ = hub.Publish(context.Background(), statusMsg("m1", models.MatchLive))
	expectNothing(t, a)
}

func TestHub_UnregisterClearsRooms(t *testing.T) {
	hub := setupHub(t)
	a := registerClient(t, hub)
	_ = hub.Join(a, "m1")

	hub.Unregister <- a
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if hub.RoomSize("m1") != 0 || len(hub.Rooms()) != 0 {
		t.Error("expected empty rooms to be removed")
	}
	if _, ok := <-a.send; ok {
		t.Error("expected send channel closed")
	}
	if err := hub.Join(a, "m1"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	hub := setupHub(t)
	slow := registerClient(t, hub)
	_ = hub.Join(slow, "m1")

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte("{}")
	}
	_ = hub.Publish(context.Background(), statusMsg("m1", models.MatchLive))

	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	if hub.RoomSize("m1") != 0 {
		t.Error("slow client must leave its rooms")
	}
}

func TestHub_PublishRejectsInvalidMessage(t *testing.T) {
	hub := NewHub()
	err := hub.Publish(context.Background(), fanout.Message{Kind: fanout.KindEvent, MatchID: "m1"})
	if !errors.Is(err, fanout.ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()

	a := registerClient(t, hub)
	_ = hub.Join(a, "m1")
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if hub.ClientCount() != 0 || len(hub.Rooms()) != 0 {
		t.Error("expected all clients closed on shutdown")
	}
	if hub.String() != "websocket-hub" {
		t.Errorf("unexpected service name %q", hub.String())
	}
}

func TestGetShutdownReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("expected canceled, got %s", got)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("expected deadline, got %s", got)
	}
}
