// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/matchsync/internal/fanout"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// broadcastBuffer is the number of encoded updates that may wait for the
// run loop before new ones are dropped.
const broadcastBuffer = 256

type roomMessage struct {
	matchID string
	kind    fanout.Kind
	data    []byte
}

// Hub keeps one room per match and delivers each update only to the
// clients in that match's room. It implements fanout.Publisher.
type Hub struct {
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	broadcast  chan roomMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

var _ fanout.Publisher = (*Hub)(nil)

// NewHub creates a Hub. Call RunWithContext to start delivering.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		broadcast:  make(chan roomMessage, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// RunWithContext processes registrations and broadcasts until ctx is
// canceled, then closes every client.
//
// Lifecycle events are handled before broadcasts so a client registered
// before an update is published receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for the supervisor.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	h.dropLocked(c)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", total).Msg("websocket client disconnected")
}

// dropLocked removes c from the hub and every room and closes its send
// channel once. Must hold mu.
func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	for matchID := range c.rooms {
		h.leaveLocked(c, matchID)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	metrics.WSRooms.Set(float64(len(h.rooms)))
}

// Join adds c to the room of matchID.
func (h *Hub) Join(c *Client, matchID string) error {
	if !validMatchID(matchID) {
		return ErrInvalidMatchID
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[matchID] = room
	}
	room[c] = struct{}{}
	c.rooms[matchID] = struct{}{}
	metrics.WSRooms.Set(float64(len(h.rooms)))
	return nil
}

// Leave removes c from the room of matchID. Leaving a room the client is
// not in is a no-op.
func (h *Hub) Leave(c *Client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, matchID)
	metrics.WSRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) leaveLocked(c *Client, matchID string) {
	delete(c.rooms, matchID)
	room, ok := h.rooms[matchID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, matchID)
	}
}

// Publish queues msg for the subscribers of its match. It never blocks on
// slow viewers; when the hub is saturated the update is dropped and
// counted.
func (h *Hub) Publish(_ context.Context, msg fanout.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := fanout.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- roomMessage{matchID: msg.MatchID, kind: msg.Kind, data: data}:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("match_id", msg.MatchID).Str("type", string(msg.Kind)).Msg("broadcast channel full, dropping match update")
	}
	return nil
}

// deliver sends a message to the room members in client id order. Clients
// whose buffer is full are disconnected.
func (h *Hub) deliver(msg roomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[msg.matchID]
	if len(room) == 0 {
		return
	}

	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var slow []*Client
	for _, c := range clients {
		select {
		case c.send <- msg.data:
			metrics.WSMessagesSent.WithLabelValues(string(msg.kind)).Inc()
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Uint64("client_id", c.id).Str("match_id", msg.matchID).Msg("websocket client too slow, disconnecting")
		h.dropLocked(c)
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, c := range clients {
		h.dropLocked(c)
	}
	metrics.WSConnections.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients watching a match.
func (h *Hub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// Rooms returns the watched match ids, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
