// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
Package websocket delivers committed match updates to viewers.

The Hub keeps one room per match. A viewer joins the rooms it wants and
receives only the updates of those matches, in the order they were
published.

	Hub
	├── room "m1" ── Client 1, Client 3
	└── room "m2" ── Client 2

Each client has two goroutines:
  - readPump: reads viewer requests, handles join/leave/ping
  - writePump: writes updates and keepalive pings

Viewer protocol:

	-> {"action":"join","match_id":"m1"}
	<- {"type":"joined","match_id":"m1"}
	<- {"type":"event","match_id":"m1","event":{...},"line":"45:12.300 [GOAL] ..."}
	<- {"type":"score-update","match_id":"m1","score":{...}}
	<- {"type":"status-update","match_id":"m1","status":{...}}
	-> {"action":"leave","match_id":"m1"}
	<- {"type":"left","match_id":"m1"}
	-> {"action":"ping"}
	<- {"type":"pong"}

A client whose send buffer fills up is disconnected rather than allowed to
stall the room. The hub implements fanout.Publisher, so the sync
coordinator and the NATS bridge publish into it directly.
*/
package websocket
