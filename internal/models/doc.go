// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
Package models defines the match data exchanged between loggers, the relay,
the ingestion server and viewers.

# Events

An Event is one thing that happened on the pitch, from kickoff through
goals, cards and VAR reviews to full time. Events are created with
NewEvent, which assigns a UUID, stamps the wall-clock time and clamps the
match clock into range:

	ev, err := models.NewEvent(models.EventInput{
	    MatchID:       "m1",
	    Type:          models.EventGoal,
	    Time:          models.NewMatchClock(23, 14, 0),
	    ActorPlayerID: "P9",
	    Metadata:      models.GoalMetadata{GoalType: models.GoalHeader},
	})

Metadata is a closed set of per-type structs. Each carries a kind tag in
JSON so a stored event decodes back into the right struct; see
UnmarshalMetadata.

# Match state

MatchStatus and ScoreUpdate are the non-event updates viewers receive.
Both carry a timestamp and are applied last-write-wins.
*/
package models
