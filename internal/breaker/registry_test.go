// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package breaker

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_GetReturnsSameInstance(t *testing.T) {
	r := NewRegistry(Settings{})

	a := r.Get("event-ingestion")
	b := r.Get("event-ingestion")
	if a != b {
		t.Error("expected the same breaker for the same name")
	}
	if r.Get("match-lifecycle") == a {
		t.Error("expected distinct breakers for distinct names")
	}
}

func TestRegistry_DefaultSettings(t *testing.T) {
	r := NewRegistry(Settings{})
	s := r.Get("event-ingestion").settings

	if s.FailureThreshold != 5 || s.SuccessThreshold != 2 || s.VolumeThreshold != 10 {
		t.Errorf("unexpected thresholds: %+v", s)
	}
	if s.Timeout != 60*time.Second || s.MonitoringPeriod != 120*time.Second {
		t.Errorf("unexpected durations: timeout=%s monitoring=%s", s.Timeout, s.MonitoringPeriod)
	}
}

func TestRegistry_GetWithSettingsIgnoredForExisting(t *testing.T) {
	r := NewRegistry(Settings{})
	first := r.GetWithSettings("ingest", Settings{FailureThreshold: 1})
	second := r.GetWithSettings("ingest", Settings{FailureThreshold: 9})

	if first != second || second.settings.FailureThreshold != 1 {
		t.Errorf("expected first settings to stick, got %d", second.settings.FailureThreshold)
	}
}

func TestRegistry_AllSortedAndResetAll(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, VolumeThreshold: 1})
	_, _ = r.Get("zeta").Execute(context.Background(), countingOp(new(int32), errTransport), nil)
	r.Get("alpha")

	all := r.All()
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("expected [alpha zeta], got %+v", all)
	}
	if all[1].State != StateOpen {
		t.Errorf("expected zeta OPEN, got %s", all[1].State)
	}

	r.ResetAll()
	if b, ok := r.Lookup("zeta"); !ok || b.State() != StateClosed {
		t.Error("expected zeta CLOSED after ResetAll")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup must not create breakers")
	}
}
