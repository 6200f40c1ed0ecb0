// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/matches/{matchID}/events", "202"))

	RecordAPIRequest("POST", "/api/v1/matches/{matchID}/events", 202, 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/matches/{matchID}/events", "202"))
	if after != before+1 {
		t.Errorf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestUpdateQueueGauges(t *testing.T) {
	UpdateQueueGauges(3, 2, 1)

	tests := []struct {
		bucket string
		want   float64
	}{
		{"pending", 3},
		{"retrying", 2},
		{"failed", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(QueueEntries.WithLabelValues(tt.bucket)); got != tt.want {
			t.Errorf("bucket %s: expected %v, got %v", tt.bucket, tt.want, got)
		}
	}
}

func TestRecordDrain(t *testing.T) {
	runs := testutil.ToFloat64(SyncDrains.WithLabelValues("completed"))
	delivered := testutil.ToFloat64(SyncDelivered)

	RecordDrain("completed", 4, 120*time.Millisecond)

	if got := testutil.ToFloat64(SyncDrains.WithLabelValues("completed")); got != runs+1 {
		t.Errorf("expected drain counter %v, got %v", runs+1, got)
	}
	if got := testutil.ToFloat64(SyncDelivered); got != delivered+4 {
		t.Errorf("expected delivered %v, got %v", delivered+4, got)
	}
}

func TestSetOnline(t *testing.T) {
	SetOnline(true)
	if got := testutil.ToFloat64(SyncOnline); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	SetOnline(false)
	if got := testutil.ToFloat64(SyncOnline); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestRecordIngestCall_TransportErrorLabel(t *testing.T) {
	RecordIngestCall("submit_event", 0, time.Second)
	if n := testutil.CollectAndCount(IngestRequestDuration, "matchsync_ingest_request_duration_seconds"); n == 0 {
		t.Error("expected ingest histogram to have series")
	}
}
