// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/matchsync/internal/breaker"
	"github.com/tomtom215/matchsync/internal/ingest"
	"github.com/tomtom215/matchsync/internal/ingest/ingesttest"
	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/models"
	"github.com/tomtom215/matchsync/internal/queue"
	"github.com/tomtom215/matchsync/internal/storage"
	syncpkg "github.com/tomtom215/matchsync/internal/sync"
	"github.com/tomtom215/matchsync/internal/viewer"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type testServer struct {
	handler http.Handler
	sync    *syncpkg.Coordinator
	fake    *ingesttest.Fake
	views   *viewer.Store
	reg     *breaker.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	q, err := queue.Open(storage.NewMemory(), queue.Options{})
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}

	settings := breaker.DefaultSettings()
	settings.CallTimeout = -1
	reg := breaker.NewRegistry(settings)
	cb := reg.GetWithSettings(syncpkg.DefaultBreakerName, syncpkg.IngestBreakerSettings(settings))

	fake := ingesttest.New()
	views := viewer.NewStore(0)
	coord := syncpkg.NewCoordinator(fake, q, cb, views, syncpkg.Config{RetryDelay: 0})
	if err := coord.BindMatch("m1"); err != nil {
		t.Fatalf("BindMatch: %v", err)
	}

	h := NewHandler(Deps{Sync: coord, Breakers: reg, Views: views})
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true

	return &testServer{
		handler: NewRouter(h, cfg).SetupChi(),
		sync:    coord,
		fake:    fake,
		views:   views,
		reg:     reg,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

const goalBody = `{"type":"goal","minute":23,"second":14,"actor_player_id":"P9","metadata":{"goal_type":"header"}}`

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200 success, got %d %+v", code, env)
	}
	var resp HealthResponse
	decodeData(t, env, &resp)
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestHealthReady_FollowsConnectivity(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health/ready", "")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while offline, got %d", code)
	}
	var resp ReadinessResponse
	decodeData(t, env, &resp)
	if resp.Ready || resp.Online || resp.MatchID != "m1" {
		t.Errorf("unexpected readiness while offline: %+v", resp)
	}

	s.sync.SetOnline(context.Background(), true)
	code, env = s.do(t, http.MethodGet, "/health/ready", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 while online, got %d", code)
	}
	decodeData(t, env, &resp)
	if !resp.Ready || resp.BreakerState != "CLOSED" {
		t.Errorf("unexpected readiness while online: %+v", resp)
	}
}

func TestSubmitEvent_OfflineIsQueued(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/events", goalBody)
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", code, env.Error)
	}
	var resp EventResponse
	decodeData(t, env, &resp)
	if resp.Committed || resp.Pending != 1 {
		t.Errorf("expected a queued event, got %+v", resp)
	}
	if resp.Event.ID == "" || resp.Line == "" {
		t.Errorf("expected an id and a timeline line, got %+v", resp)
	}
	if s.fake.Calls() != 0 {
		t.Errorf("expected no ingestion calls while offline, got %d", s.fake.Calls())
	}
}

func TestSubmitEvent_OnlineIsCommitted(t *testing.T) {
	s := newTestServer(t)
	s.sync.SetOnline(context.Background(), true)

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/events", goalBody)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %+v", code, env.Error)
	}
	var resp EventResponse
	decodeData(t, env, &resp)
	if !resp.Committed || resp.Pending != 0 {
		t.Errorf("expected a committed event, got %+v", resp)
	}
	if ids := s.fake.SubmittedIDs(); len(ids) != 1 || ids[0] != resp.Event.ID {
		t.Errorf("expected %s submitted, got %v", resp.Event.ID, ids)
	}

	code, env = s.do(t, http.MethodGet, "/api/v1/matches/m1/view", "")
	if code != http.StatusOK {
		t.Fatalf("expected view 200, got %d", code)
	}
	var snap viewer.Snapshot
	decodeData(t, env, &snap)
	if snap.Events != 1 || len(snap.Timeline) != 1 || snap.Timeline[0] != resp.Line {
		t.Errorf("expected the committed line in the view, got %+v", snap)
	}
}

func TestSubmitEvent_ClientIDIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()
	body := `{"id":"` + id + `","type":"card","minute":40,"actor_player_id":"P4","metadata":{"color":"yellow"}}`

	for i := 0; i < 2; i++ {
		code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/events", body)
		if code != http.StatusAccepted {
			t.Fatalf("attempt %d: expected 202, got %d: %+v", i, code, env.Error)
		}
		var resp EventResponse
		decodeData(t, env, &resp)
		if resp.Event.ID != id || resp.Pending != 1 {
			t.Errorf("attempt %d: unexpected response %+v", i, resp)
		}
	}
}

func TestSubmitEvent_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"other match", "/api/v1/matches/m2/events", goalBody, http.StatusConflict, ErrCodeConflict},
		{"unknown type", "/api/v1/matches/m1/events", `{"type":"dance"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"missing type", "/api/v1/matches/m1/events", `{"minute":3}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"bad id", "/api/v1/matches/m1/events", `{"id":"nope","type":"goal"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"metadata for other type", "/api/v1/matches/m1/events", `{"type":"goal","metadata":{"kind":"card"}}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"card color outside set", "/api/v1/matches/m1/events", `{"type":"card","metadata":{"color":"purple"}}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"goal type outside set", "/api/v1/matches/m1/events", `{"type":"goal","metadata":{"goal_type":"banana"}}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"empty body", "/api/v1/matches/m1/events", "", http.StatusBadRequest, ErrCodeBadRequest},
		{"malformed body", "/api/v1/matches/m1/events", `{"type":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"long match id", "/api/v1/matches/" + strings.Repeat("x", 200) + "/events", goalBody, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodPost, tt.path, tt.body)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, code)
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("expected error code %s, got %+v", tt.wantErr, env.Error)
			}
		})
	}

	if got := s.sync.Status().Pending; got != 0 {
		t.Errorf("expected nothing queued by failed requests, got %d", got)
	}
}

func TestSubmitEvent_Rejected(t *testing.T) {
	s := newTestServer(t)
	s.sync.SetOnline(context.Background(), true)
	id := uuid.NewString()
	s.fake.Reject(id, &ingest.RejectionError{Op: "submit_event", StatusCode: 422, Reason: "player not in squad"})

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/events", `{"id":"`+id+`","type":"goal","actor_player_id":"P99"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeRejected {
		t.Errorf("expected REJECTED, got %+v", env.Error)
	}
	if got := s.sync.Status().Pending; got != 0 {
		t.Errorf("rejected events must not be queued, got %d pending", got)
	}
}

func TestSetNetwork_OnlineDrains(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		if code, _ := s.do(t, http.MethodPost, "/api/v1/matches/m1/events", goalBody); code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", code)
		}
	}

	code, env := s.do(t, http.MethodPost, "/api/v1/network", `{"online":true}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var resp NetworkResponse
	decodeData(t, env, &resp)
	if !resp.Online || resp.Pending != 0 {
		t.Errorf("expected online with an empty queue, got %+v", resp)
	}
	if got := len(s.fake.SubmittedIDs()); got != 3 {
		t.Errorf("expected 3 delivered, got %d", got)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/v1/network", `{}`); code != http.StatusBadRequest {
		t.Errorf("expected 400 without online, got %d", code)
	}
}

func TestSyncEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/matches/m1/events", goalBody)

	code, env := s.do(t, http.MethodGet, "/api/v1/sync/status", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var status syncpkg.Status
	decodeData(t, env, &status)
	if status.Online || status.Pending != 1 || status.MatchID != "m1" {
		t.Errorf("unexpected status %+v", status)
	}

	code, env = s.do(t, http.MethodPost, "/api/v1/sync/drain", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var res syncpkg.DrainResult
	decodeData(t, env, &res)
	if res.Skipped == "" {
		t.Errorf("expected an offline drain to be skipped, got %+v", res)
	}

	code, env = s.do(t, http.MethodPost, "/api/v1/sync/retry-failed", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 with an empty body, got %d", code)
	}
	var retry RetryFailedResponse
	decodeData(t, env, &retry)
	if retry.Reset != 0 {
		t.Errorf("expected nothing to reset, got %d", retry.Reset)
	}
}

func TestLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/start", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %+v", code, env.Error)
	}
	if got := s.fake.Lifecycle(); len(got) != 1 || got[0] != "live" {
		t.Errorf("expected live reported, got %v", got)
	}
	view, ok := s.views.Get("m1")
	if !ok {
		t.Fatal("expected a view for m1")
	}
	if st, ok := view.Status(); !ok || st.Status != models.MatchLive {
		t.Errorf("expected viewers to see the match live, got %+v", st)
	}

	s.fake.FailWith(&ingest.TransportError{Op: "end_match", StatusCode: 503, Err: errors.New("unavailable")})
	code, env = s.do(t, http.MethodPost, "/api/v1/matches/m1/end", "")
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeUpstreamFailed {
		t.Errorf("expected UPSTREAM_FAILED, got %+v", env.Error)
	}
}

func TestPublishScore(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m1/score", `{"home":2,"away":1,"minute":67,"period":"second_half"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %+v", code, env.Error)
	}

	code, env = s.do(t, http.MethodGet, "/api/v1/matches/m1/view", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var snap viewer.Snapshot
	decodeData(t, env, &snap)
	if snap.Score == nil || snap.Score.Home != 2 || snap.Score.Away != 1 {
		t.Errorf("expected score 2-1 in the view, got %+v", snap.Score)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/v1/matches/m1/score", `{"home":-1,"away":0}`); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative score, got %d", code)
	}
}

func TestMatchView_Unknown(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/matches/nobody/view", "")
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("expected 404, got %d %+v", code, env.Error)
	}
}

func TestBindMatch(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/matches/m2/bind", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var resp BindResponse
	decodeData(t, env, &resp)
	if resp.MatchID != "m2" || resp.Previous != "m1" {
		t.Errorf("unexpected bind response %+v", resp)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/v1/matches/m2/events", goalBody); code != http.StatusAccepted {
		t.Errorf("expected events for the new match to be accepted, got %d", code)
	}
}

func TestBreakers(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/breakers", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var list []breaker.Metrics
	decodeData(t, env, &list)
	if len(list) != 1 || list[0].Name != syncpkg.DefaultBreakerName {
		t.Errorf("expected the ingestion breaker, got %+v", list)
	}

	code, _ = s.do(t, http.MethodPost, "/api/v1/breakers/"+syncpkg.DefaultBreakerName+"/reset", "")
	if code != http.StatusOK {
		t.Errorf("expected 200 on reset, got %d", code)
	}
	code, env = s.do(t, http.MethodPost, "/api/v1/breakers/nope/reset", "")
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("expected 404 for an unknown breaker, got %d", code)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(t, http.MethodGet, "/api/v1/nothing", ""); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/v1/sync/drain", ""); code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", code)
	}
}

func TestWebSocket_NoHub(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/ws", "")
	if code != http.StatusServiceUnavailable || env.Error == nil {
		t.Errorf("expected 503 without a hub, got %d", code)
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	h := NewHandler(Deps{AllowedOrigins: []string{"https://stadium.example"}})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"https://stadium.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkWebSocketOrigin(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}

	wildcard := NewHandler(Deps{AllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	if !wildcard.checkWebSocketOrigin(req) {
		t.Error("expected wildcard to allow any origin")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x00c"); got != "abc" {
		t.Errorf("expected control characters stripped, got %q", got)
	}
	if got := sanitizeLogValue(strings.Repeat("x", 300)); len(got) != 203 {
		t.Errorf("expected truncation to 200 plus ellipsis, got %d", len(got))
	}
}
