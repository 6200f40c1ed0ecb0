// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

/*
client.go - Ingestion API Client

The ingestion server accepts committed match events and match lifecycle
changes. It deduplicates events by id, so a replayed event is acknowledged
rather than stored twice.

	POST /matches/{matchID}/events   -> 200/201 event, 409 already accepted
	POST /matches/{matchID}/start    -> 200 match status
	POST /matches/{matchID}/end      -> 200 match status
	GET  /health                     -> 200 when reachable
*/

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/matchsync/internal/metrics"
	"github.com/tomtom215/matchsync/internal/models"
)

// Client is the ingestion server as seen by the sync coordinator.
type Client interface {
	SubmitEvent(ctx context.Context, matchID string, ev models.Event) (*models.Event, error)
	StartMatch(ctx context.Context, matchID string) (*models.MatchStatus, error)
	EndMatch(ctx context.Context, matchID string) (*models.MatchStatus, error)
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// Config configures the HTTP client.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HealthPath    string
}

// HTTPClient talks to the ingestion REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	healthPath string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates an ingestion API client.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	return &HTTPClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		healthPath: healthPath,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type rejectionBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// SubmitEvent delivers one event. A 409 means the server already holds an
// event with this id and is treated as success.
func (c *HTTPClient) SubmitEvent(ctx context.Context, matchID string, ev models.Event) (*models.Event, error) {
	const op = "submit_event"
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	resp, err := c.do(ctx, op, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/events", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return &ev, nil
	}
	if err := classify(op, resp); err != nil {
		return nil, err
	}

	var accepted models.Event
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		if errors.Is(err, io.EOF) {
			return &ev, nil
		}
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode event: %w", err)}
	}
	return &accepted, nil
}

// StartMatch moves a match to live.
func (c *HTTPClient) StartMatch(ctx context.Context, matchID string) (*models.MatchStatus, error) {
	return c.lifecycle(ctx, "start_match", matchID, "start")
}

// EndMatch moves a match to finished.
func (c *HTTPClient) EndMatch(ctx context.Context, matchID string) (*models.MatchStatus, error) {
	return c.lifecycle(ctx, "end_match", matchID, "end")
}

func (c *HTTPClient) lifecycle(ctx context.Context, op, matchID, action string) (*models.MatchStatus, error) {
	resp, err := c.do(ctx, op, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/"+action, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classify(op, resp); err != nil {
		return nil, err
	}

	var status models.MatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode match status: %w", err)}
	}
	return &status, nil
}

// Ping checks that the ingestion server is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	const op = "ping"
	resp, err := c.do(ctx, op, http.MethodGet, c.healthPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TimeoutError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordIngestCall(op, 0, time.Since(start))
		if isTimeout(err) {
			return nil, &TimeoutError{Op: op, Err: err}
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	metrics.RecordIngestCall(op, resp.StatusCode, time.Since(start))
	return resp, nil
}

// classify maps a non-2xx response to a typed error.
func classify(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		rej := &RejectionError{Op: op, StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
		var rb rejectionBody
		if json.Unmarshal(data, &rb) == nil {
			if rb.Error != "" {
				rej.Reason = rb.Error
			} else if rb.Message != "" {
				rej.Reason = rb.Message
			}
			rej.Fields = rb.Fields
		}
		return rej
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &TimeoutError{Op: op, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	default:
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
