// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package netstatus tracks whether the ingestion server is reachable and
// tells subscribers when that changes.
//
// Two sources feed the monitor: Set, for a host that already knows its
// connectivity, and a periodic health probe. Probe results go through a
// small hysteresis so one dropped request does not flip the relay offline.
package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/matchsync/internal/logging"
)

// Prober checks reachability. *ingest.HTTPClient satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config configures the probe loop.
type Config struct {
	// Interval between probes. Zero disables probing.
	Interval time.Duration
	// Timeout bounds one probe.
	Timeout time.Duration
	// FailuresToOffline consecutive failed probes mark the link down.
	FailuresToOffline int
	// SuccessesToOnline consecutive good probes mark the link up.
	SuccessesToOnline int
}

// DefaultConfig returns the default probe settings.
func DefaultConfig() Config {
	return Config{
		Interval:          10 * time.Second,
		Timeout:           3 * time.Second,
		FailuresToOffline: 2,
		SuccessesToOnline: 1,
	}
}

// Listener is told about every transition. Calls are serialized and always
// carry the state current at delivery time. A listener must not call Set.
type Listener func(ctx context.Context, online bool)

// Snapshot is the monitor state for the status endpoint.
type Snapshot struct {
	Online    bool      `json:"online"`
	Known     bool      `json:"known"`
	LastCheck time.Time `json:"last_check,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Monitor holds the current link state. It is safe for concurrent use.
type Monitor struct {
	prober Prober
	cfg    Config

	mu        sync.Mutex
	online    bool
	known     bool
	failures  int
	successes int
	lastCheck time.Time
	lastErr   string
	listeners map[int]Listener
	nextID    int

	// emitMu orders listener calls. emitted is the last state delivered.
	emitMu      sync.Mutex
	emitted     bool
	emittedOnce bool
}

// New creates a monitor. prober may be nil when only Set is used.
func New(prober Prober, cfg Config) *Monitor {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.FailuresToOffline <= 0 {
		cfg.FailuresToOffline = d.FailuresToOffline
	}
	if cfg.SuccessesToOnline <= 0 {
		cfg.SuccessesToOnline = d.SuccessesToOnline
	}
	return &Monitor{
		prober:    prober,
		cfg:       cfg,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Online reports the current state. It is false until the first signal.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Online: m.online, Known: m.known, LastCheck: m.lastCheck, LastError: m.lastErr}
}

// Set applies a host-supplied signal immediately.
func (m *Monitor) Set(ctx context.Context, online bool) {
	m.mu.Lock()
	m.failures, m.successes = 0, 0
	changed := m.apply(online)
	m.mu.Unlock()

	if changed {
		logging.Info().Bool("online", online).Str("source", "manual").Msg("Network status changed")
		m.emit(ctx)
	}
}

// Check runs one probe and returns the resulting state.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Ping(probeCtx)
	cancel()
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	changed := false
	if err != nil {
		m.lastErr = err.Error()
		m.successes = 0
		m.failures++
		if !m.known || m.failures >= m.cfg.FailuresToOffline {
			changed = m.apply(false)
		}
	} else {
		m.lastErr = ""
		m.failures = 0
		m.successes++
		if !m.known || m.successes >= m.cfg.SuccessesToOnline {
			changed = m.apply(true)
		}
	}
	online := m.online
	m.mu.Unlock()

	if changed {
		if online {
			logging.Info().Bool("online", true).Str("source", "probe").Msg("Network status changed")
		} else {
			logging.Warn().Err(err).Bool("online", false).Str("source", "probe").Msg("Network status changed")
		}
		m.emit(ctx)
	}
	return online
}

// apply sets the state and reports whether it changed. Must hold mu.
func (m *Monitor) apply(online bool) bool {
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	return changed
}

// emit delivers the current state to listeners. Racing transitions are
// delivered in order, and one already superseded is not delivered at all.
func (m *Monitor) emit(ctx context.Context) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	online := m.online
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if m.emittedOnce && m.emitted == online {
		return
	}
	m.emitted, m.emittedOnce = online, true

	for _, fn := range fns {
		fn(ctx, online)
	}
}

// Serve probes on Interval until ctx is canceled. Without a prober or an
// interval it only waits.
func (m *Monitor) Serve(ctx context.Context) error {
	if m.prober == nil || m.cfg.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	m.Check(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// String implements fmt.Stringer for the supervisor.
func (m *Monitor) String() string {
	return "network-probe"
}
