// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/metrics"
)

// State is the circuit state. The numeric values match the
// circuit_breaker_state gauge.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Metrics is a point-in-time snapshot of a breaker.
type Metrics struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	Failures             int       `json:"failures"`
	Successes            int       `json:"successes"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	TotalRequests        int       `json:"total_requests"`
	RejectedRequests     int       `json:"rejected_requests"`
	SlowCalls            int       `json:"slow_calls"`
	HalfOpenAttempts     int       `json:"half_open_attempts"`
	FailuresInWindow     int       `json:"failures_in_window"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
	LastSuccess          time.Time `json:"last_success,omitempty"`
	LastStateChange      time.Time `json:"last_state_change"`
	NextAttempt          time.Time `json:"next_attempt,omitempty"`
}

// Operation is the call protected by a breaker.
type Operation func(ctx context.Context) (any, error)

// Fallback runs instead of the operation when the breaker refuses a call.
// It receives the rejection error.
type Fallback func(ctx context.Context, rejection error) (any, error)

// Breaker is a three-state circuit breaker with a rolling failure window,
// volume threshold, bounded half-open probing and slow-call accounting.
// It is safe for concurrent use.
type Breaker struct {
	name     string
	settings Settings

	mu                   sync.Mutex
	state                State
	generation           uint64
	failures             int
	successes            int
	consecutiveFailures  int
	consecutiveSuccesses int
	totalRequests        int
	rejectedRequests     int
	completedCalls       int
	slowCalls            int
	halfOpenAttempts     int
	halfOpenInFlight     int
	failureWindow        []time.Time
	lastFailure          time.Time
	lastSuccess          time.Time
	lastStateChange      time.Time
	nextAttempt          time.Time
}

type transition struct {
	from, to State
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	s := settings.withDefaults()
	b := &Breaker{
		name:            name,
		settings:        s,
		state:           StateClosed,
		lastStateChange: s.Now(),
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op under breaker protection. While the circuit is open the
// operation is not called: fallback runs if given, otherwise the rejection
// error is returned.
func (b *Breaker) Execute(ctx context.Context, op Operation, fallback Fallback) (any, error) {
	generation, err := b.beforeCall()
	if err != nil {
		if fallback != nil {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "fallback").Inc()
			return fallback(ctx, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, err
	}

	start := b.settings.Now()
	result, err := b.call(ctx, op)
	b.afterCall(ctx, generation, b.settings.Now().Sub(start), err)
	return result, err
}

// Do is the typed form of Execute.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, rejection error) (any, error) {
			return fallback(ctx, rejection)
		}
	}

	result, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, fb)

	var zero T
	if err != nil {
		if typed, ok := result.(T); ok {
			return typed, err
		}
		return zero, err
	}
	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker %q: unexpected result type %T", b.name, result)
	}
	return typed, nil
}

// call runs op with the hard per-call timeout. The operation keeps running
// in its goroutine if it ignores cancellation; its result is discarded.
func (b *Breaker) call(ctx context.Context, op Operation) (any, error) {
	if b.settings.CallTimeout < 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.CallTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := op(callCtx)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %w", ErrCallTimeout, b.settings.CallTimeout, o.err)
		}
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrCallTimeout, b.settings.CallTimeout)
	}
}

func (b *Breaker) beforeCall() (uint64, error) {
	b.mu.Lock()
	now := b.settings.Now()
	var changed *transition

	if b.state == StateOpen {
		if now.Before(b.nextAttempt) {
			b.rejectedRequests++
			err := &OpenError{Name: b.name, NextAttempt: b.nextAttempt}
			b.mu.Unlock()
			return 0, err
		}
		changed = b.setState(StateHalfOpen, now)
	}

	if b.state == StateHalfOpen {
		if b.halfOpenInFlight >= b.settings.HalfOpenMaxAttempts {
			b.rejectedRequests++
			b.mu.Unlock()
			b.notify(changed)
			return 0, ErrTooManyRequests
		}
		b.halfOpenInFlight++
	}

	b.totalRequests++
	generation := b.generation
	b.mu.Unlock()
	b.notify(changed)
	return generation, nil
}

func (b *Breaker) afterCall(ctx context.Context, generation uint64, duration time.Duration, err error) {
	b.mu.Lock()
	if generation != b.generation {
		// The breaker changed state or was reset while this call was in
		// flight; the outcome belongs to a previous period.
		b.mu.Unlock()
		return
	}
	now := b.settings.Now()
	if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	var changed *transition
	result := "success"

	switch {
	case err != nil && (errors.Is(err, context.Canceled) && ctx.Err() != nil):
		// Caller went away; neither a failure nor a success.
		result = "ignored"
	case err != nil && b.settings.ErrorFilter != nil && !b.settings.ErrorFilter(err):
		result = "ignored"
	case err != nil:
		result = "failure"
		b.completedCalls++
		if duration >= b.settings.SlowCallThreshold {
			b.slowCalls++
			metrics.CircuitBreakerSlowCalls.WithLabelValues(b.name).Inc()
		}
		changed = b.onFailure(now)
	default:
		b.completedCalls++
		slow := duration >= b.settings.SlowCallThreshold
		if slow {
			b.slowCalls++
			metrics.CircuitBreakerSlowCalls.WithLabelValues(b.name).Inc()
		}
		changed = b.onSuccess(now, slow)
	}

	consecutive := b.consecutiveFailures
	b.mu.Unlock()

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, result).Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(consecutive))
	b.notify(changed)
}

func (b *Breaker) onSuccess(now time.Time, slow bool) *transition {
	b.successes++
	b.consecutiveSuccesses++
	b.consecutiveFailures = 0
	b.lastSuccess = now

	switch b.state {
	case StateHalfOpen:
		if b.consecutiveSuccesses >= b.settings.SuccessThreshold {
			return b.setState(StateClosed, now)
		}
	case StateClosed:
		if slow && b.slowCallRate() > b.settings.SlowCallRateThreshold {
			return b.recordWindowFailure(now)
		}
	}
	return nil
}

func (b *Breaker) onFailure(now time.Time) *transition {
	b.failures++
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		return b.recordWindowFailure(now)
	case StateHalfOpen:
		b.halfOpenAttempts++
		if b.halfOpenAttempts >= b.settings.HalfOpenMaxAttempts {
			return b.setState(StateOpen, now)
		}
	}
	return nil
}

// recordWindowFailure appends to the rolling window, prunes it to the
// monitoring period and opens the circuit once both thresholds are met.
func (b *Breaker) recordWindowFailure(now time.Time) *transition {
	b.failureWindow = append(b.failureWindow, now)
	b.pruneWindow(now)

	if b.totalRequests >= b.settings.VolumeThreshold && len(b.failureWindow) >= b.settings.FailureThreshold {
		logging.Warn().
			Str("breaker", b.name).
			Int("failures_in_window", len(b.failureWindow)).
			Int("total_requests", b.totalRequests).
			Msg("[CIRCUIT BREAKER] Opening circuit")
		return b.setState(StateOpen, now)
	}
	return nil
}

func (b *Breaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-b.settings.MonitoringPeriod)
	keep := 0
	for _, ts := range b.failureWindow {
		if ts.After(cutoff) {
			b.failureWindow[keep] = ts
			keep++
		}
	}
	b.failureWindow = b.failureWindow[:keep]
}

func (b *Breaker) slowCallRate() float64 {
	if b.completedCalls == 0 {
		return 0
	}
	return float64(b.slowCalls) / float64(b.completedCalls)
}

// setState must be called with mu held.
func (b *Breaker) setState(to State, now time.Time) *transition {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	b.generation++
	b.lastStateChange = now
	b.halfOpenInFlight = 0

	switch to {
	case StateOpen:
		b.nextAttempt = now.Add(b.settings.Timeout)
		b.halfOpenAttempts = 0
	case StateHalfOpen:
		b.halfOpenAttempts = 0
		b.consecutiveSuccesses = 0
	case StateClosed:
		b.nextAttempt = time.Time{}
		b.failures = 0
		b.consecutiveFailures = 0
		b.halfOpenAttempts = 0
		b.failureWindow = nil
		b.slowCalls = 0
		b.completedCalls = 0
	}
	return &transition{from: from, to: to}
}

func (b *Breaker) notify(t *transition) {
	if t == nil {
		return
	}
	logging.Info().
		Str("breaker", b.name).
		Str("from", t.from.String()).
		Str("to", t.to.String()).
		Msg("[CIRCUIT BREAKER] State transition")

	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(float64(t.to))
	metrics.CircuitBreakerTransitions.WithLabelValues(b.name, t.from.String(), t.to.String()).Inc()
	if t.to == StateClosed {
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

// State returns the current state. An open circuit whose timeout has
// elapsed still reports OPEN until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot of the breaker counters.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneWindow(b.settings.Now())
	return Metrics{
		Name:                 b.name,
		State:                b.state,
		Failures:             b.failures,
		Successes:            b.successes,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalRequests:        b.totalRequests,
		RejectedRequests:     b.rejectedRequests,
		SlowCalls:            b.slowCalls,
		HalfOpenAttempts:     b.halfOpenAttempts,
		FailuresInWindow:     len(b.failureWindow),
		LastFailure:          b.lastFailure,
		LastSuccess:          b.lastSuccess,
		LastStateChange:      b.lastStateChange,
		NextAttempt:          b.nextAttempt,
	}
}

// Reset forces the breaker closed and zeroes every counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	now := b.settings.Now()

	b.state = StateClosed
	b.generation++
	b.failures = 0
	b.successes = 0
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.totalRequests = 0
	b.rejectedRequests = 0
	b.completedCalls = 0
	b.slowCalls = 0
	b.halfOpenAttempts = 0
	b.halfOpenInFlight = 0
	b.failureWindow = nil
	b.lastFailure = time.Time{}
	b.lastSuccess = time.Time{}
	b.lastStateChange = now
	b.nextAttempt = time.Time{}
	b.mu.Unlock()

	logging.Info().Str("breaker", b.name).Str("from", from.String()).Msg("[CIRCUIT BREAKER] Manual reset")
	if from != StateClosed {
		b.notify(&transition{from: from, to: StateClosed})
	}
}
