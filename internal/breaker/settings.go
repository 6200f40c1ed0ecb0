// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package breaker

import "time"

// Settings configures a Breaker. Zero fields take the defaults from
// DefaultSettings.
type Settings struct {
	// FailureThreshold is the number of failures inside MonitoringPeriod
	// that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the circuit.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before the next call is
	// let through as a half-open trial.
	Timeout time.Duration

	// MonitoringPeriod bounds the rolling failure window.
	MonitoringPeriod time.Duration

	// VolumeThreshold is the minimum number of requests before the circuit
	// may open.
	VolumeThreshold int

	// HalfOpenMaxAttempts caps concurrent half-open trials and the number of
	// half-open failures tolerated before reopening.
	HalfOpenMaxAttempts int

	// SlowCallThreshold classifies a call as slow.
	SlowCallThreshold time.Duration

	// SlowCallRateThreshold is the slow-call fraction (0..1) above which a
	// slow success is added to the failure window.
	SlowCallRateThreshold float64

	// CallTimeout cancels a call that runs longer. Negative disables it.
	CallTimeout time.Duration

	// ErrorFilter returns false for errors that must not count as failures,
	// such as validation rejections. Nil counts every error.
	ErrorFilter func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry defaults for breakers created on first use.
const (
	DefaultFailureThreshold      = 5
	DefaultSuccessThreshold      = 2
	DefaultTimeout               = 60 * time.Second
	DefaultMonitoringPeriod      = 120 * time.Second
	DefaultVolumeThreshold       = 10
	DefaultHalfOpenMaxAttempts   = 3
	DefaultSlowCallThreshold     = 5 * time.Second
	DefaultSlowCallRateThreshold = 0.5
	DefaultCallTimeout           = 10 * time.Second
)

// DefaultSettings returns the documented registry defaults.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:      DefaultFailureThreshold,
		SuccessThreshold:      DefaultSuccessThreshold,
		Timeout:               DefaultTimeout,
		MonitoringPeriod:      DefaultMonitoringPeriod,
		VolumeThreshold:       DefaultVolumeThreshold,
		HalfOpenMaxAttempts:   DefaultHalfOpenMaxAttempts,
		SlowCallThreshold:     DefaultSlowCallThreshold,
		SlowCallRateThreshold: DefaultSlowCallRateThreshold,
		CallTimeout:           DefaultCallTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = d.SuccessThreshold
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.MonitoringPeriod <= 0 {
		s.MonitoringPeriod = d.MonitoringPeriod
	}
	if s.VolumeThreshold <= 0 {
		s.VolumeThreshold = d.VolumeThreshold
	}
	if s.HalfOpenMaxAttempts <= 0 {
		s.HalfOpenMaxAttempts = d.HalfOpenMaxAttempts
	}
	if s.SlowCallThreshold <= 0 {
		s.SlowCallThreshold = d.SlowCallThreshold
	}
	if s.SlowCallRateThreshold <= 0 {
		s.SlowCallRateThreshold = d.SlowCallRateThreshold
	}
	if s.CallTimeout == 0 {
		s.CallTimeout = d.CallTimeout
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}
