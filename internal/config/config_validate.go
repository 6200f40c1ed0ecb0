// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError reports an invalid configuration value by its koanf path.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks that required configuration is present and valid. The
// first problem is returned as a *ValidationError.
func (c *Config) Validate() error {
	checks := []func() *ValidationError{
		c.validateServer,
		c.validateIngestion,
		c.validateBreaker,
		c.validateQueue,
		c.validateSync,
		c.validateStorage,
		c.validateNATS,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() *ValidationError {
	s := c.Server
	if s.Port < 1 || s.Port > 65535 {
		return invalid("server.port", "must be between 1 and 65535, got %d", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "must be positive")
	}
	if !s.RateLimitDisabled {
		if s.RateLimitReqs <= 0 {
			return invalid("server.rate_limit_reqs", "must be positive when rate limiting is enabled")
		}
		if s.RateLimitWindow <= 0 {
			return invalid("server.rate_limit_window", "must be positive when rate limiting is enabled")
		}
	}
	return nil
}

func (c *Config) validateIngestion() *ValidationError {
	in := c.Ingestion
	if in.BaseURL == "" {
		return invalid("ingestion.base_url", "is required (INGESTION_URL)")
	}
	if err := validateHTTPURL(in.BaseURL); err != nil {
		return invalid("ingestion.base_url", "%v", err)
	}
	if in.Timeout <= 0 {
		return invalid("ingestion.timeout", "must be positive")
	}
	if in.RatePerSecond < 0 {
		return invalid("ingestion.rate_per_second", "must not be negative")
	}
	if in.RatePerSecond > 0 && in.Burst < 1 {
		return invalid("ingestion.burst", "must be at least 1 when rate limiting")
	}
	if in.HealthPath != "" && !strings.HasPrefix(in.HealthPath, "/") {
		return invalid("ingestion.health_path", "must start with /")
	}
	return nil
}

func (c *Config) validateBreaker() *ValidationError {
	b := c.Breaker
	switch {
	case b.FailureThreshold < 1:
		return invalid("breaker.failure_threshold", "must be at least 1")
	case b.SuccessThreshold < 1:
		return invalid("breaker.success_threshold", "must be at least 1")
	case b.Timeout <= 0:
		return invalid("breaker.timeout", "must be positive")
	case b.MonitoringPeriod <= 0:
		return invalid("breaker.monitoring_period", "must be positive")
	case b.VolumeThreshold < 0:
		return invalid("breaker.volume_threshold", "must not be negative")
	case b.HalfOpenMaxAttempts < 1:
		return invalid("breaker.half_open_max_attempts", "must be at least 1")
	case b.SlowCallThreshold <= 0:
		return invalid("breaker.slow_call_threshold", "must be positive")
	case b.SlowCallRateThreshold < 0 || b.SlowCallRateThreshold > 1:
		return invalid("breaker.slow_call_rate_threshold", "must be between 0 and 1, got %v", b.SlowCallRateThreshold)
	}
	return nil
}

func (c *Config) validateQueue() *ValidationError {
	q := c.Queue
	if q.RetryDelay < 0 {
		return invalid("queue.retry_delay", "must not be negative")
	}
	if q.MaxRetries < 1 {
		return invalid("queue.max_retries", "must be at least 1")
	}
	if q.MaxSize < 0 {
		return invalid("queue.max_size", "must not be negative (0 = unbounded)")
	}
	return nil
}

func (c *Config) validateSync() *ValidationError {
	s := c.Sync
	if s.DrainInterval <= 0 {
		return invalid("sync.drain_interval", "must be positive")
	}
	if s.ProbeInterval < 0 {
		return invalid("sync.probe_interval", "must not be negative")
	}
	if s.ProbeInterval > 0 {
		if s.ProbeTimeout <= 0 {
			return invalid("sync.probe_timeout", "must be positive when probing")
		}
		if s.ProbeFailures < 1 {
			return invalid("sync.probe_failures", "must be at least 1 when probing")
		}
	}
	return nil
}

func (c *Config) validateStorage() *ValidationError {
	s := c.Storage
	switch s.Backend {
	case StorageMemory:
		return nil
	case StorageBadger:
		if s.Path == "" {
			return invalid("storage.path", "is required for the badger backend")
		}
		if s.GCInterval < 0 {
			return invalid("storage.gc_interval", "must not be negative")
		}
		return nil
	default:
		return invalid("storage.backend", "must be %q or %q, got %q", StorageMemory, StorageBadger, s.Backend)
	}
}

func (c *Config) validateNATS() *ValidationError {
	n := c.NATS
	if !n.Enabled {
		return nil
	}
	if n.SubjectPrefix == "" || strings.ContainsAny(n.SubjectPrefix, "*> ") {
		return invalid("nats.subject_prefix", "must be a literal subject, got %q", n.SubjectPrefix)
	}
	if n.Embedded {
		if n.Port < -1 || n.Port > 65535 {
			return invalid("nats.port", "must be between -1 and 65535, got %d", n.Port)
		}
		return nil
	}
	if err := validateNATSURL(n.URL); err != nil {
		return invalid("nats.url", "%v", err)
	}
	return nil
}

func (c *Config) validateLogging() *ValidationError {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return invalid("logging.format", "must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks for an http(s) URL with a host and no query.
func validateHTTPURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("should not contain query parameters, remove: ?%s", parsedURL.RawQuery)
	}
	return nil
}

// validateNATSURL accepts nats://, tls://, ws:// and wss:// URLs with a host.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}
