// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package config

import "time"

// Config is the complete matchsync configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Ingestion IngestionConfig `koanf:"ingestion"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Queue     QueueConfig     `koanf:"queue"`
	Sync      SyncConfig      `koanf:"sync"`
	Storage   StorageConfig   `koanf:"storage"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the HTTP API settings.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT
//   - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT
//   - CORS_ORIGINS: comma-separated list
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// IngestionConfig points at the remote ingestion API that owns committed
// events.
//
// Environment Variables:
//   - INGESTION_URL, INGESTION_API_KEY, INGESTION_TIMEOUT
//   - INGESTION_RATE, INGESTION_BURST, INGESTION_HEALTH_PATH
type IngestionConfig struct {
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
	HealthPath    string        `koanf:"health_path"`
}

// BreakerConfig holds the defaults for every circuit breaker in the
// registry.
//
// Environment Variables: BREAKER_* (see envMappings).
type BreakerConfig struct {
	FailureThreshold      int           `koanf:"failure_threshold"`
	SuccessThreshold      int           `koanf:"success_threshold"`
	Timeout               time.Duration `koanf:"timeout"`
	MonitoringPeriod      time.Duration `koanf:"monitoring_period"`
	VolumeThreshold       int           `koanf:"volume_threshold"`
	HalfOpenMaxAttempts   int           `koanf:"half_open_max_attempts"`
	SlowCallThreshold     time.Duration `koanf:"slow_call_threshold"`
	SlowCallRateThreshold float64       `koanf:"slow_call_rate_threshold"`
	// CallTimeout cancels calls that run longer. Negative disables it.
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// QueueConfig holds the offline queue retry policy.
//
// Environment Variables:
//   - QUEUE_RETRY_DELAY, QUEUE_MAX_RETRIES, QUEUE_MAX_SIZE (0 = unbounded)
type QueueConfig struct {
	RetryDelay time.Duration `koanf:"retry_delay"`
	MaxRetries int           `koanf:"max_retries"`
	MaxSize    int           `koanf:"max_size"`
}

// SyncConfig holds the background loops of the sync coordinator.
//
// Environment Variables:
//   - SYNC_DRAIN_INTERVAL: periodic drain while online
//   - SYNC_PROBE_INTERVAL: ingestion health probe (0 disables probing)
//   - SYNC_PROBE_TIMEOUT, SYNC_PROBE_FAILURES
//   - SYNC_MATCH_ID: match bound at startup
//   - SYNC_START_ONLINE: assume the network is up before the first probe
type SyncConfig struct {
	DrainInterval time.Duration `koanf:"drain_interval"`
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
	ProbeFailures int           `koanf:"probe_failures"`
	MatchID       string        `koanf:"match_id"`
	StartOnline   bool          `koanf:"start_online"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// StorageConfig selects where the offline queue is persisted.
//
// Environment Variables:
//   - STORAGE_BACKEND: memory or badger
//   - STORAGE_PATH, STORAGE_SYNC_WRITES, STORAGE_COMPRESSION, STORAGE_GC_INTERVAL
type StorageConfig struct {
	Backend     string        `koanf:"backend"`
	Path        string        `koanf:"path"`
	SyncWrites  bool          `koanf:"sync_writes"`
	Compression bool          `koanf:"compression"`
	GCInterval  time.Duration `koanf:"gc_interval"`
}

// NATSConfig controls cross-relay fan-out.
//
// Environment Variables:
//   - NATS_ENABLED, NATS_URL, NATS_SUBJECT_PREFIX, NATS_NODE_ID
//   - NATS_EMBEDDED, NATS_HOST, NATS_PORT
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	NodeID        string `koanf:"node_id"`

	// Embedded starts an in-process NATS server and connects to it,
	// ignoring URL.
	Embedded bool   `koanf:"embedded"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, an optional file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
