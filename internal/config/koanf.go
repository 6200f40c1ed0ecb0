// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/matchsync/config.yaml",
	"/etc/matchsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. Config files
// and env vars override it.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Ingestion: IngestionConfig{
			Timeout:       10 * time.Second,
			RatePerSecond: 20,
			Burst:         40,
			HealthPath:    "/health",
		},
		Breaker: BreakerConfig{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               60 * time.Second,
			MonitoringPeriod:      120 * time.Second,
			VolumeThreshold:       10,
			HalfOpenMaxAttempts:   3,
			SlowCallThreshold:     5 * time.Second,
			SlowCallRateThreshold: 0.5,
			CallTimeout:           10 * time.Second,
		},
		Queue: QueueConfig{
			RetryDelay: 5 * time.Second,
			MaxRetries: 5,
			MaxSize:    0,
		},
		Sync: SyncConfig{
			DrainInterval: 30 * time.Second,
			ProbeInterval: 10 * time.Second,
			ProbeTimeout:  3 * time.Second,
			ProbeFailures: 2,
		},
		Storage: StorageConfig{
			Backend:     StorageBadger,
			Path:        "/data/matchsync/queue",
			SyncWrites:  true,
			Compression: true,
			GCInterval:  10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "matchsync.match",
			Embedded:      false,
			Host:          "127.0.0.1",
			Port:          4222,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using the layered approach:
//  1. Built-in defaults
//  2. Config file (if found)
//  3. Environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are split on commas when they arrive as a string.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	"ingestion_url":         "ingestion.base_url",
	"ingestion_api_key":     "ingestion.api_key",
	"ingestion_timeout":     "ingestion.timeout",
	"ingestion_rate":        "ingestion.rate_per_second",
	"ingestion_burst":       "ingestion.burst",
	"ingestion_health_path": "ingestion.health_path",

	"breaker_failure_threshold":        "breaker.failure_threshold",
	"breaker_success_threshold":        "breaker.success_threshold",
	"breaker_timeout":                  "breaker.timeout",
	"breaker_monitoring_period":        "breaker.monitoring_period",
	"breaker_volume_threshold":         "breaker.volume_threshold",
	"breaker_half_open_max_attempts":   "breaker.half_open_max_attempts",
	"breaker_slow_call_threshold":      "breaker.slow_call_threshold",
	"breaker_slow_call_rate_threshold": "breaker.slow_call_rate_threshold",
	"breaker_call_timeout":             "breaker.call_timeout",

	"queue_retry_delay": "queue.retry_delay",
	"queue_max_retries": "queue.max_retries",
	"queue_max_size":    "queue.max_size",

	"sync_drain_interval": "sync.drain_interval",
	"sync_probe_interval": "sync.probe_interval",
	"sync_probe_timeout":  "sync.probe_timeout",
	"sync_probe_failures": "sync.probe_failures",
	"sync_match_id":       "sync.match_id",
	"sync_start_online":   "sync.start_online",

	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_sync_writes": "storage.sync_writes",
	"storage_compression": "storage.compression",
	"storage_gc_interval": "storage.gc_interval",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_subject_prefix": "nats.subject_prefix",
	"nats_node_id":        "nats.node_id",
	"nats_embedded":       "nats.embedded",
	"nats_host":           "nats.host",
	"nats_port":           "nats.port",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps a known environment variable to its koanf path.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
