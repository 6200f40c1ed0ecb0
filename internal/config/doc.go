// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

// Package config loads matchsync configuration with koanf.
//
// Sources are layered, later ones overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file: $CONFIG_PATH, ./config.yaml, ./config.yml,
//     /etc/matchsync/config.yaml, /etc/matchsync/config.yml
//  3. Environment variables, mapped explicitly to koanf paths
//
// Only mapped environment variables are read, so unrelated variables never
// leak into the configuration. Durations use Go syntax ("5s", "2m").
//
// Example config.yaml:
//
//	server:
//	  port: 8080
//	  cors_origins: ["https://scores.example.com"]
//	ingestion:
//	  base_url: https://ingest.example.com
//	  api_key: secret
//	breaker:
//	  failure_threshold: 5
//	  timeout: 60s
//	storage:
//	  backend: badger
//	  path: /data/queue
//	nats:
//	  enabled: true
//	  embedded: true
//
// Load validates the result; a failure is a *ValidationError naming the
// offending field.
package config
