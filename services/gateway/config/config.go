// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the gateway's process configuration from the
// environment. Every knob has an env var; the CLI binds the same keys
// through its flag layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Upload holds the upload policy ceilings. These are policy limits the
// gateway enforces before any file is persisted, not transport limits.
type Upload struct {
	// MaxFiles is the per-batch file count ceiling.
	MaxFiles int

	// MaxFileBytes is the per-file size ceiling in bytes.
	MaxFileBytes int64

	// Dir is where the disk store persists uploaded files.
	Dir string
}

// RateLimit holds the per-credential request rate limit.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Config is the gateway's full process configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// StoreBaseURL is the TaylorDB REST origin.
	StoreBaseURL string

	// DatabaseID selects the database within the store.
	DatabaseID string

	// ServiceToken is the default credential for background/service
	// contexts. Request handling always uses the caller's own token.
	ServiceToken string

	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration

	// AllowedOrigins is the CORS allowlist. Empty means same-origin only.
	AllowedOrigins []string

	// SchemaPath points at a YAML schema file. Empty selects the
	// compiled-in starter schema.
	SchemaPath string

	// LogLevel is "debug", "info", "warn", or "error".
	LogLevel string

	// LogDir enables file logging when set.
	LogDir string

	// OTLPEndpoint enables trace export when set, e.g. "localhost:4317".
	OTLPEndpoint string

	Upload    Upload
	RateLimit RateLimit
}

// Load reads configuration from the environment, applying defaults.
// Only the store connection parameters are mandatory.
func Load() (Config, error) {
	cfg := Config{
		Port:         getEnv("GATEWAY_PORT", "8080"),
		StoreBaseURL: os.Getenv("TAYLORDB_BASE_URL"),
		DatabaseID:   os.Getenv("TAYLORDB_DATABASE_ID"),
		ServiceToken: os.Getenv("TAYLORDB_SERVICE_TOKEN"),
		SchemaPath:   os.Getenv("GATEWAY_SCHEMA_PATH"),
		LogLevel:     getEnv("GATEWAY_LOG_LEVEL", "info"),
		LogDir:       os.Getenv("GATEWAY_LOG_DIR"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.StoreBaseURL == "" {
		return Config{}, fmt.Errorf("TAYLORDB_BASE_URL is required")
	}
	if cfg.DatabaseID == "" {
		return Config{}, fmt.Errorf("TAYLORDB_DATABASE_ID is required")
	}

	timeout, err := getDuration("TAYLORDB_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.StoreTimeout = timeout

	if origins := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	maxFiles, err := getInt("GATEWAY_UPLOAD_MAX_FILES", 10)
	if err != nil {
		return Config{}, err
	}
	maxBytes, err := getInt64("GATEWAY_UPLOAD_MAX_FILE_BYTES", 10*1024*1024)
	if err != nil {
		return Config{}, err
	}
	cfg.Upload = Upload{
		MaxFiles:     maxFiles,
		MaxFileBytes: maxBytes,
		Dir:          getEnv("GATEWAY_UPLOAD_DIR", "/var/lib/taylorgate/uploads"),
	}

	perSecond, err := getFloat("GATEWAY_RATE_LIMIT_PER_SECOND", 25)
	if err != nil {
		return Config{}, err
	}
	burst, err := getInt("GATEWAY_RATE_LIMIT_BURST", 50)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit = RateLimit{PerSecond: perSecond, Burst: burst}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as \"30s\": %w", key, err)
	}
	return d, nil
}
