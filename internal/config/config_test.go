// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirEmpty moves the test into an empty directory so a stray config.yaml in
// the working tree cannot leak into the file layer.
func chdirEmpty(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	chdirEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.NATS.StreamName != "BUSINESS_EVENTS" || cfg.NATS.OutboundStreamName != "ANALYTICS_EVENTS" {
		t.Errorf("stream defaults = %q/%q", cfg.NATS.StreamName, cfg.NATS.OutboundStreamName)
	}
	if cfg.Forecasting.MaxHorizon != 365 || cfg.Forecasting.RetentionDays != 90 {
		t.Errorf("forecasting defaults = %d/%d", cfg.Forecasting.MaxHorizon, cfg.Forecasting.RetentionDays)
	}
	if cfg.Materializer.ScheduleInterval != 15*time.Minute {
		t.Errorf("schedule interval default = %v", cfg.Materializer.ScheduleInterval)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("GRANARY_DATABASE__MAX_MEMORY", "512MB")
	t.Setenv("GRANARY_NATS__URL", "nats://broker:4222")
	t.Setenv("GRANARY_FORECASTING__MAX_HORIZON", "30")
	t.Setenv("GRANARY_FORECASTING__EXTERNAL__URL", "http://models.internal/forecast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxMemory != "512MB" {
		t.Errorf("max_memory = %q, want env override", cfg.Database.MaxMemory)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q, want env override", cfg.NATS.URL)
	}
	if cfg.Forecasting.MaxHorizon != 30 {
		t.Errorf("max horizon = %d, want 30", cfg.Forecasting.MaxHorizon)
	}
	if cfg.Forecasting.External.URL != "http://models.internal/forecast" {
		t.Errorf("external url = %q, want nested env override", cfg.Forecasting.External.URL)
	}
}

func TestLoadFileLayerBetweenDefaultsAndEnv(t *testing.T) {
	chdirEmpty(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := strings.Join([]string{
		"database:",
		"  path: /tmp/file-layer.duckdb",
		"  max_memory: 1GB",
		"ops:",
		"  port: 8088",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("GRANARY_DATABASE__MAX_MEMORY", "4GB")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/file-layer.duckdb" {
		t.Errorf("db path = %q, want the file layer value", cfg.Database.Path)
	}
	if cfg.Database.MaxMemory != "4GB" {
		t.Errorf("max_memory = %q, want env to beat the file", cfg.Database.MaxMemory)
	}
	if cfg.Ops.Port != 8088 {
		t.Errorf("ops port = %d, want file override over default", cfg.Ops.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("GRANARY_LOGGING__LEVEL", "loud")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure for unknown log level")
	}
}

func TestValidateCrossFieldConstraints(t *testing.T) {
	base := func() *Config { return defaultConfig() }

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"external enabled without url",
			func(c *Config) { c.Forecasting.External.Enabled = true },
			"forecasting.external.url",
		},
		{
			"wal enabled without path",
			func(c *Config) { c.Consumer.WALPath = "" },
			"consumer.wal_path",
		},
		{
			"embedded nats without store dir",
			func(c *Config) { c.NATS.EmbeddedServer = true; c.NATS.StoreDir = "" },
			"nats.store_dir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %s", err.Error(), tt.want)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("defaults should validate cleanly: %v", err)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GRANARY_NATS__URL", "nats.url"},
		{"GRANARY_DATABASE__MAX_MEMORY", "database.max_memory"},
		{"GRANARY_FORECASTING__EXTERNAL__URL", "forecasting.external.url"},
		{"GRANARY_CONSUMER__RETRY_INITIAL_INTERVAL", "consumer.retry_initial_interval"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
