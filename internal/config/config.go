// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package config provides layered configuration for Granary using Koanf v2.
//
// Precedence, lowest to highest: struct defaults, YAML config file,
// GRANARY_-prefixed environment variables. Section and key names use
// double underscores in the environment:
//
//	GRANARY_DATABASE__PATH=/data/granary.duckdb
//	GRANARY_NATS__URL=nats://127.0.0.1:4222
//	GRANARY_FORECASTING__MAX_HORIZON=365
package config

import "time"

// Config is the root configuration.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Database     DatabaseConfig     `koanf:"database"`
	NATS         NATSConfig         `koanf:"nats"`
	Consumer     ConsumerConfig     `koanf:"consumer"`
	Materializer MaterializerConfig `koanf:"materializer"`
	Forecasting  ForecastingConfig  `koanf:"forecasting"`
	Ops          OpsConfig          `koanf:"ops"`
}

// LoggingConfig controls the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig controls the DuckDB analytics store.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is DuckDB's memory limit (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// NATSConfig controls the JetStream transport.
type NATSConfig struct {
	URL string `koanf:"url" validate:"required"`

	// EmbeddedServer starts an in-process NATS server for standalone
	// deployments instead of connecting to an external cluster.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding inbound business events.
	StreamName string `koanf:"stream_name" validate:"required"`

	// Subjects are the subject patterns captured by the stream.
	Subjects []string `koanf:"subjects"`

	// OutboundStreamName holds domain events produced by the pipeline.
	OutboundStreamName string `koanf:"outbound_stream_name"`

	// OutboundSubjects are the subject patterns of the outbound stream.
	OutboundSubjects []string `koanf:"outbound_subjects"`

	StreamRetentionDays int `koanf:"stream_retention_days" validate:"gte=0"`

	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
	MaxDeliver     int           `koanf:"max_deliver"`
}

// ConsumerConfig controls the inbound event consumer.
type ConsumerConfig struct {
	// Topic is the subject pattern the consumer subscribes to.
	Topic string `koanf:"topic"`

	// RetryCount is the router-level retry budget before a message is nacked
	// back to JetStream for redelivery.
	RetryCount int `koanf:"retry_count" validate:"gte=0"`

	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`

	// WAL controls the badger-backed outbound event buffer.
	WALEnabled   bool          `koanf:"wal_enabled"`
	WALPath      string        `koanf:"wal_path"`
	WALRetryWait time.Duration `koanf:"wal_retry_wait"`
}

// MaterializerConfig controls the view refresh scheduler.
type MaterializerConfig struct {
	// ScheduleInterval is how often the scheduler refreshes every tenant's
	// views. Zero disables scheduled refreshes (on-demand only).
	ScheduleInterval time.Duration `koanf:"schedule_interval"`
}

// ForecastingConfig controls the forecasting service.
type ForecastingConfig struct {
	// MaxHorizon bounds the forecast horizon accepted from callers.
	MaxHorizon int `koanf:"max_horizon" validate:"gt=0"`

	// RetentionDays is the default age cutoff for forecast cleanup.
	RetentionDays int `koanf:"retention_days" validate:"gte=0"`

	External ExternalModelConfig `koanf:"external"`
}

// ExternalModelConfig controls the optional external forecasting endpoint.
// The external model fails closed: it is only reachable when Enabled is true
// and URL is non-empty.
type ExternalModelConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits calls to the external endpoint; 0 means
	// unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
}

// OpsConfig controls the operational HTTP surface (health, metrics).
type OpsConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`

	// RateLimitReqs bounds requests per client per minute; 0 disables limiting.
	RateLimitReqs int `koanf:"rate_limit_reqs" validate:"gte=0"`
}

// defaultConfig returns a Config with all default values. Defaults are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/granary.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		NATS: NATSConfig{
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      false,
			StoreDir:            "/data/nats/jetstream",
			StreamName:          "BUSINESS_EVENTS",
			Subjects:            []string{"contracts.>", "production.>", "weighing.>", "quality.>", "regulatory.>", "finance.>", "sales.>"},
			OutboundStreamName:  "ANALYTICS_EVENTS",
			OutboundSubjects:    []string{"analytics.>"},
			StreamRetentionDays: 7,
			DurableName:         "granary-consumer",
			QueueGroup:          "granary",
			MaxReconnects:       -1, // retry forever
			ReconnectWait:       2 * time.Second,
			AckWaitTimeout:      30 * time.Second,
			CloseTimeout:        30 * time.Second,
			MaxDeliver:          5,
		},
		Consumer: ConsumerConfig{
			Topic:                "", // empty = subscribe to every stream subject via the stream name
			RetryCount:           3,
			RetryInitialInterval: 100 * time.Millisecond,
			WALEnabled:           true,
			WALPath:              "/data/granary-wal",
			WALRetryWait:         5 * time.Second,
		},
		Materializer: MaterializerConfig{
			ScheduleInterval: 15 * time.Minute,
		},
		Forecasting: ForecastingConfig{
			MaxHorizon:    365,
			RetentionDays: 90,
			External: ExternalModelConfig{
				Enabled:           false,
				URL:               "",
				Timeout:           30 * time.Second,
				RequestsPerSecond: 5,
			},
		},
		Ops: OpsConfig{
			Host:          "0.0.0.0",
			Port:          9090,
			RateLimitReqs: 120,
		},
	}
}
