// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package messaging provides the NATS JetStream transport for Granary:
// stream provisioning, a single-flight durable subscriber for inbound
// business events, a circuit-breaker-protected publisher for outbound
// domain events, and a badger-backed write-ahead log that buffers
// outbound events across NATS outages.
package messaging

import (
	"time"

	"github.com/tradesight/granary/internal/config"
)

// SubscriberConfig holds subscriber settings.
type SubscriberConfig struct {
	URL            string
	DurableName    string
	QueueGroup     string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// StreamName binds the subscriber to a pre-created stream. Required for
	// wildcard topics: NATS stream names cannot contain wildcards, so
	// AutoProvision would fail trying to create a stream named after the
	// topic pattern.
	StreamName string
}

// PublisherConfig holds publisher settings.
type PublisherConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int

	// TrackMsgID enables JetStream deduplication via the Nats-Msg-Id header.
	TrackMsgID bool
}

// StreamSpec defines one JetStream stream to provision.
type StreamSpec struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	DuplicateWindow time.Duration
	Replicas        int
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// SubscriberConfigFromApp derives subscriber settings from app configuration.
func SubscriberConfigFromApp(cfg *config.NATSConfig, url string) SubscriberConfig {
	return SubscriberConfig{
		URL:            url,
		DurableName:    cfg.DurableName,
		QueueGroup:     cfg.QueueGroup,
		AckWaitTimeout: cfg.AckWaitTimeout,
		MaxDeliver:     cfg.MaxDeliver,
		CloseTimeout:   cfg.CloseTimeout,
		MaxReconnects:  cfg.MaxReconnects,
		ReconnectWait:  cfg.ReconnectWait,
		StreamName:     cfg.StreamName,
	}
}

// PublisherConfigFromApp derives publisher settings from app configuration.
func PublisherConfigFromApp(cfg *config.NATSConfig, url string) PublisherConfig {
	return PublisherConfig{
		URL:             url,
		MaxReconnects:   cfg.MaxReconnects,
		ReconnectWait:   cfg.ReconnectWait,
		ReconnectBuffer: 8 * 1024 * 1024,
		TrackMsgID:      true,
	}
}

// StreamSpecsFromApp returns the inbound and outbound stream specs.
// The inbound stream captures tenant business events; the outbound stream
// holds the analytics events Granary itself produces.
func StreamSpecsFromApp(cfg *config.NATSConfig) []StreamSpec {
	maxAge := time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour
	specs := []StreamSpec{
		{
			Name:            cfg.StreamName,
			Subjects:        cfg.Subjects,
			MaxAge:          maxAge,
			MaxBytes:        10 << 30,
			DuplicateWindow: 2 * time.Minute,
			Replicas:        1,
		},
	}
	if cfg.OutboundStreamName != "" {
		specs = append(specs, StreamSpec{
			Name:            cfg.OutboundStreamName,
			Subjects:        cfg.OutboundSubjects,
			MaxAge:          maxAge,
			MaxBytes:        10 << 30,
			DuplicateWindow: 2 * time.Minute,
			Replicas:        1,
		})
	}
	return specs
}

// ServerConfigFromApp derives embedded server settings from app configuration.
func ServerConfigFromApp(cfg *config.NATSConfig) ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   1 << 30,
		JetStreamMaxStore: 10 << 30,
	}
}
