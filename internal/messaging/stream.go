// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package messaging

import (
	"context"
	"errors"
	"fmt"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tradesight/granary/internal/logging"
)

// StreamManager provisions the JetStream streams Granary depends on.
type StreamManager struct {
	js    jetstream.JetStream
	specs []StreamSpec
}

// NewStreamManager creates a stream manager over the given connection.
func NewStreamManager(nc *natsgo.Conn, specs []StreamSpec) (*StreamManager, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one stream spec required")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &StreamManager{js: js, specs: specs}, nil
}

// EnsureStreams creates or updates every configured stream. Existing streams
// are updated in place so retention changes take effect on restart.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	for _, spec := range m.specs {
		if err := m.ensure(ctx, spec); err != nil {
			return fmt.Errorf("ensure stream %s: %w", spec.Name, err)
		}
	}
	return nil
}

func (m *StreamManager) ensure(ctx context.Context, spec StreamSpec) error {
	streamCfg := jetstream.StreamConfig{
		Name:        spec.Name,
		Subjects:    spec.Subjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      spec.MaxAge,
		MaxBytes:    spec.MaxBytes,
		MaxMsgs:     -1,
		Duplicates:  spec.DuplicateWindow,
		Replicas:    spec.Replicas,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	var (
		stream jetstream.Stream
		err    error
	)
	if _, err = m.js.Stream(ctx, spec.Name); err == nil {
		stream, err = m.js.UpdateStream(ctx, streamCfg)
	} else {
		stream, err = m.js.CreateStream(ctx, streamCfg)
	}
	if err != nil {
		return err
	}

	info := stream.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")
	return nil
}
