// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package messaging

import (
	"context"
	"time"

	"github.com/tradesight/granary/internal/logging"
)

// RetryLoop republishes pending WAL entries on an interval. It runs as a
// supervised service: Serve blocks until the context is canceled.
type RetryLoop struct {
	wal       *WAL
	publisher *Publisher
	interval  time.Duration
	maxTries  int
}

// NewRetryLoop creates a retry loop over the given WAL and publisher.
func NewRetryLoop(wal *WAL, publisher *Publisher) *RetryLoop {
	cfg := wal.config
	return &RetryLoop{
		wal:       wal,
		publisher: publisher,
		interval:  cfg.RetryInterval,
		maxTries:  cfg.MaxRetries,
	}
}

// Serve implements suture.Service. The first drain happens immediately so
// events buffered during downtime are recovered at startup, then the loop
// ticks on the configured interval.
func (r *RetryLoop) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", r.interval).
		Int("max_retries", r.maxTries).
		Msg("WAL retry loop started")

	r.drain(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("WAL retry loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (r *RetryLoop) String() string {
	return "wal-retry-loop"
}

func (r *RetryLoop) drain(ctx context.Context) {
	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Msg("WAL retry scan failed")
		}
		return
	}
	if len(entries) == 0 {
		r.wal.Stats() // refresh the pending gauge
		return
	}

	logging.Debug().Int("pending", len(entries)).Msg("retrying pending WAL entries")

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.retryEntry(ctx, entry)
	}

	r.wal.Stats()
}

func (r *RetryLoop) retryEntry(ctx context.Context, entry *WALEntry) {
	if !r.wal.TryClaim(entry.ID) {
		return
	}
	defer r.wal.Release(entry.ID)

	if r.maxTries > 0 && entry.Attempts >= r.maxTries {
		logging.Error().
			Str("wal_entry_id", entry.ID).
			Int("attempts", entry.Attempts).
			Str("last_error", entry.LastError).
			Msg("WAL entry exceeded retry budget, dropping")
		if err := r.wal.Delete(ctx, entry.ID); err != nil {
			logging.Warn().Str("wal_entry_id", entry.ID).Err(err).Msg("WAL delete failed")
		}
		return
	}

	event, err := entry.Event()
	if err != nil {
		logging.Error().Str("wal_entry_id", entry.ID).Err(err).Msg("WAL entry unreadable, dropping")
		if delErr := r.wal.Delete(ctx, entry.ID); delErr != nil {
			logging.Warn().Str("wal_entry_id", entry.ID).Err(delErr).Msg("WAL delete failed")
		}
		return
	}

	if err := r.publisher.PublishDomainEvent(ctx, event); err != nil {
		if updErr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); updErr != nil {
			logging.Warn().Str("wal_entry_id", entry.ID).Err(updErr).Msg("WAL attempt update failed")
		}
		return
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		logging.Warn().Str("wal_entry_id", entry.ID).Err(err).Msg("WAL confirm failed after retry")
	}
}
