// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package messaging

import (
	"context"
	"errors"

	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/models"
)

// WALPublisher wraps a Publisher with WAL durability. Events are persisted
// before the publish attempt; a publish failure leaves the entry in the WAL
// for the background retry loop, so the caller never sees broker outages.
type WALPublisher struct {
	inner *Publisher
	wal   *WAL
}

// NewWALPublisher creates a WAL-backed event publisher.
func NewWALPublisher(inner *Publisher, wal *WAL) (*WALPublisher, error) {
	if inner == nil {
		return nil, errors.New("inner publisher required")
	}
	if wal == nil {
		return nil, errors.New("WAL required")
	}
	return &WALPublisher{inner: inner, wal: wal}, nil
}

// PublishDomainEvent implements EventPublisher with WAL durability.
func (p *WALPublisher) PublishDomainEvent(ctx context.Context, event *models.DomainEvent) error {
	if event == nil {
		return nil
	}

	entryID, err := p.wal.Write(ctx, event)
	if err != nil {
		logging.Error().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Err(err).
			Msg("WAL write failed, publishing directly")
		// Better to attempt the publish than lose the event.
		return p.inner.PublishDomainEvent(ctx, event)
	}

	if err := p.inner.PublishDomainEvent(ctx, event); err != nil {
		logging.Warn().
			Str("event_id", event.EventID).
			Str("wal_entry_id", entryID).
			Err(err).
			Msg("publish failed, entry queued for retry")
		// Entry is safe in the WAL; the retry loop takes it from here.
		return nil
	}

	if err := p.wal.Confirm(ctx, entryID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Warn().
			Str("wal_entry_id", entryID).
			Err(err).
			Msg("WAL confirm failed")
	}

	return nil
}

// WAL returns the underlying WAL for the retry loop.
func (p *WALPublisher) WAL() *WAL {
	return p.wal
}
