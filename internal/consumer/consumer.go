// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package consumer ingests inbound business events from JetStream and
// appends them as immutable fact rows. Processing is idempotent on
// (tenant_id, event_id): redelivered events acknowledge without a second
// insert, so at-least-once delivery yields exactly-once facts.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/messaging"
	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// errDropEvent marks events that must be acknowledged without a fact row:
// malformed envelopes, missing identifiers, unknown domains. Redelivery
// cannot fix these, so nacking would only poison the stream.
var errDropEvent = errors.New("event dropped")

// Consumer routes business events to the fact store.
type Consumer struct {
	db    *database.DB
	sub   *messaging.Subscriber
	topic string
}

// New creates a consumer reading the given topic.
func New(db *database.DB, sub *messaging.Subscriber, topic string) *Consumer {
	return &Consumer{db: db, sub: sub, topic: topic}
}

// Serve implements suture.Service: it processes events until the context is
// canceled.
func (c *Consumer) Serve(ctx context.Context) error {
	logging.Info().Str("topic", c.topic).Msg("event consumer started")
	return c.sub.NewMessageHandler(c.topic).Handle(c.handleMessage).Run(ctx)
}

// String names the service in supervisor logs.
func (c *Consumer) String() string {
	return "event-consumer"
}

// handleMessage decodes and persists one inbound event. A returned error
// nacks the message back to JetStream; drop conditions return nil so the
// message acknowledges.
func (c *Consumer) handleMessage(ctx context.Context, msg *message.Message) error {
	var event models.BusinessEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		metrics.EventsDropped.Inc()
		logging.Warn().
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("dropping malformed event payload")
		return nil
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}
	if event.TenantID != "" {
		ctx = logging.ContextWithTenantID(ctx, event.TenantID)
	}

	err := c.processEvent(ctx, &event)
	if errors.Is(err, errDropEvent) {
		metrics.EventsDropped.Inc()
		return nil
	}
	return err
}

func (c *Consumer) processEvent(ctx context.Context, event *models.BusinessEvent) error {
	if event.EventID == "" || event.TenantID == "" {
		logging.Ctx(ctx).Warn().
			Str("event_type", event.EventType).
			Msg("dropping event without tenant or event ID")
		return errDropEvent
	}

	domain, known := models.ParseEventDomain(event.EventType)
	if !known {
		logging.Ctx(ctx).Warn().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Msg("dropping event with unknown domain")
		return errDropEvent
	}

	metrics.EventsReceived.WithLabelValues(domain.String()).Inc()

	inserted, err := c.insertFact(ctx, domain, event)
	if errors.Is(err, errDropEvent) {
		metrics.EventsFailed.WithLabelValues(domain.String(), "decode").Inc()
		logging.Ctx(ctx).Warn().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Err(err).
			Msg("dropping event with undecodable payload")
		return errDropEvent
	}
	if err != nil {
		metrics.EventsFailed.WithLabelValues(domain.String(), "insert").Inc()
		logging.Ctx(ctx).Error().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Err(err).
			Msg("fact insert failed")
		return fmt.Errorf("insert %s fact: %w", domain, err)
	}

	if !inserted {
		metrics.EventsDuplicate.WithLabelValues(domain.String()).Inc()
		logging.Ctx(ctx).Debug().
			Str("event_id", event.EventID).
			Msg("duplicate event acknowledged")
		return nil
	}

	metrics.EventsProcessed.WithLabelValues(domain.String()).Inc()
	logging.Ctx(ctx).Debug().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("domain", domain.String()).
		Msg("event persisted")
	return nil
}

// insertFact decodes the domain payload and appends the fact row. The switch
// is exhaustive over the known domains; DomainUnknown never reaches here.
func (c *Consumer) insertFact(ctx context.Context, domain models.EventDomain, event *models.BusinessEvent) (bool, error) {
	switch domain {
	case models.DomainContracts:
		return c.insertContract(ctx, event)
	case models.DomainProduction:
		return c.insertProduction(ctx, event)
	case models.DomainWeighing:
		return c.insertWeighing(ctx, event)
	case models.DomainQuality:
		return c.insertQuality(ctx, event)
	case models.DomainRegulatory:
		return c.insertRegulatory(ctx, event)
	case models.DomainFinance:
		return c.insertFinance(ctx, event)
	default:
		return false, fmt.Errorf("unroutable domain %d", domain)
	}
}

// decodePayload unmarshals the domain payload. Decode failures are permanent,
// so they carry errDropEvent rather than triggering redelivery.
func decodePayload[T any](event *models.BusinessEvent) (*T, error) {
	var payload T
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", errDropEvent, event.EventType, err)
	}
	return &payload, nil
}

// occurredAt defaults missing event timestamps to ingestion time.
func occurredAt(event *models.BusinessEvent) time.Time {
	if event.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return event.OccurredAt.UTC()
}

func (c *Consumer) insertContract(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.ContractPayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertContractFact(ctx, &models.ContractFact{
		TenantID:       event.TenantID,
		EventID:        event.EventID,
		EventType:      event.EventType,
		OccurredAt:     occurredAt(event),
		ContractID:     p.ContractID,
		ContractType:   p.ContractType,
		Commodity:      p.Commodity,
		Quantity:       p.Quantity,
		HedgedQuantity: p.HedgedQuantity,
		Price:          p.Price,
		Currency:       p.Currency,
		CounterpartyID: p.CounterpartyID,
		Status:         p.Status,
		ContractDate:   p.ContractDate,
		Metadata:       event.Payload,
	})
}

func (c *Consumer) insertProduction(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.ProductionPayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertProductionFact(ctx, &models.ProductionFact{
		TenantID:       event.TenantID,
		EventID:        event.EventID,
		EventType:      event.EventType,
		OccurredAt:     occurredAt(event),
		BatchID:        p.BatchID,
		SiteID:         p.SiteID,
		Commodity:      p.Commodity,
		Quantity:       p.Quantity,
		Unit:           p.Unit,
		ProductionDate: p.ProductionDate,
		Metadata:       event.Payload,
	})
}

func (c *Consumer) insertWeighing(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.WeighingPayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertWeighingFact(ctx, &models.WeighingFact{
		TenantID:        event.TenantID,
		EventID:         event.EventID,
		EventType:       event.EventType,
		OccurredAt:      occurredAt(event),
		TicketID:        p.TicketID,
		Commodity:       p.Commodity,
		CustomerID:      p.CustomerID,
		SiteID:          p.SiteID,
		GrossWeight:     p.GrossWeight,
		TareWeight:      p.TareWeight,
		NetWeight:       p.NetWeight,
		WithinTolerance: p.WithinTolerance,
		Status:          p.Status,
		WeighingDate:    p.WeighingDate,
		Metadata:        event.Payload,
	})
}

func (c *Consumer) insertQuality(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.QualityPayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertQualityFact(ctx, &models.QualityFact{
		TenantID:       event.TenantID,
		EventID:        event.EventID,
		EventType:      event.EventType,
		OccurredAt:     occurredAt(event),
		SampleID:       p.SampleID,
		Commodity:      p.Commodity,
		TestType:       p.TestType,
		TestValue:      p.TestValue,
		Passed:         p.Passed,
		InspectionDate: p.InspectionDate,
		Metadata:       event.Payload,
	})
}

func (c *Consumer) insertRegulatory(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.RegulatoryPayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertRegulatoryFact(ctx, &models.RegulatoryFact{
		TenantID:        event.TenantID,
		EventID:         event.EventID,
		EventType:       event.EventType,
		OccurredAt:      occurredAt(event),
		DeclarationID:   p.DeclarationID,
		Commodity:       p.Commodity,
		LabelType:       p.LabelType,
		Eligible:        p.Eligible,
		DeclarationDate: p.DeclarationDate,
		Metadata:        event.Payload,
	})
}

func (c *Consumer) insertFinance(ctx context.Context, event *models.BusinessEvent) (bool, error) {
	p, err := decodePayload[models.FinancePayload](event)
	if err != nil {
		return false, err
	}
	return c.db.InsertFinanceFact(ctx, &models.FinanceFact{
		TenantID:    event.TenantID,
		EventID:     event.EventID,
		EventType:   event.EventType,
		OccurredAt:  occurredAt(event),
		InvoiceID:   p.InvoiceID,
		CustomerID:  p.CustomerID,
		Commodity:   p.Commodity,
		Revenue:     p.Revenue,
		Cost:        p.Cost,
		Status:      p.Status,
		InvoiceDate: p.InvoiceDate,
		DueDate:     p.DueDate,
		Metadata:    event.Payload,
	})
}
