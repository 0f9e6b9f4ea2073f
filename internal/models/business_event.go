// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// BusinessEvent is the inbound event envelope consumed from the message broker.
// Events are transient: only the fact row derived from an event is persisted.
//
// EventType is dot-namespaced ("contracts.created", "weighing.ticket.completed");
// the segment before the first dot selects the routing domain.
type BusinessEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	OccurredAt    time.Time       `json:"occurredAt"`
	TenantID      string          `json:"tenantId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventDomain identifies the fact domain an inbound event belongs to.
// It replaces raw string-prefix dispatch with a closed enumeration so the
// consumer can match domains exhaustively.
type EventDomain int

const (
	// DomainUnknown marks event types outside the known catalog.
	// Unknown events are acknowledged and dropped, never redelivered.
	DomainUnknown EventDomain = iota
	DomainContracts
	DomainProduction
	DomainWeighing
	DomainQuality
	DomainRegulatory
	DomainFinance
)

// String returns the domain name used in logs and metric labels.
func (d EventDomain) String() string {
	switch d {
	case DomainContracts:
		return "contracts"
	case DomainProduction:
		return "production"
	case DomainWeighing:
		return "weighing"
	case DomainQuality:
		return "quality"
	case DomainRegulatory:
		return "regulatory"
	case DomainFinance:
		return "finance"
	default:
		return "unknown"
	}
}

// ParseEventDomain maps a dot-namespaced event type to its routing domain.
// Both "finance.*" and "sales.*" route to the finance domain. The second
// return value is false for event types outside the catalog.
func ParseEventDomain(eventType string) (EventDomain, bool) {
	prefix := eventType
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		prefix = eventType[:i]
	}

	switch prefix {
	case "contracts":
		return DomainContracts, true
	case "production":
		return DomainProduction, true
	case "weighing":
		return DomainWeighing, true
	case "quality":
		return DomainQuality, true
	case "regulatory":
		return DomainRegulatory, true
	case "finance", "sales":
		return DomainFinance, true
	default:
		return DomainUnknown, false
	}
}

// ContractPayload is the payload shape for contracts.* events.
type ContractPayload struct {
	ContractID     string    `json:"contractId"`
	ContractType   string    `json:"contractType"` // Purchase or Sales
	Commodity      string    `json:"commodity"`
	Quantity       float64   `json:"quantity"`
	HedgedQuantity float64   `json:"hedgedQuantity,omitempty"`
	Price          float64   `json:"price,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	CounterpartyID string    `json:"counterpartyId,omitempty"`
	Status         string    `json:"status"`
	ContractDate   time.Time `json:"contractDate"`
}

// ProductionPayload is the payload shape for production.* events.
type ProductionPayload struct {
	BatchID        string    `json:"batchId"`
	SiteID         string    `json:"siteId"`
	Commodity      string    `json:"commodity"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit,omitempty"`
	ProductionDate time.Time `json:"productionDate"`
}

// WeighingPayload is the payload shape for weighing.* events.
// NetWeight is nil until the ticket has both gross and tare weights recorded.
type WeighingPayload struct {
	TicketID        string    `json:"ticketId"`
	Commodity       string    `json:"commodity"`
	CustomerID      string    `json:"customerId,omitempty"`
	SiteID          string    `json:"siteId,omitempty"`
	GrossWeight     float64   `json:"grossWeight,omitempty"`
	TareWeight      float64   `json:"tareWeight,omitempty"`
	NetWeight       *float64  `json:"netWeight,omitempty"`
	WithinTolerance bool      `json:"withinTolerance"`
	Status          string    `json:"status"`
	WeighingDate    time.Time `json:"weighingDate"`
}

// QualityPayload is the payload shape for quality.* events.
type QualityPayload struct {
	SampleID       string    `json:"sampleId"`
	Commodity      string    `json:"commodity"`
	TestType       string    `json:"testType"` // moisture, protein, ...
	TestValue      float64   `json:"testValue"`
	Passed         bool      `json:"passed"`
	InspectionDate time.Time `json:"inspectionDate"`
}

// RegulatoryPayload is the payload shape for regulatory.* events.
type RegulatoryPayload struct {
	DeclarationID   string    `json:"declarationId"`
	Commodity       string    `json:"commodity"`
	LabelType       string    `json:"labelType"`
	Eligible        bool      `json:"eligible"`
	DeclarationDate time.Time `json:"declarationDate"`
}

// FinancePayload is the payload shape for finance.* and sales.* events.
type FinancePayload struct {
	InvoiceID   string    `json:"invoiceId"`
	CustomerID  string    `json:"customerId,omitempty"`
	Commodity   string    `json:"commodity"`
	Revenue     float64   `json:"revenue,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
	Status      string    `json:"status"` // outstanding, overdue, paid
	InvoiceDate time.Time `json:"invoiceDate"`
	DueDate     time.Time `json:"dueDate,omitempty"`
}
