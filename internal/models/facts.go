// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Fact rows are the normalized, append-only projection of inbound business
// events, one row per distinct (tenant_id, event_id). They are written only by
// the event consumer and never updated in place.

// ContractFact is a row in the contract_facts table.
type ContractFact struct {
	TenantID       string          `json:"tenantId"`
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	OccurredAt     time.Time       `json:"occurredAt"`
	ContractID     string          `json:"contractId"`
	ContractType   string          `json:"contractType"`
	Commodity      string          `json:"commodity"`
	Quantity       float64         `json:"quantity"`
	HedgedQuantity float64         `json:"hedgedQuantity"`
	Price          float64         `json:"price"`
	Currency       string          `json:"currency"`
	CounterpartyID string          `json:"counterpartyId"`
	Status         string          `json:"status"`
	ContractDate   time.Time       `json:"contractDate"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ProductionFact is a row in the production_facts table.
type ProductionFact struct {
	TenantID       string          `json:"tenantId"`
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	OccurredAt     time.Time       `json:"occurredAt"`
	BatchID        string          `json:"batchId"`
	SiteID         string          `json:"siteId"`
	Commodity      string          `json:"commodity"`
	Quantity       float64         `json:"quantity"`
	Unit           string          `json:"unit"`
	ProductionDate time.Time       `json:"productionDate"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// WeighingFact is a row in the weighing_facts table.
type WeighingFact struct {
	TenantID        string          `json:"tenantId"`
	EventID         string          `json:"eventId"`
	EventType       string          `json:"eventType"`
	OccurredAt      time.Time       `json:"occurredAt"`
	TicketID        string          `json:"ticketId"`
	Commodity       string          `json:"commodity"`
	CustomerID      string          `json:"customerId"`
	SiteID          string          `json:"siteId"`
	GrossWeight     float64         `json:"grossWeight"`
	TareWeight      float64         `json:"tareWeight"`
	NetWeight       *float64        `json:"netWeight,omitempty"`
	WithinTolerance bool            `json:"withinTolerance"`
	Status          string          `json:"status"`
	WeighingDate    time.Time       `json:"weighingDate"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// QualityFact is a row in the quality_facts table.
type QualityFact struct {
	TenantID       string          `json:"tenantId"`
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	OccurredAt     time.Time       `json:"occurredAt"`
	SampleID       string          `json:"sampleId"`
	Commodity      string          `json:"commodity"`
	TestType       string          `json:"testType"`
	TestValue      float64         `json:"testValue"`
	Passed         bool            `json:"passed"`
	InspectionDate time.Time       `json:"inspectionDate"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// RegulatoryFact is a row in the regulatory_facts table.
type RegulatoryFact struct {
	TenantID        string          `json:"tenantId"`
	EventID         string          `json:"eventId"`
	EventType       string          `json:"eventType"`
	OccurredAt      time.Time       `json:"occurredAt"`
	DeclarationID   string          `json:"declarationId"`
	Commodity       string          `json:"commodity"`
	LabelType       string          `json:"labelType"`
	Eligible        bool            `json:"eligible"`
	DeclarationDate time.Time       `json:"declarationDate"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// FinanceFact is a row in the finance_facts table.
type FinanceFact struct {
	TenantID    string          `json:"tenantId"`
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	OccurredAt  time.Time       `json:"occurredAt"`
	InvoiceID   string          `json:"invoiceId"`
	CustomerID  string          `json:"customerId"`
	Commodity   string          `json:"commodity"`
	Revenue     float64         `json:"revenue"`
	Cost        float64         `json:"cost"`
	Status      string          `json:"status"`
	InvoiceDate time.Time       `json:"invoiceDate"`
	DueDate     time.Time       `json:"dueDate"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
