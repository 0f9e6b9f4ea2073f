// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventVersion is the current outbound event envelope version.
const EventVersion = 1

// Outbound event types produced by the analytics pipeline.
const (
	EventTypeKPICalculated           = "analytics.kpi.calculated"
	EventTypeReportGenerated         = "analytics.report.generated"
	EventTypeForecastCreated         = "analytics.forecast.created"
	EventTypeMaterializedViewRefresh = "analytics.view.refreshed"
	EventTypeAggregationCompleted    = "analytics.aggregation.completed"
)

// DomainEvent is the outbound event envelope published by the pipeline.
type DomainEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	EventVersion  int             `json:"eventVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	TenantID      string          `json:"tenantId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewDomainEvent builds an envelope with a fresh event ID and UTC timestamp.
// The payload is serialized immediately so a malformed payload surfaces at
// construction time, not at publish time.
func NewDomainEvent(eventType, tenantID string, payload any) (*DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &DomainEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		EventVersion: EventVersion,
		OccurredAt:   time.Now().UTC(),
		TenantID:     tenantID,
		Payload:      raw,
	}, nil
}

// KPICalculatedPayload is the payload for analytics.kpi.calculated events.
type KPICalculatedPayload struct {
	KPIID        string         `json:"kpiId"`
	KPIName      string         `json:"kpiName"`
	Value        any            `json:"value"`
	Unit         string         `json:"unit,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	CalculatedAt time.Time      `json:"calculatedAt"`
}

// ReportGeneratedPayload is the payload for analytics.report.generated events.
type ReportGeneratedPayload struct {
	ReportID    string    `json:"reportId"`
	ReportType  string    `json:"reportType"`
	Format      string    `json:"format"`
	RecordCount int       `json:"recordCount"`
	GeneratedAt time.Time `json:"generatedAt"`
	URI         string    `json:"uri,omitempty"`
}

// ForecastCreatedPayload is the payload for analytics.forecast.created events.
type ForecastCreatedPayload struct {
	ForecastID    string    `json:"forecastId"`
	MetricName    string    `json:"metricName"`
	Horizon       int       `json:"horizon"`
	HorizonUnit   string    `json:"horizonUnit"`
	Model         string    `json:"model"`
	ForecastCount int       `json:"forecastCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ViewRefreshedPayload is the payload for analytics.view.refreshed events.
type ViewRefreshedPayload struct {
	ViewName        string    `json:"viewName"`
	RefreshType     string    `json:"refreshType"` // always "full"; the engine never does incremental updates
	RecordCount     int       `json:"recordCount"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	RefreshedAt     time.Time `json:"refreshedAt"`
}

// AggregationCompletedPayload is the payload for analytics.aggregation.completed events.
type AggregationCompletedPayload struct {
	AggregationName string    `json:"aggregationName"`
	SourceTables    []string  `json:"sourceTables"`
	RecordCount     int       `json:"recordCount"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	CompletedAt     time.Time `json:"completedAt"`
}
