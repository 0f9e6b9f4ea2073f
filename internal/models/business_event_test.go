// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestParseEventDomain(t *testing.T) {
	tests := []struct {
		eventType string
		want      EventDomain
		known     bool
	}{
		{"contracts.created", DomainContracts, true},
		{"contracts.status.changed", DomainContracts, true},
		{"production.batch.completed", DomainProduction, true},
		{"weighing.ticket.completed", DomainWeighing, true},
		{"quality.sample.analyzed", DomainQuality, true},
		{"regulatory.declaration.filed", DomainRegulatory, true},
		{"finance.invoice.created", DomainFinance, true},
		// sales events carry invoice data and route to the finance domain
		{"sales.order.invoiced", DomainFinance, true},
		{"contracts", DomainContracts, true}, // bare prefix, no dot
		{"inventory.adjusted", DomainUnknown, false},
		{"", DomainUnknown, false},
		{"CONTRACTS.created", DomainUnknown, false}, // prefixes are case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got, known := ParseEventDomain(tt.eventType)
			if got != tt.want || known != tt.known {
				t.Errorf("ParseEventDomain(%q) = (%v, %v), want (%v, %v)",
					tt.eventType, got, known, tt.want, tt.known)
			}
		})
	}
}

func TestEventDomainStringCoversAllDomains(t *testing.T) {
	domains := []EventDomain{
		DomainContracts, DomainProduction, DomainWeighing,
		DomainQuality, DomainRegulatory, DomainFinance,
	}
	seen := make(map[string]bool)
	for _, d := range domains {
		s := d.String()
		if s == "unknown" {
			t.Errorf("domain %d stringifies as unknown", d)
		}
		if seen[s] {
			t.Errorf("duplicate domain name %q", s)
		}
		seen[s] = true
	}
	if DomainUnknown.String() != "unknown" {
		t.Errorf("DomainUnknown.String() = %q", DomainUnknown.String())
	}
}

func TestBusinessEventDecode(t *testing.T) {
	raw := []byte(`{
		"eventId": "evt-1",
		"eventType": "weighing.ticket.completed",
		"occurredAt": "2026-03-05T08:30:00Z",
		"tenantId": "tenant-a",
		"correlationId": "corr-7",
		"payload": {"ticketId": "tkt-9", "commodity": "wheat", "netWeight": 24.5, "withinTolerance": true, "status": "Completed", "weighingDate": "2026-03-05T08:29:00Z"}
	}`)

	var ev BusinessEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if ev.EventID != "evt-1" || ev.TenantID != "tenant-a" || ev.CorrelationID != "corr-7" {
		t.Fatalf("envelope fields mismatched: %+v", ev)
	}

	var p WeighingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.TicketID != "tkt-9" || p.NetWeight == nil || *p.NetWeight != 24.5 || !p.WithinTolerance {
		t.Fatalf("payload fields mismatched: %+v", p)
	}
}

func TestNewDomainEvent(t *testing.T) {
	before := time.Now().UTC()
	ev, err := NewDomainEvent(EventTypeKPICalculated, "tenant-a", KPICalculatedPayload{
		KPIID:   "kpi-1",
		KPIName: "hedging_ratio",
		Value:   0.8,
	})
	if err != nil {
		t.Fatalf("NewDomainEvent: %v", err)
	}
	if ev.EventID == "" {
		t.Error("event ID not assigned")
	}
	if ev.EventVersion != EventVersion {
		t.Errorf("version = %d, want %d", ev.EventVersion, EventVersion)
	}
	if ev.OccurredAt.Before(before) || ev.OccurredAt.Location() != time.UTC {
		t.Errorf("occurredAt = %v, want a UTC timestamp at or after %v", ev.OccurredAt, before)
	}

	var p KPICalculatedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if p.KPIName != "hedging_ratio" {
		t.Errorf("payload name = %q", p.KPIName)
	}
}

func TestParseForecastModelFallsBackToRuleBased(t *testing.T) {
	tests := []struct {
		in   string
		want ForecastModel
	}{
		{"arima", ModelARIMA},
		{"exponential_smoothing", ModelExponentialSmoothing},
		{"linear_regression", ModelLinearRegression},
		{"rule_based", ModelRuleBased},
		{"external", ModelExternal},
		{"prophet", ModelRuleBased},
		{"", ModelRuleBased},
	}
	for _, tt := range tests {
		if got := ParseForecastModel(tt.in); got != tt.want {
			t.Errorf("ParseForecastModel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHorizonUnitValid(t *testing.T) {
	for _, u := range []HorizonUnit{HorizonDays, HorizonWeeks, HorizonMonths, HorizonQuarters, HorizonYears} {
		if !u.Valid() {
			t.Errorf("%q should be valid", u)
		}
	}
	for _, u := range []HorizonUnit{"", "fortnights", "Days"} {
		if u.Valid() {
			t.Errorf("%q should be invalid", u)
		}
	}
}
