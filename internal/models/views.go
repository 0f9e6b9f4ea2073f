// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import "time"

// ViewFamily identifies one of the five materialized view families.
type ViewFamily string

const (
	ViewContractPositions ViewFamily = "contract_positions"
	ViewQualityStats      ViewFamily = "quality_stats"
	ViewRegulatoryStats   ViewFamily = "regulatory_stats"
	ViewFinanceKPIs       ViewFamily = "finance_kpis"
	ViewWeighingVolumes   ViewFamily = "weighing_volumes"
)

// ViewFamilies lists all materialized view families in refresh order.
var ViewFamilies = []ViewFamily{
	ViewContractPositions,
	ViewQualityStats,
	ViewRegulatoryStats,
	ViewFinanceKPIs,
	ViewWeighingVolumes,
}

// ContractPositionRow aggregates settled contracts per (tenant, commodity, month).
// Periods are formatted YYYY-MM.
type ContractPositionRow struct {
	TenantID      string    `json:"tenantId"`
	Commodity     string    `json:"commodity"`
	Period        string    `json:"period"`
	ShortPosition float64   `json:"shortPosition"` // total Purchase quantity
	LongPosition  float64   `json:"longPosition"`  // total Sales quantity
	NetPosition   float64   `json:"netPosition"`   // long - short
	HedgingRatio  float64   `json:"hedgingRatio"`  // hedged Purchase qty / short, 0 when short is 0
	LastUpdated   time.Time `json:"lastUpdated"`
}

// QualityStatsRow aggregates quality inspections per (tenant, commodity, month).
// AvgMoisture and AvgProtein are nil when no inspection of that test type exists.
type QualityStatsRow struct {
	TenantID         string    `json:"tenantId"`
	Commodity        string    `json:"commodity"`
	Period           string    `json:"period"`
	TotalInspections int       `json:"totalInspections"`
	PassedCount      int       `json:"passedCount"`
	FailedCount      int       `json:"failedCount"`
	PassRate         float64   `json:"passRate"`
	FailureRate      float64   `json:"failureRate"`
	AvgMoisture      *float64  `json:"avgMoisture,omitempty"`
	AvgProtein       *float64  `json:"avgProtein,omitempty"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// RegulatoryStatsRow aggregates declarations per (tenant, commodity, label, month).
type RegulatoryStatsRow struct {
	TenantID          string    `json:"tenantId"`
	Commodity         string    `json:"commodity"`
	LabelType         string    `json:"labelType"`
	Period            string    `json:"period"`
	TotalDeclarations int       `json:"totalDeclarations"`
	EligibleCount     int       `json:"eligibleCount"`
	IneligibleCount   int       `json:"ineligibleCount"`
	EligibilityRate   float64   `json:"eligibilityRate"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// FinanceKPIRow aggregates invoices per (tenant, commodity, customer, month).
type FinanceKPIRow struct {
	TenantID          string    `json:"tenantId"`
	Commodity         string    `json:"commodity"`
	CustomerID        string    `json:"customerId"`
	Period            string    `json:"period"`
	TotalRevenue      float64   `json:"totalRevenue"`
	TotalCost         float64   `json:"totalCost"`
	GrossMargin       float64   `json:"grossMargin"`      // revenue - cost
	MarginPercentage  float64   `json:"marginPercentage"` // grossMargin / revenue, 0 when revenue is 0
	OutstandingAmount float64   `json:"outstandingAmount"`
	OverdueAmount     float64   `json:"overdueAmount"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// WeighingVolumeRow aggregates completed weighing tickets per
// (tenant, commodity, customer, site, day). Periods are formatted YYYY-MM-DD.
type WeighingVolumeRow struct {
	TenantID              string    `json:"tenantId"`
	Commodity             string    `json:"commodity"`
	CustomerID            string    `json:"customerId"`
	SiteID                string    `json:"siteId"`
	Period                string    `json:"period"`
	TotalWeight           float64   `json:"totalWeight"`
	TotalTickets          int       `json:"totalTickets"`
	AvgWeight             float64   `json:"avgWeight"`
	WithinToleranceCount  int       `json:"withinToleranceCount"`
	OutsideToleranceCount int       `json:"outsideToleranceCount"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// RefreshResult reports the outcome of a single view-family refresh.
type RefreshResult struct {
	Family        ViewFamily    `json:"family"`
	Success       bool          `json:"success"`
	RecordCount   int           `json:"recordCount"`
	ExecutionTime time.Duration `json:"executionTimeMs"`
	Err           error         `json:"-"`
	ErrorMessage  string        `json:"error,omitempty"`
}

// RefreshAllResult reports per-family outcomes of a full refresh plus the
// total wall-clock time of the concurrent fan-out.
type RefreshAllResult struct {
	TenantID      string                       `json:"tenantId"`
	Results       map[ViewFamily]RefreshResult `json:"results"`
	TotalDuration time.Duration                `json:"totalDurationMs"`
}

// Succeeded reports whether every family refreshed without error.
func (r *RefreshAllResult) Succeeded() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// TotalRecords sums the record counts of all successful refreshes.
func (r *RefreshAllResult) TotalRecords() int {
	total := 0
	for _, res := range r.Results {
		total += res.RecordCount
	}
	return total
}

// ViewStatus reports current row count and staleness for one view family.
type ViewStatus struct {
	Family      ViewFamily `json:"family"`
	RecordCount int        `json:"recordCount"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}
