// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import "time"

// KPICategory partitions the fixed calculator catalog.
type KPICategory string

const (
	KPICategoryContractPosition KPICategory = "contract_position"
	KPICategoryQuality          KPICategory = "quality"
	KPICategoryWeighing         KPICategory = "weighing"
	KPICategoryFinance          KPICategory = "finance"
	KPICategoryRegulatory       KPICategory = "regulatory"
)

// KPI is a named, versioned, point-in-time scalar metric snapshot.
// KPIs are immutable once created: a value update produces a new instance
// with version+1, never a mutation in place.
type KPI struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenantId"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Value        any            `json:"value"` // number, string, or bool
	Unit         string         `json:"unit,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	CalculatedAt time.Time      `json:"calculatedAt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Version      int            `json:"version"`
}

// KPIContext scopes a calculation request. Commodity and Period are optional
// filters applied to the materialized-view queries.
type KPIContext struct {
	TenantID  string `json:"tenantId"`
	Commodity string `json:"commodity,omitempty"`
	Period    string `json:"period,omitempty"` // YYYY-MM
}

// KPICalculationResult is the per-calculator outcome. A failed calculator
// still yields a zero-valued KPI with the captured error message; calculators
// never propagate errors past their own boundary.
type KPICalculationResult struct {
	KPI           *KPI          `json:"kpi"`
	Category      KPICategory   `json:"category"`
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"executionTimeMs"`
	ErrorMessage  string        `json:"error,omitempty"`
}

// KPICalculationSummary tallies a best-effort batch run over the catalog.
type KPICalculationSummary struct {
	Total         int           `json:"total"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	ExecutionTime time.Duration `json:"totalExecutionTimeMs"`
}

// KPIBatchResult is the outcome of running every calculator in the catalog.
type KPIBatchResult struct {
	Results []KPICalculationResult `json:"results"`
	Summary KPICalculationSummary  `json:"summary"`
}
