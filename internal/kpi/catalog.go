// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package kpi implements the fixed calculator catalog over the materialized
// views. The catalog is closed: calculators are compiled in, not registered
// at runtime, so every deployment computes the same metrics.
package kpi

import (
	"context"

	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/models"
)

// Calculator computes one scalar KPI from the materialized views.
type Calculator struct {
	// Name is the stable KPI identifier used for versioning and lookup.
	Name string

	// Category groups calculators by source view family.
	Category models.KPICategory

	// Unit is the value's unit of measure ("ratio", "percent", "mt", "EUR").
	Unit string

	// Method names how the scalar is derived ("sum", "percentage", ...);
	// recorded as calculationMethod in the snapshot metadata.
	Method string

	// DataSource is the materialized view family the backing query reads.
	DataSource models.ViewFamily

	Description string

	// Compute runs the backing aggregate query.
	Compute func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error)
}

// Catalog returns the full calculator catalog in stable order.
func Catalog() []Calculator {
	return []Calculator{
		{
			Name:        "hedging_ratio",
			Category:    models.KPICategoryContractPosition,
			Unit:        "ratio",
			Method:      "weighted_average",
			DataSource:  models.ViewContractPositions,
			Description: "Hedged share of the short position, weighted by position size",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.HedgingRatioKPI(ctx, kctx)
			},
		},
		{
			Name:        "short_position",
			Category:    models.KPICategoryContractPosition,
			Unit:        "mt",
			Method:      "sum",
			DataSource:  models.ViewContractPositions,
			Description: "Total purchase-side contract quantity",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.ShortPositionKPI(ctx, kctx)
			},
		},
		{
			Name:        "long_position",
			Category:    models.KPICategoryContractPosition,
			Unit:        "mt",
			Method:      "sum",
			DataSource:  models.ViewContractPositions,
			Description: "Total sales-side contract quantity",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.LongPositionKPI(ctx, kctx)
			},
		},
		{
			Name:        "net_exposure",
			Category:    models.KPICategoryContractPosition,
			Unit:        "mt",
			Method:      "difference",
			DataSource:  models.ViewContractPositions,
			Description: "Long minus short position across settled contracts",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.NetExposureKPI(ctx, kctx)
			},
		},
		{
			Name:        "quality_pass_rate",
			Category:    models.KPICategoryQuality,
			Unit:        "percent",
			Method:      "percentage",
			DataSource:  models.ViewQualityStats,
			Description: "Share of passed quality inspections",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.PassRateKPI(ctx, kctx)
			},
		},
		{
			Name:        "quality_failure_rate",
			Category:    models.KPICategoryQuality,
			Unit:        "percent",
			Method:      "percentage",
			DataSource:  models.ViewQualityStats,
			Description: "Share of failed quality inspections",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.FailureRateKPI(ctx, kctx)
			},
		},
		{
			Name:        "avg_moisture",
			Category:    models.KPICategoryQuality,
			Unit:        "percent",
			Method:      "average",
			DataSource:  models.ViewQualityStats,
			Description: "Mean moisture reading across inspections",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.AvgMoistureKPI(ctx, kctx)
			},
		},
		{
			Name:        "avg_protein",
			Category:    models.KPICategoryQuality,
			Unit:        "percent",
			Method:      "average",
			DataSource:  models.ViewQualityStats,
			Description: "Mean protein reading across inspections",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.AvgProteinKPI(ctx, kctx)
			},
		},
		{
			Name:        "total_weight",
			Category:    models.KPICategoryWeighing,
			Unit:        "mt",
			Method:      "sum",
			DataSource:  models.ViewWeighingVolumes,
			Description: "Total net weight across completed weighings",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.TotalWeightKPI(ctx, kctx)
			},
		},
		{
			Name:        "avg_ticket_weight",
			Category:    models.KPICategoryWeighing,
			Unit:        "mt",
			Method:      "average",
			DataSource:  models.ViewWeighingVolumes,
			Description: "Mean net weight per weighing ticket",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.AvgWeightKPI(ctx, kctx)
			},
		},
		{
			Name:        "tolerance_compliance",
			Category:    models.KPICategoryWeighing,
			Unit:        "percent",
			Method:      "percentage",
			DataSource:  models.ViewWeighingVolumes,
			Description: "Share of weighings within tolerance",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.ToleranceComplianceKPI(ctx, kctx)
			},
		},
		{
			Name:        "total_revenue",
			Category:    models.KPICategoryFinance,
			Unit:        "EUR",
			Method:      "sum",
			DataSource:  models.ViewFinanceKPIs,
			Description: "Total invoiced revenue",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.TotalRevenueKPI(ctx, kctx)
			},
		},
		{
			Name:        "gross_margin",
			Category:    models.KPICategoryFinance,
			Unit:        "EUR",
			Method:      "difference",
			DataSource:  models.ViewFinanceKPIs,
			Description: "Revenue minus cost across invoices",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.GrossMarginKPI(ctx, kctx)
			},
		},
		{
			Name:        "outstanding_invoices",
			Category:    models.KPICategoryFinance,
			Unit:        "EUR",
			Method:      "sum",
			DataSource:  models.ViewFinanceKPIs,
			Description: "Total amount of outstanding invoices",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.OutstandingInvoicesKPI(ctx, kctx)
			},
		},
		{
			Name:        "overdue_invoices",
			Category:    models.KPICategoryFinance,
			Unit:        "EUR",
			Method:      "sum",
			DataSource:  models.ViewFinanceKPIs,
			Description: "Total amount of overdue invoices",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.OverdueInvoicesKPI(ctx, kctx)
			},
		},
		{
			Name:        "regulatory_eligibility_rate",
			Category:    models.KPICategoryRegulatory,
			Unit:        "percent",
			Method:      "percentage",
			DataSource:  models.ViewRegulatoryStats,
			Description: "Share of eligible regulatory declarations",
			Compute: func(ctx context.Context, db *database.DB, kctx models.KPIContext) (float64, error) {
				return db.EligibilityRateKPI(ctx, kctx)
			},
		},
	}
}

// Lookup finds a calculator by name.
func Lookup(name string) (Calculator, bool) {
	for _, c := range Catalog() {
		if c.Name == name {
			return c, true
		}
	}
	return Calculator{}, false
}
