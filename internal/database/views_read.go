// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package database

import (
	"context"
	"fmt"

	"github.com/tradesight/granary/internal/models"
)

// Read accessors over the materialized views. These are the only way
// downstream consumers touch view rows; the tables themselves are written
// exclusively by RefreshView.

// ContractPositions returns the contract position rows for a tenant.
func (db *DB) ContractPositions(ctx context.Context, tenantID string) ([]models.ContractPositionRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tenant_id, commodity, period, short_position, long_position,
	       net_position, hedging_ratio, last_updated
	FROM contract_positions
	WHERE tenant_id = ?
	ORDER BY commodity, period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract positions: %w", err)
	}
	defer rows.Close()

	var out []models.ContractPositionRow
	for rows.Next() {
		var r models.ContractPositionRow
		if err := rows.Scan(&r.TenantID, &r.Commodity, &r.Period, &r.ShortPosition,
			&r.LongPosition, &r.NetPosition, &r.HedgingRatio, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan contract position row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QualityStats returns the quality aggregation rows for a tenant.
func (db *DB) QualityStats(ctx context.Context, tenantID string) ([]models.QualityStatsRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tenant_id, commodity, period, total_inspections, passed_count, failed_count,
	       pass_rate, failure_rate, avg_moisture, avg_protein, last_updated
	FROM quality_stats
	WHERE tenant_id = ?
	ORDER BY commodity, period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality stats: %w", err)
	}
	defer rows.Close()

	var out []models.QualityStatsRow
	for rows.Next() {
		var r models.QualityStatsRow
		if err := rows.Scan(&r.TenantID, &r.Commodity, &r.Period, &r.TotalInspections,
			&r.PassedCount, &r.FailedCount, &r.PassRate, &r.FailureRate,
			&r.AvgMoisture, &r.AvgProtein, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan quality stats row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RegulatoryStats returns the regulatory aggregation rows for a tenant.
func (db *DB) RegulatoryStats(ctx context.Context, tenantID string) ([]models.RegulatoryStatsRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tenant_id, commodity, label_type, period, total_declarations,
	       eligible_count, ineligible_count, eligibility_rate, last_updated
	FROM regulatory_stats
	WHERE tenant_id = ?
	ORDER BY commodity, label_type, period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query regulatory stats: %w", err)
	}
	defer rows.Close()

	var out []models.RegulatoryStatsRow
	for rows.Next() {
		var r models.RegulatoryStatsRow
		if err := rows.Scan(&r.TenantID, &r.Commodity, &r.LabelType, &r.Period,
			&r.TotalDeclarations, &r.EligibleCount, &r.IneligibleCount,
			&r.EligibilityRate, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan regulatory stats row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FinanceKPIs returns the finance aggregation rows for a tenant.
func (db *DB) FinanceKPIs(ctx context.Context, tenantID string) ([]models.FinanceKPIRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tenant_id, commodity, customer_id, period, total_revenue, total_cost,
	       gross_margin, margin_percentage, outstanding_amount, overdue_amount, last_updated
	FROM finance_kpis
	WHERE tenant_id = ?
	ORDER BY commodity, customer_id, period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query finance kpis: %w", err)
	}
	defer rows.Close()

	var out []models.FinanceKPIRow
	for rows.Next() {
		var r models.FinanceKPIRow
		if err := rows.Scan(&r.TenantID, &r.Commodity, &r.CustomerID, &r.Period,
			&r.TotalRevenue, &r.TotalCost, &r.GrossMargin, &r.MarginPercentage,
			&r.OutstandingAmount, &r.OverdueAmount, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan finance kpi row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeighingVolumes returns the weighing aggregation rows for a tenant.
func (db *DB) WeighingVolumes(ctx context.Context, tenantID string) ([]models.WeighingVolumeRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
	SELECT tenant_id, commodity, customer_id, site_id, period, total_weight,
	       total_tickets, avg_weight, within_tolerance_count, outside_tolerance_count, last_updated
	FROM weighing_volumes
	WHERE tenant_id = ?
	ORDER BY commodity, customer_id, site_id, period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weighing volumes: %w", err)
	}
	defer rows.Close()

	var out []models.WeighingVolumeRow
	for rows.Next() {
		var r models.WeighingVolumeRow
		if err := rows.Scan(&r.TenantID, &r.Commodity, &r.CustomerID, &r.SiteID, &r.Period,
			&r.TotalWeight, &r.TotalTickets, &r.AvgWeight,
			&r.WithinToleranceCount, &r.OutsideToleranceCount, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan weighing volume row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
