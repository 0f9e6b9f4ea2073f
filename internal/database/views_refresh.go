// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// ContractSettledStatuses is the whitelist of contract statuses that count
// toward positions. Draft and cancelled contracts carry no exposure.
var ContractSettledStatuses = []string{"Confirmed", "PartiallyDelivered", "Delivered", "Settled"}

// RefreshView fully recomputes one materialized view family for a tenant:
// delete every tenant row, then bulk-insert a fresh aggregation over the
// corresponding fact table. Both statements run in a single transaction so
// concurrent readers never observe a transiently empty or partial view.
// Returns the number of rows the refresh produced.
func (db *DB) RefreshView(ctx context.Context, family models.ViewFamily, tenantID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	insertSQL, args, err := refreshStatement(family, tenantID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin refresh transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ?", family), tenantID); err != nil {
		metrics.ObserveQuery("refresh", string(family), start, err)
		return 0, fmt.Errorf("failed to clear %s: %w", family, err)
	}

	res, err := tx.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		metrics.ObserveQuery("refresh", string(family), start, err)
		return 0, fmt.Errorf("failed to rebuild %s: %w", family, err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		count = 0
	}

	if err := tx.Commit(); err != nil {
		metrics.ObserveQuery("refresh", string(family), start, err)
		return 0, fmt.Errorf("failed to commit %s refresh: %w", family, err)
	}

	metrics.ObserveQuery("refresh", string(family), start, nil)
	return int(count), nil
}

// refreshStatement returns the INSERT ... SELECT aggregation for a family.
// All ratio computations guard division by zero by substituting 0; ratios are
// rounded to 4 decimals and quantities/amounts to 2, matching the schema.
func refreshStatement(family models.ViewFamily, tenantID string, now time.Time) (string, []any, error) {
	switch family {
	case models.ViewContractPositions:
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ContractSettledStatuses)), ", ")
		query := fmt.Sprintf(`
		INSERT INTO contract_positions
		SELECT
			tenant_id,
			commodity,
			period,
			short_position,
			long_position,
			ROUND(long_position - short_position, 2) AS net_position,
			CASE WHEN short_position = 0 THEN 0
			     ELSE ROUND(hedged_quantity / short_position, 4) END AS hedging_ratio,
			? AS last_updated
		FROM (
			SELECT
				tenant_id,
				commodity,
				strftime(contract_date, '%%Y-%%m') AS period,
				ROUND(SUM(CASE WHEN contract_type = 'Purchase' THEN quantity ELSE 0 END), 2) AS short_position,
				ROUND(SUM(CASE WHEN contract_type = 'Sales' THEN quantity ELSE 0 END), 2) AS long_position,
				SUM(CASE WHEN contract_type = 'Purchase' THEN hedged_quantity ELSE 0 END) AS hedged_quantity
			FROM contract_facts
			WHERE tenant_id = ? AND status IN (%s)
			GROUP BY tenant_id, commodity, period
		)
		WHERE NOT (short_position = 0 AND long_position = 0)`, placeholders)

		args := []any{now, tenantID}
		for _, s := range ContractSettledStatuses {
			args = append(args, s)
		}
		return query, args, nil

	case models.ViewQualityStats:
		query := `
		INSERT INTO quality_stats
		SELECT
			tenant_id,
			commodity,
			strftime(inspection_date, '%Y-%m') AS period,
			COUNT(*) AS total_inspections,
			COUNT(*) FILTER (WHERE passed) AS passed_count,
			COUNT(*) FILTER (WHERE NOT passed) AS failed_count,
			ROUND(COUNT(*) FILTER (WHERE passed) * 1.0 / COUNT(*), 4) AS pass_rate,
			ROUND(COUNT(*) FILTER (WHERE NOT passed) * 1.0 / COUNT(*), 4) AS failure_rate,
			ROUND(AVG(test_value) FILTER (WHERE test_type = 'moisture'), 2) AS avg_moisture,
			ROUND(AVG(test_value) FILTER (WHERE test_type = 'protein'), 2) AS avg_protein,
			? AS last_updated
		FROM quality_facts
		WHERE tenant_id = ?
		GROUP BY tenant_id, commodity, period`
		return query, []any{now, tenantID}, nil

	case models.ViewRegulatoryStats:
		query := `
		INSERT INTO regulatory_stats
		SELECT
			tenant_id,
			commodity,
			label_type,
			strftime(declaration_date, '%Y-%m') AS period,
			COUNT(*) AS total_declarations,
			COUNT(*) FILTER (WHERE eligible) AS eligible_count,
			COUNT(*) FILTER (WHERE NOT eligible) AS ineligible_count,
			ROUND(COUNT(*) FILTER (WHERE eligible) * 1.0 / COUNT(*), 4) AS eligibility_rate,
			? AS last_updated
		FROM regulatory_facts
		WHERE tenant_id = ?
		GROUP BY tenant_id, commodity, label_type, period`
		return query, []any{now, tenantID}, nil

	case models.ViewFinanceKPIs:
		query := `
		INSERT INTO finance_kpis
		SELECT
			tenant_id,
			commodity,
			COALESCE(customer_id, '') AS customer_id,
			strftime(invoice_date, '%Y-%m') AS period,
			ROUND(SUM(revenue), 2) AS total_revenue,
			ROUND(SUM(cost), 2) AS total_cost,
			ROUND(SUM(revenue) - SUM(cost), 2) AS gross_margin,
			CASE WHEN SUM(revenue) = 0 THEN 0
			     ELSE ROUND((SUM(revenue) - SUM(cost)) / SUM(revenue), 4) END AS margin_percentage,
			ROUND(SUM(CASE WHEN status = 'outstanding' THEN revenue ELSE 0 END), 2) AS outstanding_amount,
			ROUND(SUM(CASE WHEN status = 'overdue' THEN revenue ELSE 0 END), 2) AS overdue_amount,
			? AS last_updated
		FROM finance_facts
		WHERE tenant_id = ?
		GROUP BY tenant_id, commodity, customer_id, period`
		return query, []any{now, tenantID}, nil

	case models.ViewWeighingVolumes:
		query := `
		INSERT INTO weighing_volumes
		SELECT
			tenant_id,
			commodity,
			COALESCE(customer_id, '') AS customer_id,
			COALESCE(site_id, '') AS site_id,
			strftime(weighing_date, '%Y-%m-%d') AS period,
			ROUND(SUM(net_weight), 2) AS total_weight,
			COUNT(DISTINCT ticket_id) AS total_tickets,
			CASE WHEN COUNT(DISTINCT ticket_id) = 0 THEN 0
			     ELSE ROUND(SUM(net_weight) / COUNT(DISTINCT ticket_id), 2) END AS avg_weight,
			COUNT(*) FILTER (WHERE within_tolerance) AS within_tolerance_count,
			COUNT(*) FILTER (WHERE NOT within_tolerance) AS outside_tolerance_count,
			? AS last_updated
		FROM weighing_facts
		WHERE tenant_id = ? AND status = 'completed' AND net_weight IS NOT NULL
		GROUP BY tenant_id, commodity, customer_id, site_id, period`
		return query, []any{now, tenantID}, nil

	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownViewFamily, family)
	}
}

// ViewStatus returns the current row count and most recent refresh timestamp
// for one view family. Read-only; used for staleness monitoring.
func (db *DB) ViewStatus(ctx context.Context, family models.ViewFamily, tenantID string) (*models.ViewStatus, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	switch family {
	case models.ViewContractPositions, models.ViewQualityStats, models.ViewRegulatoryStats,
		models.ViewFinanceKPIs, models.ViewWeighingVolumes:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownViewFamily, family)
	}

	query := fmt.Sprintf("SELECT COUNT(*), MAX(last_updated) FROM %s WHERE tenant_id = ?", family)

	var count int
	var lastUpdated *time.Time
	if err := db.conn.QueryRowContext(ctx, query, tenantID).Scan(&count, &lastUpdated); err != nil {
		return nil, fmt.Errorf("failed to query %s status: %w", family, err)
	}

	return &models.ViewStatus{
		Family:      family,
		RecordCount: count,
		LastUpdated: lastUpdated,
	}, nil
}
