// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// Scalar aggregate queries backing the KPI calculator catalog. Each issues a
// single query against one materialized view, optionally filtered by commodity
// and period. Empty views yield 0, never NULL or an error.
//
// Rate KPIs (pass rate, tolerance compliance, eligibility rate) are returned
// as percentages (0-100); the hedging ratio and margin percentage stay
// fractional, matching how the trading desk reads them.

// viewScalar runs a single-value aggregate query.
func (db *DB) viewScalar(ctx context.Context, table, query string, args ...any) (float64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var v float64
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&v)
	metrics.ObserveQuery("kpi_scalar", table, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s aggregate: %w", table, err)
	}
	return v, nil
}

// kpiFilter renders the optional commodity/period conditions of a KPI context.
func kpiFilter(kctx models.KPIContext) (string, []any) {
	clause := ""
	args := []any{kctx.TenantID}
	if kctx.Commodity != "" {
		clause += " AND commodity = ?"
		args = append(args, kctx.Commodity)
	}
	if kctx.Period != "" {
		clause += " AND period = ?"
		args = append(args, kctx.Period)
	}
	return clause, args
}

// HedgingRatioKPI returns the short-position-weighted hedging ratio.
func (db *DB) HedgingRatioKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "contract_positions", fmt.Sprintf(`
	SELECT COALESCE(SUM(short_position * hedging_ratio) / NULLIF(SUM(short_position), 0), 0)
	FROM contract_positions WHERE tenant_id = ?%s`, clause), args...)
}

// ShortPositionKPI returns the total short (purchase) position.
func (db *DB) ShortPositionKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "contract_positions", fmt.Sprintf(`
	SELECT COALESCE(SUM(short_position), 0)
	FROM contract_positions WHERE tenant_id = ?%s`, clause), args...)
}

// LongPositionKPI returns the total long (sales) position.
func (db *DB) LongPositionKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "contract_positions", fmt.Sprintf(`
	SELECT COALESCE(SUM(long_position), 0)
	FROM contract_positions WHERE tenant_id = ?%s`, clause), args...)
}

// NetExposureKPI returns the total net position.
func (db *DB) NetExposureKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "contract_positions", fmt.Sprintf(`
	SELECT COALESCE(SUM(net_position), 0)
	FROM contract_positions WHERE tenant_id = ?%s`, clause), args...)
}

// PassRateKPI returns the inspection pass rate as a percentage.
func (db *DB) PassRateKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "quality_stats", fmt.Sprintf(`
	SELECT COALESCE(SUM(passed_count) * 100.0 / NULLIF(SUM(total_inspections), 0), 0)
	FROM quality_stats WHERE tenant_id = ?%s`, clause), args...)
}

// FailureRateKPI returns the inspection failure rate as a percentage.
func (db *DB) FailureRateKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "quality_stats", fmt.Sprintf(`
	SELECT COALESCE(SUM(failed_count) * 100.0 / NULLIF(SUM(total_inspections), 0), 0)
	FROM quality_stats WHERE tenant_id = ?%s`, clause), args...)
}

// AvgMoistureKPI returns the mean recorded moisture across view rows.
func (db *DB) AvgMoistureKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "quality_stats", fmt.Sprintf(`
	SELECT COALESCE(AVG(avg_moisture), 0)
	FROM quality_stats WHERE tenant_id = ?%s`, clause), args...)
}

// AvgProteinKPI returns the mean recorded protein across view rows.
func (db *DB) AvgProteinKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "quality_stats", fmt.Sprintf(`
	SELECT COALESCE(AVG(avg_protein), 0)
	FROM quality_stats WHERE tenant_id = ?%s`, clause), args...)
}

// TotalWeightKPI returns the total weighed volume.
func (db *DB) TotalWeightKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "weighing_volumes", fmt.Sprintf(`
	SELECT COALESCE(SUM(total_weight), 0)
	FROM weighing_volumes WHERE tenant_id = ?%s`, clause), args...)
}

// AvgWeightKPI returns the mean net weight per ticket.
func (db *DB) AvgWeightKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "weighing_volumes", fmt.Sprintf(`
	SELECT COALESCE(SUM(total_weight) / NULLIF(SUM(total_tickets), 0), 0)
	FROM weighing_volumes WHERE tenant_id = ?%s`, clause), args...)
}

// ToleranceComplianceKPI returns the share of in-tolerance weighings as a percentage.
func (db *DB) ToleranceComplianceKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "weighing_volumes", fmt.Sprintf(`
	SELECT COALESCE(SUM(within_tolerance_count) * 100.0 /
	       NULLIF(SUM(within_tolerance_count) + SUM(outside_tolerance_count), 0), 0)
	FROM weighing_volumes WHERE tenant_id = ?%s`, clause), args...)
}

// TotalRevenueKPI returns the total invoiced revenue.
func (db *DB) TotalRevenueKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "finance_kpis", fmt.Sprintf(`
	SELECT COALESCE(SUM(total_revenue), 0)
	FROM finance_kpis WHERE tenant_id = ?%s`, clause), args...)
}

// GrossMarginKPI returns the total gross margin.
func (db *DB) GrossMarginKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "finance_kpis", fmt.Sprintf(`
	SELECT COALESCE(SUM(gross_margin), 0)
	FROM finance_kpis WHERE tenant_id = ?%s`, clause), args...)
}

// OutstandingInvoicesKPI returns the total outstanding invoice amount.
func (db *DB) OutstandingInvoicesKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "finance_kpis", fmt.Sprintf(`
	SELECT COALESCE(SUM(outstanding_amount), 0)
	FROM finance_kpis WHERE tenant_id = ?%s`, clause), args...)
}

// OverdueInvoicesKPI returns the total overdue invoice amount.
func (db *DB) OverdueInvoicesKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "finance_kpis", fmt.Sprintf(`
	SELECT COALESCE(SUM(overdue_amount), 0)
	FROM finance_kpis WHERE tenant_id = ?%s`, clause), args...)
}

// EligibilityRateKPI returns the share of eligible declarations as a percentage.
func (db *DB) EligibilityRateKPI(ctx context.Context, kctx models.KPIContext) (float64, error) {
	clause, args := kpiFilter(kctx)
	return db.viewScalar(ctx, "regulatory_stats", fmt.Sprintf(`
	SELECT COALESCE(SUM(eligible_count) * 100.0 / NULLIF(SUM(total_declarations), 0), 0)
	FROM regulatory_stats WHERE tenant_id = ?%s`, clause), args...)
}

// InsertKPI persists a KPI snapshot. The version is assigned here:
// one greater than the highest existing version for (tenant_id, name), so a
// recalculated KPI supersedes without mutating prior snapshots.
func (db *DB) InsertKPI(ctx context.Context, kpi *models.KPI) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var maxVersion int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM kpis WHERE tenant_id = ? AND name = ?`,
		kpi.TenantID, kpi.Name).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to resolve kpi version: %w", err)
	}
	kpi.Version = maxVersion + 1

	valueJSON, err := json.Marshal(kpi.Value)
	if err != nil {
		return fmt.Errorf("failed to encode kpi value: %w", err)
	}
	contextJSON, err := json.Marshal(kpi.Context)
	if err != nil {
		return fmt.Errorf("failed to encode kpi context: %w", err)
	}
	metadataJSON, err := json.Marshal(kpi.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode kpi metadata: %w", err)
	}

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO kpis (id, tenant_id, name, description, value, unit, context, calculated_at, metadata, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kpi.ID, kpi.TenantID, kpi.Name, kpi.Description, string(valueJSON), kpi.Unit,
		string(contextJSON), kpi.CalculatedAt, string(metadataJSON), kpi.Version)
	metrics.ObserveQuery("insert", "kpis", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert kpi: %w", err)
	}
	return nil
}

// ListKPIs returns a tenant's KPI snapshots, optionally filtered by name,
// newest first.
func (db *DB) ListKPIs(ctx context.Context, tenantID, name string, limit, offset int) ([]models.KPI, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
	SELECT id, tenant_id, name, description, value, unit, context, calculated_at, metadata, version
	FROM kpis WHERE tenant_id = ?`
	args := []any{tenantID}
	if name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += " ORDER BY calculated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	defer rows.Close()

	var out []models.KPI
	for rows.Next() {
		var kpi models.KPI
		var valueJSON, contextJSON, metadataJSON string
		if err := rows.Scan(&kpi.ID, &kpi.TenantID, &kpi.Name, &kpi.Description,
			&valueJSON, &kpi.Unit, &contextJSON, &kpi.CalculatedAt, &metadataJSON, &kpi.Version); err != nil {
			return nil, fmt.Errorf("failed to scan kpi row: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &kpi.Value); err != nil {
			return nil, fmt.Errorf("failed to decode kpi value: %w", err)
		}
		if contextJSON != "" && contextJSON != "null" {
			if err := json.Unmarshal([]byte(contextJSON), &kpi.Context); err != nil {
				return nil, fmt.Errorf("failed to decode kpi context: %w", err)
			}
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &kpi.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode kpi metadata: %w", err)
			}
		}
		out = append(out, kpi)
	}
	return out, rows.Err()
}
