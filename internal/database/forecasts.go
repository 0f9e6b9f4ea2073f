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

// InsertForecast persists an immutable forecast. Forecast values are stored
// as a JSON column; the listing index covers (tenant_id, metric_name, created_at).
func (db *DB) InsertForecast(ctx context.Context, f *models.Forecast, accuracy *float64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	valuesJSON, err := json.Marshal(f.ForecastValues)
	if err != nil {
		return fmt.Errorf("failed to encode forecast values: %w", err)
	}
	metadataJSON, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode forecast metadata: %w", err)
	}

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO forecasts (
		id, tenant_id, metric_name, horizon, horizon_unit, model,
		forecast_values, confidence_interval, accuracy, created_at, metadata, version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TenantID, f.MetricName, f.Horizon, string(f.HorizonUnit), string(f.Model),
		string(valuesJSON), f.ConfidenceInterval, accuracy, f.CreatedAt, string(metadataJSON), f.Version)
	metrics.ObserveQuery("insert", "forecasts", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert forecast: %w", err)
	}
	return nil
}

// ListForecasts returns a tenant's forecasts matching the filter, ordered by
// creation time descending.
func (db *DB) ListForecasts(ctx context.Context, tenantID string, filter models.ForecastFilter) ([]models.Forecast, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
	SELECT id, tenant_id, metric_name, horizon, horizon_unit, model,
	       forecast_values, confidence_interval, created_at, metadata, version
	FROM forecasts WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.MetricName != "" {
		query += " AND metric_name = ?"
		args = append(args, filter.MetricName)
	}
	if filter.Model != "" {
		query += " AND model = ?"
		args = append(args, string(filter.Model))
	}
	if filter.From != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += " AND created_at <= ?"
		args = append(args, *filter.To)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	defer rows.Close()

	var out []models.Forecast
	for rows.Next() {
		var f models.Forecast
		var horizonUnit, model, valuesJSON, metadataJSON string
		if err := rows.Scan(&f.ID, &f.TenantID, &f.MetricName, &f.Horizon, &horizonUnit, &model,
			&valuesJSON, &f.ConfidenceInterval, &f.CreatedAt, &metadataJSON, &f.Version); err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		f.HorizonUnit = models.HorizonUnit(horizonUnit)
		f.Model = models.ForecastModel(model)
		if err := json.Unmarshal([]byte(valuesJSON), &f.ForecastValues); err != nil {
			return nil, fmt.Errorf("failed to decode forecast values: %w", err)
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode forecast metadata: %w", err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForecastTenantIDs returns every tenant that still has persisted forecasts.
// The retention sweep uses this rather than the fact-table tenant union:
// forecasts can outlive their source facts and must still expire.
func (db *DB) ForecastTenantIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM forecasts ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast tenant ids: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan forecast tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// DeleteForecastsBefore hard-deletes a tenant's forecasts created before the
// cutoff. Returns the number of rows removed.
func (db *DB) DeleteForecastsBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM forecasts WHERE tenant_id = ? AND created_at < ?`, tenantID, cutoff)
	metrics.ObserveQuery("delete", "forecasts", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old forecasts: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted forecasts: %w", err)
	}
	return int(count), nil
}
