// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package materializer recomputes the five materialized view families from
// the fact store. Every refresh is a full replace: delete the tenant's rows,
// re-aggregate from facts. Refreshes are idempotent, so overlapping or
// repeated runs converge on the same state.
package materializer

import (
	"context"
	"sync"
	"time"

	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/messaging"
	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// Engine drives view refreshes for one database.
type Engine struct {
	db        *database.DB
	publisher messaging.EventPublisher
}

// New creates a materialization engine. The publisher may be nil, in which
// case refresh events are not emitted (useful in tests).
func New(db *database.DB, publisher messaging.EventPublisher) *Engine {
	return &Engine{db: db, publisher: publisher}
}

// RefreshContractPositions rebuilds the contract position view for a tenant.
func (e *Engine) RefreshContractPositions(ctx context.Context, tenantID string) models.RefreshResult {
	return e.refresh(ctx, models.ViewContractPositions, tenantID)
}

// RefreshQualityStats rebuilds the quality statistics view for a tenant.
func (e *Engine) RefreshQualityStats(ctx context.Context, tenantID string) models.RefreshResult {
	return e.refresh(ctx, models.ViewQualityStats, tenantID)
}

// RefreshRegulatoryStats rebuilds the regulatory statistics view for a tenant.
func (e *Engine) RefreshRegulatoryStats(ctx context.Context, tenantID string) models.RefreshResult {
	return e.refresh(ctx, models.ViewRegulatoryStats, tenantID)
}

// RefreshFinanceKPIs rebuilds the finance KPI view for a tenant.
func (e *Engine) RefreshFinanceKPIs(ctx context.Context, tenantID string) models.RefreshResult {
	return e.refresh(ctx, models.ViewFinanceKPIs, tenantID)
}

// RefreshWeighingVolumes rebuilds the weighing volume view for a tenant.
func (e *Engine) RefreshWeighingVolumes(ctx context.Context, tenantID string) models.RefreshResult {
	return e.refresh(ctx, models.ViewWeighingVolumes, tenantID)
}

// Refresh rebuilds a single view family by name.
func (e *Engine) Refresh(ctx context.Context, family models.ViewFamily, tenantID string) models.RefreshResult {
	return e.refresh(ctx, family, tenantID)
}

// RefreshAll rebuilds every view family for a tenant concurrently. Failures
// are isolated per family: one failing view never blocks the others. The
// result's TotalDuration is wall-clock time of the fan-out, not the sum of
// per-family times.
func (e *Engine) RefreshAll(ctx context.Context, tenantID string) *models.RefreshAllResult {
	start := time.Now()
	results := make([]models.RefreshResult, len(models.ViewFamilies))

	var wg sync.WaitGroup
	for i, family := range models.ViewFamilies {
		wg.Add(1)
		go func(i int, family models.ViewFamily) {
			defer wg.Done()
			results[i] = e.refresh(ctx, family, tenantID)
		}(i, family)
	}
	wg.Wait()

	out := &models.RefreshAllResult{
		TenantID:      tenantID,
		Results:       make(map[models.ViewFamily]models.RefreshResult, len(results)),
		TotalDuration: time.Since(start),
	}
	for _, res := range results {
		out.Results[res.Family] = res
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", tenantID).
		Bool("success", out.Succeeded()).
		Int("total_records", out.TotalRecords()).
		Dur("duration", out.TotalDuration).
		Msg("view refresh cycle completed")

	e.publishAggregationCompleted(ctx, tenantID, out)
	return out
}

// Status reports row count and staleness for every view family.
func (e *Engine) Status(ctx context.Context, tenantID string) ([]models.ViewStatus, error) {
	statuses := make([]models.ViewStatus, 0, len(models.ViewFamilies))
	for _, family := range models.ViewFamilies {
		status, err := e.db.ViewStatus(ctx, family, tenantID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}

func (e *Engine) refresh(ctx context.Context, family models.ViewFamily, tenantID string) models.RefreshResult {
	start := time.Now()
	count, err := e.db.RefreshView(ctx, family, tenantID)
	elapsed := time.Since(start)

	result := models.RefreshResult{
		Family:        family,
		Success:       err == nil,
		RecordCount:   count,
		ExecutionTime: elapsed,
	}

	metrics.ViewRefreshDuration.WithLabelValues(string(family)).Observe(elapsed.Seconds())
	if err != nil {
		result.Err = err
		result.ErrorMessage = err.Error()
		metrics.ViewRefreshErrors.WithLabelValues(string(family)).Inc()
		logging.Ctx(ctx).Error().
			Str("tenant_id", tenantID).
			Str("family", string(family)).
			Err(err).
			Msg("view refresh failed")
		return result
	}

	metrics.ViewRefreshRows.WithLabelValues(string(family)).Set(float64(count))
	logging.Ctx(ctx).Debug().
		Str("tenant_id", tenantID).
		Str("family", string(family)).
		Int("records", count).
		Dur("duration", elapsed).
		Msg("view refreshed")

	e.publishViewRefreshed(ctx, tenantID, result)
	return result
}

func (e *Engine) publishViewRefreshed(ctx context.Context, tenantID string, result models.RefreshResult) {
	if e.publisher == nil {
		return
	}

	event, err := models.NewDomainEvent(models.EventTypeMaterializedViewRefresh, tenantID, models.ViewRefreshedPayload{
		ViewName:        string(result.Family),
		RefreshType:     "full",
		RecordCount:     result.RecordCount,
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
		RefreshedAt:     time.Now().UTC(),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("build view refresh event failed")
		return
	}
	if err := e.publisher.PublishDomainEvent(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("family", string(result.Family)).Msg("publish view refresh event failed")
	}
}

func (e *Engine) publishAggregationCompleted(ctx context.Context, tenantID string, result *models.RefreshAllResult) {
	if e.publisher == nil || !result.Succeeded() {
		return
	}

	sources := make([]string, 0, len(models.ViewFamilies))
	for _, family := range models.ViewFamilies {
		sources = append(sources, string(family))
	}

	event, err := models.NewDomainEvent(models.EventTypeAggregationCompleted, tenantID, models.AggregationCompletedPayload{
		AggregationName: "materialized_views",
		SourceTables:    sources,
		RecordCount:     result.TotalRecords(),
		ExecutionTimeMs: result.TotalDuration.Milliseconds(),
		CompletedAt:     time.Now().UTC(),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("build aggregation event failed")
		return
	}
	if err := e.publisher.PublishDomainEvent(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("publish aggregation event failed")
	}
}
