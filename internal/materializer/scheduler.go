// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package materializer

import (
	"context"
	"time"

	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/models"
)

// KPIBatchRunner recalculates the KPI catalog for one tenant. Satisfied by
// *kpi.Engine; declared here so the scheduler does not depend on that package.
type KPIBatchRunner interface {
	CalculateAll(ctx context.Context, kctx models.KPIContext) *models.KPIBatchResult
}

// Scheduler refreshes every tenant's views on a fixed interval, then
// recalculates KPIs from the fresh views. It runs as a supervised service;
// on-demand refreshes through the engine remain available while it runs
// because refreshes are idempotent.
type Scheduler struct {
	engine   *Engine
	db       *database.DB
	kpis     KPIBatchRunner
	interval time.Duration
}

// NewScheduler creates a scheduler. A zero interval disables scheduled
// refreshes; Serve then blocks until cancellation without doing work. A nil
// kpis runner skips the KPI recalculation step.
func NewScheduler(engine *Engine, db *database.DB, kpis KPIBatchRunner, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, db: db, kpis: kpis, interval: interval}
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		logging.Info().Msg("view refresh scheduler disabled, refreshes are on-demand only")
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Info().Dur("interval", s.interval).Msg("view refresh scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("view refresh scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshAllTenants(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "view-refresh-scheduler"
}

func (s *Scheduler) refreshAllTenants(ctx context.Context) {
	tenants, err := s.db.TenantIDs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("scheduled refresh could not enumerate tenants")
		return
	}

	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := s.engine.RefreshAll(ctx, tenantID)
		if !result.Succeeded() {
			for family, res := range result.Results {
				if !res.Success {
					logging.Warn().
						Str("tenant_id", tenantID).
						Str("family", string(family)).
						Str("error", res.ErrorMessage).
						Msg("scheduled refresh failed for view family")
				}
			}
		}

		// KPIs recompute even after a partial refresh: the calculators read
		// whatever the views hold, and a stale family is better than a
		// missing batch.
		if s.kpis != nil {
			batch := s.kpis.CalculateAll(ctx, models.KPIContext{TenantID: tenantID})
			if batch.Summary.Failed > 0 {
				logging.Warn().
					Str("tenant_id", tenantID).
					Int("failed", batch.Summary.Failed).
					Msg("scheduled KPI recalculation had failures")
			}
		}
	}
}
