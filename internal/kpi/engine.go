// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package kpi

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/messaging"
	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// Engine runs the calculator catalog against the materialized views and
// persists the resulting KPI snapshots. A nil publisher disables outbound
// events; calculation and persistence are unaffected.
type Engine struct {
	db        *database.DB
	publisher messaging.EventPublisher
	catalog   []Calculator
}

func New(db *database.DB, publisher messaging.EventPublisher) *Engine {
	return &Engine{
		db:        db,
		publisher: publisher,
		catalog:   Catalog(),
	}
}

// Calculate runs a single named calculator. An unknown name is the caller's
// error; a failing calculator is not, it yields a zero-valued result with
// Success false.
func (e *Engine) Calculate(ctx context.Context, name string, kctx models.KPIContext) (models.KPICalculationResult, error) {
	calc, ok := Lookup(name)
	if !ok {
		return models.KPICalculationResult{}, fmt.Errorf("unknown kpi calculator: %s", name)
	}
	return e.run(ctx, calc, kctx), nil
}

// CalculateCategory runs every calculator in one category concurrently with
// the same best-effort semantics as CalculateAll. Results keep catalog order.
func (e *Engine) CalculateCategory(ctx context.Context, category models.KPICategory, kctx models.KPIContext) []models.KPICalculationResult {
	var calcs []Calculator
	for _, calc := range e.catalog {
		if calc.Category == category {
			calcs = append(calcs, calc)
		}
	}
	return e.runBatch(ctx, calcs, kctx)
}

// CalculateAll runs every calculator in the catalog concurrently,
// best-effort: a failed calculator is recorded in its result and the
// summary, never propagated. Results keep catalog order.
func (e *Engine) CalculateAll(ctx context.Context, kctx models.KPIContext) *models.KPIBatchResult {
	start := time.Now()
	results := e.runBatch(ctx, e.catalog, kctx)

	summary := models.KPICalculationSummary{
		Total:         len(results),
		ExecutionTime: time.Since(start),
	}
	for _, r := range results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", kctx.TenantID).
		Int("total", summary.Total).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Dur("duration", summary.ExecutionTime).
		Msg("KPI batch calculation completed")

	return &models.KPIBatchResult{Results: results, Summary: summary}
}

func (e *Engine) runBatch(ctx context.Context, calcs []Calculator, kctx models.KPIContext) []models.KPICalculationResult {
	results := make([]models.KPICalculationResult, len(calcs))

	var wg sync.WaitGroup
	for i, calc := range calcs {
		wg.Add(1)
		go func(i int, calc Calculator) {
			defer wg.Done()
			results[i] = e.run(ctx, calc, kctx)
		}(i, calc)
	}
	wg.Wait()

	return results
}

// List returns a tenant's persisted KPI snapshots, newest first.
func (e *Engine) List(ctx context.Context, tenantID, name string, limit, offset int) ([]models.KPI, error) {
	return e.db.ListKPIs(ctx, tenantID, name, limit, offset)
}

func (e *Engine) run(ctx context.Context, calc Calculator, kctx models.KPIContext) models.KPICalculationResult {
	start := time.Now()
	value, err := calc.Compute(ctx, e.db, kctx)
	if err == nil {
		value = round2(value)
	}

	k := &models.KPI{
		ID:           uuid.New().String(),
		TenantID:     kctx.TenantID,
		Name:         calc.Name,
		Description:  calc.Description,
		Value:        value,
		Unit:         calc.Unit,
		Context:      contextMap(kctx),
		CalculatedAt: time.Now().UTC(),
		Metadata: map[string]any{
			"calculationMethod": calc.Method,
			"dataSource":        string(calc.DataSource),
		},
	}

	if err == nil {
		err = e.db.InsertKPI(ctx, k)
	}

	elapsed := time.Since(start)
	metrics.KPICalculationDuration.WithLabelValues(calc.Name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.KPICalculationErrors.WithLabelValues(calc.Name).Inc()
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("kpi", calc.Name).
			Str("tenant_id", kctx.TenantID).
			Msg("KPI calculation failed")
		// Failed runs are not persisted: a zero snapshot would read as a
		// real measurement in the version history.
		k.Value = float64(0)
		return models.KPICalculationResult{
			KPI:           k,
			Category:      calc.Category,
			Success:       false,
			ExecutionTime: elapsed,
			ErrorMessage:  err.Error(),
		}
	}

	e.publishCalculated(ctx, k)

	return models.KPICalculationResult{
		KPI:           k,
		Category:      calc.Category,
		Success:       true,
		ExecutionTime: elapsed,
	}
}

func (e *Engine) publishCalculated(ctx context.Context, k *models.KPI) {
	if e.publisher == nil {
		return
	}
	event, err := models.NewDomainEvent(models.EventTypeKPICalculated, k.TenantID, models.KPICalculatedPayload{
		KPIID:        k.ID,
		KPIName:      k.Name,
		Value:        k.Value,
		Unit:         k.Unit,
		Context:      k.Context,
		CalculatedAt: k.CalculatedAt,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("kpi", k.Name).Msg("failed to build kpi.calculated event")
		return
	}
	if err := e.publisher.PublishDomainEvent(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("kpi", k.Name).Msg("failed to publish kpi.calculated event")
	}
}

func contextMap(kctx models.KPIContext) map[string]any {
	m := map[string]any{}
	if kctx.Commodity != "" {
		m["commodity"] = kctx.Commodity
	}
	if kctx.Period != "" {
		m["period"] = kctx.Period
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
