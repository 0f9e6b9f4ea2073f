// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package forecaster generates metric forecasts from caller-supplied
// historical series. Four local models run in-process; an optional external
// model runs over HTTP. Generation never returns an error to the caller: a
// validation, model, or persistence failure is reported inside the result.
package forecaster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tradesight/granary/internal/config"
	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/messaging"
	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
	"github.com/tradesight/granary/internal/validation"
)

// Service generates, lists, and expires forecasts. A nil publisher disables
// outbound events.
type Service struct {
	db        *database.DB
	publisher messaging.EventPublisher
	cfg       *config.ForecastingConfig
	external  *ExternalClient
	validate  *validator.Validate
}

func New(db *database.DB, publisher messaging.EventPublisher, cfg *config.ForecastingConfig) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		external:  NewExternalClient(cfg.External),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Generate produces a forecast for the request. The result always carries a
// non-nil Forecast; on failure it is an empty placeholder and ErrorMessage
// explains what went wrong.
func (s *Service) Generate(ctx context.Context, req *models.ForecastRequest) *models.ForecastResult {
	start := time.Now()

	if req.HorizonUnit == "" {
		req.HorizonUnit = models.HorizonDays
	}
	model := models.ParseForecastModel(string(req.Model))

	if err := s.validateRequest(req); err != nil {
		metrics.ForecastErrors.WithLabelValues(string(model), "validation").Inc()
		return failedResult(model, start, err)
	}

	out, metadata, err := s.runModel(ctx, model, req)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(string(model), "model").Inc()
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("tenant_id", req.TenantID).
			Str("metric", req.MetricName).
			Str("model", string(model)).
			Msg("forecast model failed")
		return failedResult(model, start, err)
	}

	forecast := &models.Forecast{
		ID:                 uuid.New().String(),
		TenantID:           req.TenantID,
		MetricName:         req.MetricName,
		Horizon:            req.Horizon,
		HorizonUnit:        req.HorizonUnit,
		Model:              model,
		ForecastValues:     out.values,
		ConfidenceInterval: req.ConfidenceInterval,
		CreatedAt:          time.Now().UTC(),
		Metadata:           mergeMetadata(req.Metadata, metadata),
		Version:            1,
	}

	if err := s.db.InsertForecast(ctx, forecast, out.accuracy); err != nil {
		metrics.ForecastErrors.WithLabelValues(string(model), "persistence").Inc()
		logging.Ctx(ctx).Error().
			Err(err).
			Str("tenant_id", req.TenantID).
			Str("metric", req.MetricName).
			Msg("failed to persist forecast")
		return failedResult(model, start, err)
	}

	s.publishCreated(ctx, forecast)

	elapsed := time.Since(start)
	metrics.ForecastDuration.WithLabelValues(string(model)).Observe(elapsed.Seconds())
	logging.Ctx(ctx).Info().
		Str("tenant_id", req.TenantID).
		Str("metric", req.MetricName).
		Str("model", string(model)).
		Int("horizon", req.Horizon).
		Dur("duration", elapsed).
		Msg("forecast generated")

	return &models.ForecastResult{
		Forecast:      forecast,
		Success:       true,
		ExecutionTime: elapsed,
		ModelUsed:     model,
		Accuracy:      out.accuracy,
	}
}

// List returns a tenant's forecasts, newest first.
func (s *Service) List(ctx context.Context, tenantID string, filter models.ForecastFilter) ([]models.Forecast, error) {
	return s.db.ListForecasts(ctx, tenantID, filter)
}

// CleanupOld hard-deletes forecasts older than the given number of days.
// Zero or negative falls back to the configured retention.
func (s *Service) CleanupOld(ctx context.Context, tenantID string, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = s.cfg.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	deleted, err := s.db.DeleteForecastsBefore(ctx, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logging.Ctx(ctx).Info().
			Str("tenant_id", tenantID).
			Int("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("expired old forecasts")
	}
	return deleted, nil
}

func (s *Service) validateRequest(req *models.ForecastRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid forecast request: %w", validation.Translate(err))
	}
	if req.Horizon > s.cfg.MaxHorizon {
		return fmt.Errorf("horizon %d exceeds maximum %d", req.Horizon, s.cfg.MaxHorizon)
	}
	if !req.HorizonUnit.Valid() {
		return fmt.Errorf("unknown horizon unit %q", req.HorizonUnit)
	}
	if ci := req.ConfidenceInterval; ci != nil && (*ci <= 0 || *ci >= 1) {
		return fmt.Errorf("confidence interval %v must lie strictly between 0 and 1", *ci)
	}
	return nil
}

func (s *Service) runModel(ctx context.Context, model models.ForecastModel, req *models.ForecastRequest) (modelOutput, map[string]any, error) {
	if model == models.ModelExternal {
		return s.external.Forecast(ctx, req)
	}

	hist := newSeries(req.HistoricalData)
	switch model {
	case models.ModelARIMA:
		return forecastARIMA(hist, req), nil, nil
	case models.ModelExponentialSmoothing:
		return forecastExponentialSmoothing(hist, req), nil, nil
	case models.ModelLinearRegression:
		return forecastLinearRegression(hist, req), nil, nil
	default:
		return forecastRuleBased(hist, req), nil, nil
	}
}

func (s *Service) publishCreated(ctx context.Context, f *models.Forecast) {
	if s.publisher == nil {
		return
	}
	event, err := models.NewDomainEvent(models.EventTypeForecastCreated, f.TenantID, models.ForecastCreatedPayload{
		ForecastID:    f.ID,
		MetricName:    f.MetricName,
		Horizon:       f.Horizon,
		HorizonUnit:   string(f.HorizonUnit),
		Model:         string(f.Model),
		ForecastCount: len(f.ForecastValues),
		CreatedAt:     f.CreatedAt,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("forecast_id", f.ID).Msg("failed to build forecast.created event")
		return
	}
	if err := s.publisher.PublishDomainEvent(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("forecast_id", f.ID).Msg("failed to publish forecast.created event")
	}
}

func failedResult(model models.ForecastModel, start time.Time, err error) *models.ForecastResult {
	return &models.ForecastResult{
		Forecast:      &models.Forecast{},
		Success:       false,
		ExecutionTime: time.Since(start),
		ModelUsed:     model,
		ErrorMessage:  err.Error(),
	}
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged["modelParameters"] = extra
	return merged
}
