// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package models

import "time"

// ForecastModel enumerates the supported forecasting models.
type ForecastModel string

const (
	ModelARIMA                ForecastModel = "arima"
	ModelExponentialSmoothing ForecastModel = "exponential_smoothing"
	ModelLinearRegression     ForecastModel = "linear_regression"
	ModelRuleBased            ForecastModel = "rule_based"
	ModelExternal             ForecastModel = "external"
)

// ParseForecastModel maps a model name to the enumeration. Unrecognized or
// empty names fall back to the rule-based model rather than erroring.
func ParseForecastModel(name string) ForecastModel {
	switch ForecastModel(name) {
	case ModelARIMA, ModelExponentialSmoothing, ModelLinearRegression, ModelRuleBased, ModelExternal:
		return ForecastModel(name)
	default:
		return ModelRuleBased
	}
}

// HorizonUnit is the calendar unit a forecast horizon is expressed in.
type HorizonUnit string

const (
	HorizonDays     HorizonUnit = "days"
	HorizonWeeks    HorizonUnit = "weeks"
	HorizonMonths   HorizonUnit = "months"
	HorizonQuarters HorizonUnit = "quarters"
	HorizonYears    HorizonUnit = "years"
)

// Valid reports whether the unit is one of the supported calendar units.
func (u HorizonUnit) Valid() bool {
	switch u {
	case HorizonDays, HorizonWeeks, HorizonMonths, HorizonQuarters, HorizonYears:
		return true
	}
	return false
}

// DataPoint is one observation of a historical series.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ForecastValue is one projected point. Bounds are optional; Confidence is the
// per-point model confidence heuristic, distinct from the caller-requested
// confidence interval width.
type ForecastValue struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	LowerBound *float64  `json:"lowerBound,omitempty"`
	UpperBound *float64  `json:"upperBound,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Forecast is a persisted, immutable forecast. Superseding a forecast requires
// creating a new one; forecasts are destroyed only by age-based retention.
type Forecast struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenantId"`
	MetricName         string          `json:"metricName"`
	Horizon            int             `json:"horizon"`
	HorizonUnit        HorizonUnit     `json:"horizonUnit"`
	Model              ForecastModel   `json:"model"`
	ForecastValues     []ForecastValue `json:"forecastValues"`
	ConfidenceInterval *float64        `json:"confidenceInterval,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	Version            int             `json:"version"`
}

// ForecastRequest is the caller-supplied input to forecast generation.
type ForecastRequest struct {
	TenantID           string         `json:"tenantId" validate:"required"`
	MetricName         string         `json:"metricName" validate:"required"`
	Horizon            int            `json:"horizon" validate:"required,min=1"`
	HorizonUnit        HorizonUnit    `json:"horizonUnit"`
	Model              ForecastModel  `json:"model,omitempty"`
	HistoricalData     []DataPoint    `json:"historicalData" validate:"required,min=3"`
	ConfidenceInterval *float64       `json:"confidenceInterval,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// ForecastResult wraps the outcome of a generation request. On failure the
// Forecast field holds an empty placeholder, never nil, so callers can always
// serialize the result.
type ForecastResult struct {
	Forecast      *Forecast     `json:"forecast"`
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"executionTimeMs"`
	ModelUsed     ForecastModel `json:"modelUsed"`
	Accuracy      *float64      `json:"accuracy,omitempty"`
	ErrorMessage  string        `json:"error,omitempty"`
}

// ForecastFilter selects forecasts for listing. Zero values mean "no filter".
// Results are ordered by creation time descending.
type ForecastFilter struct {
	MetricName string        `json:"metricName,omitempty"`
	Model      ForecastModel `json:"model,omitempty"`
	From       *time.Time    `json:"from,omitempty"`
	To         *time.Time    `json:"to,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}
