// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package forecaster

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/tradesight/granary/internal/models"
)

// Per-point confidence heuristics. These are fixed model properties, not
// derived from the data.
const (
	confidenceARIMA     = 0.8
	confidenceSmoothing = 0.75
	confidenceLinear    = 0.7
	confidenceRuleBased = 0.6
)

const smoothingAlpha = 0.3

// modelOutput is what a local model produces before persistence: the projected
// points and an accuracy estimate. ARIMA and exponential smoothing use a
// coefficient-of-variation heuristic for accuracy while linear regression
// reports a true R-squared; the divergence is deliberate, each model keeps the
// accuracy semantics it was specified with.
type modelOutput struct {
	values   []models.ForecastValue
	accuracy *float64
}

// series is a historical series sorted ascending by timestamp.
type series struct {
	points []models.DataPoint
	values []float64
}

func newSeries(data []models.DataPoint) series {
	points := make([]models.DataPoint, len(data))
	copy(points, data)
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return series{points: points, values: values}
}

func (s series) last() time.Time {
	return s.points[len(s.points)-1].Timestamp
}

// step advances a timestamp by n calendar units. AddDate normalizes
// out-of-range dates, so 2024-01-31 plus one month is 2024-03-02, not an
// end-of-February clamp.
func step(t time.Time, unit models.HorizonUnit, n int) time.Time {
	switch unit {
	case models.HorizonDays:
		return t.AddDate(0, 0, n)
	case models.HorizonWeeks:
		return t.AddDate(0, 0, 7*n)
	case models.HorizonMonths:
		return t.AddDate(0, n, 0)
	case models.HorizonQuarters:
		return t.AddDate(0, 3*n, 0)
	case models.HorizonYears:
		return t.AddDate(n, 0, 0)
	}
	return t.AddDate(0, 0, n)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// olsFit fits value = intercept + slope*index over the 0-indexed series and
// returns the coefficient of determination alongside the line. A constant
// series has no variance to explain; its fit is reported as perfect.
func olsFit(values []float64) (slope, intercept, r2 float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, mean(values), 1
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	m := sumY / n
	var ssRes, ssTot float64
	for i, v := range values {
		fit := intercept + slope*float64(i)
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - m) * (v - m)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	return slope, intercept, 1 - ssRes/ssTot
}

// cvAccuracy is the coefficient-of-variation accuracy heuristic shared by the
// ARIMA and exponential smoothing models: 1 - stdDev/mean, clamped to [0, 1].
func cvAccuracy(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	return clamp01(1 - stdDev(values)/m)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func ptr(v float64) *float64 {
	return &v
}

// forecastARIMA projects mean plus an OLS trend, floored at zero. This is the
// simplified form: no differencing, no moving-average terms.
func forecastARIMA(s series, req *models.ForecastRequest) modelOutput {
	m := mean(s.values)
	slope, _, _ := olsFit(s.values)

	values := projectLinear(s, req, func(t int) float64 {
		return math.Max(0, m+slope*float64(t))
	}, confidenceARIMA)
	return modelOutput{values: values, accuracy: ptr(cvAccuracy(s.values))}
}

// forecastExponentialSmoothing runs single exponential smoothing seeded at the
// first observation and projects the final smoothed level flat across the
// horizon.
func forecastExponentialSmoothing(s series, req *models.ForecastRequest) modelOutput {
	smoothed := s.values[0]
	for _, v := range s.values[1:] {
		smoothed = smoothingAlpha*v + (1-smoothingAlpha)*smoothed
	}

	values := projectLinear(s, req, func(int) float64 {
		return smoothed
	}, confidenceSmoothing)
	return modelOutput{values: values, accuracy: ptr(cvAccuracy(s.values))}
}

// forecastLinearRegression extrapolates a true OLS fit: the first projected
// point continues the line at index n, one past the last observation.
func forecastLinearRegression(s series, req *models.ForecastRequest) modelOutput {
	slope, intercept, r2 := olsFit(s.values)
	n := len(s.values)

	values := projectLinear(s, req, func(t int) float64 {
		return intercept + slope*float64(n+t-1)
	}, confidenceLinear)
	return modelOutput{values: values, accuracy: ptr(r2)}
}

// forecastRuleBased is the fallback model: the historical mean with a random
// jitter of up to ten percent per point.
func forecastRuleBased(s series, req *models.ForecastRequest) modelOutput {
	m := mean(s.values)

	values := projectLinear(s, req, func(int) float64 {
		jitter := rand.Float64()*0.2 - 0.1
		return m * (1 + jitter)
	}, confidenceRuleBased)
	return modelOutput{values: values, accuracy: ptr(0.5)}
}

// projectLinear walks the horizon, stepping the calendar from the last
// observation and attaching interval bounds when the request asked for them.
func projectLinear(s series, req *models.ForecastRequest, value func(t int) float64, confidence float64) []models.ForecastValue {
	margin := intervalMargin(s.values, req.ConfidenceInterval)
	last := s.last()

	out := make([]models.ForecastValue, 0, req.Horizon)
	for t := 1; t <= req.Horizon; t++ {
		v := models.ForecastValue{
			Timestamp:  step(last, req.HorizonUnit, t),
			Value:      value(t),
			Confidence: ptr(confidence),
		}
		if margin != nil {
			v.LowerBound = ptr(v.Value - *margin)
			v.UpperBound = ptr(v.Value + *margin)
		}
		out = append(out, v)
	}
	return out
}

// intervalMargin converts the requested confidence interval into a symmetric
// margin of zScore(ci) historical standard deviations. Nil when no interval
// was requested.
func intervalMargin(values []float64, ci *float64) *float64 {
	if ci == nil {
		return nil
	}
	return ptr(zScore(*ci) * stdDev(values))
}

// zScore approximates the two-sided standard normal quantile for a confidence
// level, interpolating between common levels.
func zScore(ci float64) float64 {
	table := []struct{ level, z float64 }{
		{0.50, 0.674},
		{0.80, 1.282},
		{0.90, 1.645},
		{0.95, 1.960},
		{0.99, 2.576},
	}
	if ci <= table[0].level {
		return table[0].z
	}
	for i := 1; i < len(table); i++ {
		if ci <= table[i].level {
			lo, hi := table[i-1], table[i]
			frac := (ci - lo.level) / (hi.level - lo.level)
			return lo.z + frac*(hi.z-lo.z)
		}
	}
	return table[len(table)-1].z
}
