// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package metrics provides Prometheus instrumentation for the analytics
// pipeline: event consumption, fact inserts, view materialization, KPI
// calculation, forecasting, and outbound publishing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event Consumer
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_events_received_total",
			Help: "Total inbound business events received, by routing domain",
		},
		[]string{"domain"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_events_processed_total",
			Help: "Total inbound events that produced a fact row",
		},
		[]string{"domain"},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_events_duplicate_total",
			Help: "Total inbound events skipped by the (tenant_id, event_id) idempotency check",
		},
		[]string{"domain"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "granary_events_dropped_total",
			Help: "Total inbound events acknowledged and dropped due to an unknown type prefix",
		},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_events_failed_total",
			Help: "Total inbound events negatively acknowledged for redelivery",
		},
		[]string{"domain", "reason"}, // reason: decode, insert
	)

	// Materialization Engine
	ViewRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "granary_view_refresh_duration_seconds",
			Help:    "Duration of materialized view refreshes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	ViewRefreshRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "granary_view_refresh_rows",
			Help: "Row count produced by the most recent refresh of each view family",
		},
		[]string{"family"},
	)

	ViewRefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_view_refresh_errors_total",
			Help: "Total failed materialized view refreshes",
		},
		[]string{"family"},
	)

	// KPI Calculation Engine
	KPICalculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "granary_kpi_calculation_duration_seconds",
			Help:    "Duration of individual KPI calculator runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kpi"},
	)

	KPICalculationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_kpi_calculation_errors_total",
			Help: "Total KPI calculator failures (isolated, never fatal to the batch)",
		},
		[]string{"kpi"},
	)

	// Forecasting Service
	ForecastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "granary_forecast_duration_seconds",
			Help:    "Duration of forecast generation, by model",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	ForecastErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_forecast_errors_total",
			Help: "Total forecast failures, by model and error class",
		},
		[]string{"model", "error_type"}, // error_type: validation, model, persistence
	)

	// Outbound publishing
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_publish_errors_total",
			Help: "Total outbound domain event publish failures",
		},
		[]string{"event_type"},
	)

	WALPendingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "granary_wal_pending_entries",
			Help: "Outbound events persisted to the WAL and not yet confirmed published",
		},
	)

	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "granary_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "granary_db_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)

// ObserveQuery records one database query's duration and outcome.
func ObserveQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
