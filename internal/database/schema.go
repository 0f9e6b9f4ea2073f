// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package database

import "fmt"

// schemaStatements creates all tables and indexes. Statements are idempotent
// (IF NOT EXISTS) so startup is safe against an existing database file.
//
// Fact tables are keyed by (tenant_id, event_id), the idempotency key that
// absorbs at-least-once event redelivery. Materialized views are keyed by
// tenant plus their natural grouping dimensions; period columns hold YYYY-MM
// strings except weighing_volumes which uses YYYY-MM-DD days.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contract_facts (
		tenant_id       VARCHAR NOT NULL,
		event_id        VARCHAR NOT NULL,
		event_type      VARCHAR NOT NULL,
		occurred_at     TIMESTAMP NOT NULL,
		contract_id     VARCHAR NOT NULL,
		contract_type   VARCHAR NOT NULL,
		commodity       VARCHAR NOT NULL,
		quantity        DOUBLE NOT NULL DEFAULT 0,
		hedged_quantity DOUBLE NOT NULL DEFAULT 0,
		price           DOUBLE NOT NULL DEFAULT 0,
		currency        VARCHAR,
		counterparty_id VARCHAR,
		status          VARCHAR NOT NULL,
		contract_date   TIMESTAMP NOT NULL,
		metadata        VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS production_facts (
		tenant_id       VARCHAR NOT NULL,
		event_id        VARCHAR NOT NULL,
		event_type      VARCHAR NOT NULL,
		occurred_at     TIMESTAMP NOT NULL,
		batch_id        VARCHAR NOT NULL,
		site_id         VARCHAR,
		commodity       VARCHAR NOT NULL,
		quantity        DOUBLE NOT NULL DEFAULT 0,
		unit            VARCHAR,
		production_date TIMESTAMP NOT NULL,
		metadata        VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS weighing_facts (
		tenant_id        VARCHAR NOT NULL,
		event_id         VARCHAR NOT NULL,
		event_type       VARCHAR NOT NULL,
		occurred_at      TIMESTAMP NOT NULL,
		ticket_id        VARCHAR NOT NULL,
		commodity        VARCHAR NOT NULL,
		customer_id      VARCHAR,
		site_id          VARCHAR,
		gross_weight     DOUBLE NOT NULL DEFAULT 0,
		tare_weight      DOUBLE NOT NULL DEFAULT 0,
		net_weight       DOUBLE,
		within_tolerance BOOLEAN NOT NULL DEFAULT FALSE,
		status           VARCHAR NOT NULL,
		weighing_date    TIMESTAMP NOT NULL,
		metadata         VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS quality_facts (
		tenant_id       VARCHAR NOT NULL,
		event_id        VARCHAR NOT NULL,
		event_type      VARCHAR NOT NULL,
		occurred_at     TIMESTAMP NOT NULL,
		sample_id       VARCHAR NOT NULL,
		commodity       VARCHAR NOT NULL,
		test_type       VARCHAR NOT NULL,
		test_value      DOUBLE NOT NULL DEFAULT 0,
		passed          BOOLEAN NOT NULL,
		inspection_date TIMESTAMP NOT NULL,
		metadata        VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS regulatory_facts (
		tenant_id        VARCHAR NOT NULL,
		event_id         VARCHAR NOT NULL,
		event_type       VARCHAR NOT NULL,
		occurred_at      TIMESTAMP NOT NULL,
		declaration_id   VARCHAR NOT NULL,
		commodity        VARCHAR NOT NULL,
		label_type       VARCHAR NOT NULL,
		eligible         BOOLEAN NOT NULL,
		declaration_date TIMESTAMP NOT NULL,
		metadata         VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS finance_facts (
		tenant_id    VARCHAR NOT NULL,
		event_id     VARCHAR NOT NULL,
		event_type   VARCHAR NOT NULL,
		occurred_at  TIMESTAMP NOT NULL,
		invoice_id   VARCHAR NOT NULL,
		customer_id  VARCHAR,
		commodity    VARCHAR NOT NULL,
		revenue      DOUBLE NOT NULL DEFAULT 0,
		cost         DOUBLE NOT NULL DEFAULT 0,
		status       VARCHAR NOT NULL,
		invoice_date TIMESTAMP NOT NULL,
		due_date     TIMESTAMP,
		metadata     VARCHAR,
		PRIMARY KEY (tenant_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS contract_positions (
		tenant_id      VARCHAR NOT NULL,
		commodity      VARCHAR NOT NULL,
		period         VARCHAR NOT NULL,
		short_position DOUBLE NOT NULL DEFAULT 0,
		long_position  DOUBLE NOT NULL DEFAULT 0,
		net_position   DOUBLE NOT NULL DEFAULT 0,
		hedging_ratio  DOUBLE NOT NULL DEFAULT 0,
		last_updated   TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS quality_stats (
		tenant_id         VARCHAR NOT NULL,
		commodity         VARCHAR NOT NULL,
		period            VARCHAR NOT NULL,
		total_inspections INTEGER NOT NULL DEFAULT 0,
		passed_count      INTEGER NOT NULL DEFAULT 0,
		failed_count      INTEGER NOT NULL DEFAULT 0,
		pass_rate         DOUBLE NOT NULL DEFAULT 0,
		failure_rate      DOUBLE NOT NULL DEFAULT 0,
		avg_moisture      DOUBLE,
		avg_protein       DOUBLE,
		last_updated      TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS regulatory_stats (
		tenant_id          VARCHAR NOT NULL,
		commodity          VARCHAR NOT NULL,
		label_type         VARCHAR NOT NULL,
		period             VARCHAR NOT NULL,
		total_declarations INTEGER NOT NULL DEFAULT 0,
		eligible_count     INTEGER NOT NULL DEFAULT 0,
		ineligible_count   INTEGER NOT NULL DEFAULT 0,
		eligibility_rate   DOUBLE NOT NULL DEFAULT 0,
		last_updated       TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS finance_kpis (
		tenant_id          VARCHAR NOT NULL,
		commodity          VARCHAR NOT NULL,
		customer_id        VARCHAR NOT NULL,
		period             VARCHAR NOT NULL,
		total_revenue      DOUBLE NOT NULL DEFAULT 0,
		total_cost         DOUBLE NOT NULL DEFAULT 0,
		gross_margin       DOUBLE NOT NULL DEFAULT 0,
		margin_percentage  DOUBLE NOT NULL DEFAULT 0,
		outstanding_amount DOUBLE NOT NULL DEFAULT 0,
		overdue_amount     DOUBLE NOT NULL DEFAULT 0,
		last_updated       TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS weighing_volumes (
		tenant_id               VARCHAR NOT NULL,
		commodity               VARCHAR NOT NULL,
		customer_id             VARCHAR NOT NULL,
		site_id                 VARCHAR NOT NULL,
		period                  VARCHAR NOT NULL,
		total_weight            DOUBLE NOT NULL DEFAULT 0,
		total_tickets           INTEGER NOT NULL DEFAULT 0,
		avg_weight              DOUBLE NOT NULL DEFAULT 0,
		within_tolerance_count  INTEGER NOT NULL DEFAULT 0,
		outside_tolerance_count INTEGER NOT NULL DEFAULT 0,
		last_updated            TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS kpis (
		id            VARCHAR PRIMARY KEY,
		tenant_id     VARCHAR NOT NULL,
		name          VARCHAR NOT NULL,
		description   VARCHAR,
		value         VARCHAR NOT NULL,
		unit          VARCHAR,
		context       VARCHAR,
		calculated_at TIMESTAMP NOT NULL,
		metadata      VARCHAR,
		version       INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS forecasts (
		id                  VARCHAR PRIMARY KEY,
		tenant_id           VARCHAR NOT NULL,
		metric_name         VARCHAR NOT NULL,
		horizon             INTEGER NOT NULL,
		horizon_unit        VARCHAR NOT NULL,
		model               VARCHAR NOT NULL,
		forecast_values     VARCHAR NOT NULL,
		confidence_interval DOUBLE,
		accuracy            DOUBLE,
		created_at          TIMESTAMP NOT NULL,
		metadata            VARCHAR,
		version             INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE INDEX IF NOT EXISTS idx_kpis_listing ON kpis (tenant_id, name, calculated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_listing ON forecasts (tenant_id, metric_name, created_at)`,
}

// createSchema applies all schema statements in order.
func (db *DB) createSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
