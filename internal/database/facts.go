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

// Fact inserts are idempotent on (tenant_id, event_id): a row that already
// exists is skipped and reported as not inserted, which the consumer treats
// as success. This is the sole defense against at-least-once redelivery.
//
// The existence check and insert are not atomic across consumer replicas; a
// racing duplicate insert fails on the primary key and is mapped to the
// idempotent-skip outcome rather than an error.

// factExists reports whether a fact row exists for the idempotency key.
func (db *DB) factExists(ctx context.Context, table, tenantID, eventID string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = ? AND event_id = ?)", table)

	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, tenantID, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check fact existence in %s: %w", table, err)
	}
	return exists, nil
}

// insertFact runs the existence check and insert, recording metrics per table.
func (db *DB) insertFact(ctx context.Context, table, tenantID, eventID, insertSQL string, args ...any) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	exists, err := db.factExists(ctx, table, tenantID, eventID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, insertSQL, args...)
	metrics.ObserveQuery("insert", table, start, err)
	if err != nil {
		// A replica may have inserted the same key between check and insert.
		if recheck, recheckErr := db.factExists(ctx, table, tenantID, eventID); recheckErr == nil && recheck {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return true, nil
}

// InsertContractFact appends a contract fact row. Returns false when the
// (tenant_id, event_id) pair was already recorded.
func (db *DB) InsertContractFact(ctx context.Context, f *models.ContractFact) (bool, error) {
	return db.insertFact(ctx, "contract_facts", f.TenantID, f.EventID,
		`INSERT INTO contract_facts (
			tenant_id, event_id, event_type, occurred_at,
			contract_id, contract_type, commodity, quantity, hedged_quantity,
			price, currency, counterparty_id, status, contract_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.ContractID, f.ContractType, f.Commodity, f.Quantity, f.HedgedQuantity,
		f.Price, f.Currency, f.CounterpartyID, f.Status, f.ContractDate, rawJSON(f.Metadata),
	)
}

// InsertProductionFact appends a production fact row.
func (db *DB) InsertProductionFact(ctx context.Context, f *models.ProductionFact) (bool, error) {
	return db.insertFact(ctx, "production_facts", f.TenantID, f.EventID,
		`INSERT INTO production_facts (
			tenant_id, event_id, event_type, occurred_at,
			batch_id, site_id, commodity, quantity, unit, production_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.BatchID, f.SiteID, f.Commodity, f.Quantity, f.Unit, f.ProductionDate, rawJSON(f.Metadata),
	)
}

// InsertWeighingFact appends a weighing fact row.
func (db *DB) InsertWeighingFact(ctx context.Context, f *models.WeighingFact) (bool, error) {
	return db.insertFact(ctx, "weighing_facts", f.TenantID, f.EventID,
		`INSERT INTO weighing_facts (
			tenant_id, event_id, event_type, occurred_at,
			ticket_id, commodity, customer_id, site_id,
			gross_weight, tare_weight, net_weight, within_tolerance,
			status, weighing_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.TicketID, f.Commodity, f.CustomerID, f.SiteID,
		f.GrossWeight, f.TareWeight, f.NetWeight, f.WithinTolerance,
		f.Status, f.WeighingDate, rawJSON(f.Metadata),
	)
}

// InsertQualityFact appends a quality inspection fact row.
func (db *DB) InsertQualityFact(ctx context.Context, f *models.QualityFact) (bool, error) {
	return db.insertFact(ctx, "quality_facts", f.TenantID, f.EventID,
		`INSERT INTO quality_facts (
			tenant_id, event_id, event_type, occurred_at,
			sample_id, commodity, test_type, test_value, passed, inspection_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.SampleID, f.Commodity, f.TestType, f.TestValue, f.Passed, f.InspectionDate, rawJSON(f.Metadata),
	)
}

// InsertRegulatoryFact appends a regulatory declaration fact row.
func (db *DB) InsertRegulatoryFact(ctx context.Context, f *models.RegulatoryFact) (bool, error) {
	return db.insertFact(ctx, "regulatory_facts", f.TenantID, f.EventID,
		`INSERT INTO regulatory_facts (
			tenant_id, event_id, event_type, occurred_at,
			declaration_id, commodity, label_type, eligible, declaration_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.DeclarationID, f.Commodity, f.LabelType, f.Eligible, f.DeclarationDate, rawJSON(f.Metadata),
	)
}

// InsertFinanceFact appends a finance fact row.
func (db *DB) InsertFinanceFact(ctx context.Context, f *models.FinanceFact) (bool, error) {
	return db.insertFact(ctx, "finance_facts", f.TenantID, f.EventID,
		`INSERT INTO finance_facts (
			tenant_id, event_id, event_type, occurred_at,
			invoice_id, customer_id, commodity, revenue, cost,
			status, invoice_date, due_date, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.EventID, f.EventType, f.OccurredAt,
		f.InvoiceID, f.CustomerID, f.Commodity, f.Revenue, f.Cost,
		f.Status, f.InvoiceDate, nullableTime(f.DueDate), rawJSON(f.Metadata),
	)
}

// TenantIDs returns every distinct tenant present in any fact table. Used by
// the refresh scheduler to discover which tenants need materialization.
func (db *DB) TenantIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
	SELECT DISTINCT tenant_id FROM (
		SELECT tenant_id FROM contract_facts
		UNION SELECT tenant_id FROM production_facts
		UNION SELECT tenant_id FROM weighing_facts
		UNION SELECT tenant_id FROM quality_facts
		UNION SELECT tenant_id FROM regulatory_facts
		UNION SELECT tenant_id FROM finance_facts
	) ORDER BY tenant_id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant ids: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// rawJSON converts an optional JSON blob to a nullable column value.
func rawJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}

// nullableTime converts a zero time to a NULL column value.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
