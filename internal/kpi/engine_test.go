// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package kpi

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradesight/granary/internal/config"
	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/models"
)

var testDBSemaphore = make(chan struct{}, 1)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*models.DomainEvent
}

func (p *capturingPublisher) PublishDomainEvent(_ context.Context, event *models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T) (*Engine, *database.DB, *capturingPublisher) {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	pub := &capturingPublisher{}
	return New(db, pub), db, pub
}

// seedPositions inserts a purchase (100, 80 hedged) and a sales contract (60)
// and refreshes the contract positions view.
func seedPositions(t *testing.T, db *database.DB, tenantID string) {
	t.Helper()
	ctx := context.Background()

	contract := func(mutate func(*models.ContractFact)) *models.ContractFact {
		f := &models.ContractFact{
			TenantID:     tenantID,
			EventID:      uuid.New().String(),
			EventType:    "contracts.created",
			OccurredAt:   time.Now().UTC(),
			ContractID:   uuid.New().String(),
			ContractType: "Purchase",
			Commodity:    "wheat",
			Quantity:     100,
			Price:        220,
			Currency:     "EUR",
			Status:       "Confirmed",
			ContractDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		}
		mutate(f)
		return f
	}

	purchase := contract(func(f *models.ContractFact) {
		f.HedgedQuantity = 80
	})
	if _, err := db.InsertContractFact(ctx, purchase); err != nil {
		t.Fatalf("insert purchase: %v", err)
	}
	sales := contract(func(f *models.ContractFact) {
		f.ContractType = "Sales"
		f.Quantity = 60
	})
	if _, err := db.InsertContractFact(ctx, sales); err != nil {
		t.Fatalf("insert sales: %v", err)
	}

	if _, err := db.RefreshView(ctx, models.ViewContractPositions, tenantID); err != nil {
		t.Fatalf("RefreshView: %v", err)
	}
}

func TestCatalogIsComplete(t *testing.T) {
	catalog := Catalog()
	if len(catalog) != 16 {
		t.Fatalf("catalog has %d calculators, want 16", len(catalog))
	}

	seen := map[string]bool{}
	for _, c := range catalog {
		if c.Name == "" || c.Compute == nil || c.Method == "" || c.DataSource == "" {
			t.Errorf("calculator %q incomplete", c.Name)
		}
		if seen[c.Name] {
			t.Errorf("duplicate calculator name %q", c.Name)
		}
		seen[c.Name] = true
	}

	perCategory := map[models.KPICategory]int{}
	for _, c := range catalog {
		perCategory[c.Category]++
	}
	want := map[models.KPICategory]int{
		models.KPICategoryContractPosition: 4,
		models.KPICategoryQuality:          4,
		models.KPICategoryWeighing:         3,
		models.KPICategoryFinance:          4,
		models.KPICategoryRegulatory:       1,
	}
	for cat, n := range want {
		if perCategory[cat] != n {
			t.Errorf("category %s has %d calculators, want %d", cat, perCategory[cat], n)
		}
	}
}

func TestCalculateKnownValues(t *testing.T) {
	eng, db, pub := newTestEngine(t)
	ctx := context.Background()
	seedPositions(t, db, "tenant-a")

	kctx := models.KPIContext{TenantID: "tenant-a"}
	cases := []struct {
		name string
		want float64
	}{
		{"short_position", 100},
		{"long_position", 60},
		{"net_exposure", -40},
		{"hedging_ratio", 0.8},
	}
	for _, tc := range cases {
		result, err := eng.Calculate(ctx, tc.name, kctx)
		if err != nil {
			t.Fatalf("Calculate(%s): %v", tc.name, err)
		}
		if !result.Success {
			t.Fatalf("Calculate(%s) failed: %s", tc.name, result.ErrorMessage)
		}
		got, ok := result.KPI.Value.(float64)
		if !ok {
			t.Fatalf("Calculate(%s) value type %T, want float64", tc.name, result.KPI.Value)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Calculate(%s) = %v, want %v", tc.name, got, tc.want)
		}
		if result.KPI.Version != 1 {
			t.Errorf("Calculate(%s) version = %d, want 1", tc.name, result.KPI.Version)
		}
	}

	if n := pub.count(models.EventTypeKPICalculated); n != len(cases) {
		t.Errorf("published %d kpi.calculated events, want %d", n, len(cases))
	}
}

func TestCalculateUnknownName(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Calculate(context.Background(), "no-such-kpi", models.KPIContext{TenantID: "tenant-a"})
	if err == nil {
		t.Fatal("Calculate with unknown name succeeded, want error")
	}
}

func TestCalculateAllOnEmptyViews(t *testing.T) {
	eng, _, pub := newTestEngine(t)

	batch := eng.CalculateAll(context.Background(), models.KPIContext{TenantID: "tenant-a"})

	if batch.Summary.Total != 16 || batch.Summary.Successful != 16 || batch.Summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 16 total, all successful", batch.Summary)
	}
	if len(batch.Results) != 16 {
		t.Fatalf("results = %d, want 16", len(batch.Results))
	}
	for _, r := range batch.Results {
		if !r.Success {
			t.Errorf("%s failed on empty views: %s", r.KPI.Name, r.ErrorMessage)
		}
		if v, ok := r.KPI.Value.(float64); !ok || v != 0 {
			t.Errorf("%s = %v on empty views, want 0", r.KPI.Name, r.KPI.Value)
		}
	}
	if n := pub.count(models.EventTypeKPICalculated); n != 16 {
		t.Errorf("published %d events, want 16", n)
	}
}

func TestCalculateAllKeepsCatalogOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	batch := eng.CalculateAll(context.Background(), models.KPIContext{TenantID: "tenant-a"})
	for i, c := range Catalog() {
		if batch.Results[i].KPI.Name != c.Name {
			t.Fatalf("result[%d] = %s, want %s", i, batch.Results[i].KPI.Name, c.Name)
		}
	}
}

func TestCalculateAllIsolatesFailures(t *testing.T) {
	eng, db, _ := newTestEngine(t)
	ctx := context.Background()

	eng.catalog = append(eng.catalog, Calculator{
		Name:     "broken",
		Category: models.KPICategoryFinance,
		Unit:     "EUR",
		Compute: func(context.Context, *database.DB, models.KPIContext) (float64, error) {
			return 0, errors.New("source view unavailable")
		},
	})

	batch := eng.CalculateAll(ctx, models.KPIContext{TenantID: "tenant-a"})

	if batch.Summary.Total != 17 || batch.Summary.Successful != 16 || batch.Summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 17/16/1", batch.Summary)
	}

	failed := batch.Results[len(batch.Results)-1]
	if failed.Success {
		t.Fatal("broken calculator reported success")
	}
	if failed.ErrorMessage == "" {
		t.Error("failed result has no error message")
	}
	if v, ok := failed.KPI.Value.(float64); !ok || v != 0 {
		t.Errorf("failed result value = %v, want 0", failed.KPI.Value)
	}

	// Failed runs must not enter the snapshot history.
	kpis, err := db.ListKPIs(ctx, "tenant-a", "broken", 0, 0)
	if err != nil {
		t.Fatalf("ListKPIs: %v", err)
	}
	if len(kpis) != 0 {
		t.Errorf("failed calculation persisted %d snapshots, want 0", len(kpis))
	}
}

func TestCalculateCategory(t *testing.T) {
	eng, db, pub := newTestEngine(t)
	ctx := context.Background()
	seedPositions(t, db, "tenant-a")

	results := eng.CalculateCategory(ctx, models.KPICategoryContractPosition, models.KPIContext{TenantID: "tenant-a"})

	if len(results) != 4 {
		t.Fatalf("got %d results, want the 4 contract position calculators", len(results))
	}
	wantOrder := []string{"hedging_ratio", "short_position", "long_position", "net_exposure"}
	for i, r := range results {
		if r.KPI.Name != wantOrder[i] {
			t.Errorf("result[%d] = %s, want %s", i, r.KPI.Name, wantOrder[i])
		}
		if r.Category != models.KPICategoryContractPosition {
			t.Errorf("%s category = %s", r.KPI.Name, r.Category)
		}
		if !r.Success {
			t.Errorf("%s failed: %s", r.KPI.Name, r.ErrorMessage)
		}
	}

	// Only the category's calculators ran and published.
	if n := pub.count(models.EventTypeKPICalculated); n != 4 {
		t.Errorf("published %d events, want 4", n)
	}
	kpis, err := db.ListKPIs(ctx, "tenant-a", "", 0, 0)
	if err != nil {
		t.Fatalf("ListKPIs: %v", err)
	}
	if len(kpis) != 4 {
		t.Errorf("persisted %d snapshots, want 4", len(kpis))
	}
}

func TestCalculateCategoryUnknownIsEmpty(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	results := eng.CalculateCategory(context.Background(), "inventory", models.KPIContext{TenantID: "tenant-a"})
	if len(results) != 0 {
		t.Fatalf("got %d results for an unknown category, want none", len(results))
	}
}

func TestCalculationMetadataPersisted(t *testing.T) {
	eng, db, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Calculate(ctx, "hedging_ratio", models.KPIContext{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	kpis, err := db.ListKPIs(ctx, "tenant-a", "hedging_ratio", 0, 0)
	if err != nil {
		t.Fatalf("ListKPIs: %v", err)
	}
	if len(kpis) != 1 {
		t.Fatalf("kpis = %d, want 1", len(kpis))
	}
	meta := kpis[0].Metadata
	if meta["calculationMethod"] != "weighted_average" {
		t.Errorf("calculationMethod = %v, want weighted_average", meta["calculationMethod"])
	}
	if meta["dataSource"] != string(models.ViewContractPositions) {
		t.Errorf("dataSource = %v, want %s", meta["dataSource"], models.ViewContractPositions)
	}
}

func TestRecalculationBumpsVersion(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	kctx := models.KPIContext{TenantID: "tenant-a"}

	first, err := eng.Calculate(ctx, "total_revenue", kctx)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	second, err := eng.Calculate(ctx, "total_revenue", kctx)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if first.KPI.Version != 1 || second.KPI.Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", first.KPI.Version, second.KPI.Version)
	}
	if first.KPI.ID == second.KPI.ID {
		t.Error("recalculation reused the KPI ID")
	}
}

func TestCalculationContextPersisted(t *testing.T) {
	eng, db, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Calculate(ctx, "short_position", models.KPIContext{
		TenantID:  "tenant-a",
		Commodity: "wheat",
		Period:    "2026-03",
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	kpis, err := db.ListKPIs(ctx, "tenant-a", "short_position", 0, 0)
	if err != nil {
		t.Fatalf("ListKPIs: %v", err)
	}
	if len(kpis) != 1 {
		t.Fatalf("kpis = %d, want 1", len(kpis))
	}
	if kpis[0].Context["commodity"] != "wheat" || kpis[0].Context["period"] != "2026-03" {
		t.Errorf("context = %v, want commodity and period recorded", kpis[0].Context)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0.123456, 0.12},
		{0.125, 0.13},
		{75.0, 75.0},
		{-40.005, -40.0},
	}
	for _, tc := range cases {
		if got := round2(tc.in); got != tc.want {
			t.Errorf("round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
