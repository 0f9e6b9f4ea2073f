// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package materializer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tradesight/granary/internal/models"
)

type countingKPIRunner struct {
	calls atomic.Int32
}

func (r *countingKPIRunner) CalculateAll(_ context.Context, _ models.KPIContext) *models.KPIBatchResult {
	r.calls.Add(1)
	return &models.KPIBatchResult{}
}

func TestSchedulerRefreshesDiscoveredTenants(t *testing.T) {
	engine, db, pub := newTestEngine(t)
	seedContract(t, db, "tenant-a")
	seedContract(t, db, "tenant-b")

	kpis := &countingKPIRunner{}
	sched := NewScheduler(engine, db, kpis, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Serve(ctx)
	}()

	deadline := time.After(10 * time.Second)
	for kpis.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("KPI batch ran %d times within 10s, want at least one pass over both tenants", kpis.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve returned %v, want context.Canceled", err)
	}

	// Both tenants got a full refresh pass.
	for _, tenantID := range []string{"tenant-a", "tenant-b"} {
		rows, err := db.ContractPositions(context.Background(), tenantID)
		if err != nil {
			t.Fatalf("ContractPositions(%s): %v", tenantID, err)
		}
		if len(rows) != 1 {
			t.Errorf("%s has %d position rows after scheduled refresh, want 1", tenantID, len(rows))
		}
	}

	if n := len(pub.byType(models.EventTypeAggregationCompleted)); n < 2 {
		t.Errorf("published %d aggregation events, want at least one per tenant", n)
	}
}

func TestSchedulerDisabledWithZeroInterval(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	sched := NewScheduler(engine, db, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Serve(ctx)
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("disabled scheduler did not stop on cancellation")
	}
}
