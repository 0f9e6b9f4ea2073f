// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package forecaster

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradesight/granary/internal/models"
)

func TestJanitorSweepExpiresFactlessTenants(t *testing.T) {
	svc, db, _ := newTestService(t, testForecastingConfig())
	ctx := context.Background()

	// tenant-x has forecasts but no fact rows at all; the sweep must still
	// find and expire them.
	insert := func(tenantID string, age time.Duration) {
		t.Helper()
		f := &models.Forecast{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			MetricName:  "total_weight",
			Horizon:     7,
			HorizonUnit: models.HorizonDays,
			Model:       models.ModelRuleBased,
			ForecastValues: []models.ForecastValue{
				{Timestamp: time.Now().UTC(), Value: 1},
			},
			CreatedAt: time.Now().UTC().Add(-age),
			Version:   1,
		}
		if err := db.InsertForecast(ctx, f, nil); err != nil {
			t.Fatalf("InsertForecast: %v", err)
		}
	}
	insert("tenant-x", 120*24*time.Hour)
	insert("tenant-x", 24*time.Hour)
	insert("tenant-y", 120*24*time.Hour)

	j := NewJanitor(svc, db)
	j.sweep(ctx)

	for tenant, want := range map[string]int{"tenant-x": 1, "tenant-y": 0} {
		remaining, err := db.ListForecasts(ctx, tenant, models.ForecastFilter{})
		if err != nil {
			t.Fatalf("ListForecasts %s: %v", tenant, err)
		}
		if len(remaining) != want {
			t.Errorf("%s has %d forecasts after sweep, want %d", tenant, len(remaining), want)
		}
	}
}
