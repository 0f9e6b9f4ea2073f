// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package forecaster

import (
	"context"
	"time"

	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/logging"
)

// Janitor expires forecasts past the configured retention for every known
// tenant. It runs as a supervised service with a daily sweep.
type Janitor struct {
	svc      *Service
	db       *database.DB
	interval time.Duration
}

func NewJanitor(svc *Service, db *database.DB) *Janitor {
	return &Janitor{svc: svc, db: db, interval: 24 * time.Hour}
}

// Serve implements suture.Service. The first sweep runs immediately so a
// restart never postpones retention by a full interval.
func (j *Janitor) Serve(ctx context.Context) error {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) String() string {
	return "forecast-janitor"
}

func (j *Janitor) sweep(ctx context.Context) {
	// Tenants are discovered from the forecasts table itself: a tenant whose
	// facts are gone can still hold forecasts past retention.
	tenants, err := j.db.ForecastTenantIDs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("forecast retention sweep could not enumerate tenants")
		return
	}

	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := j.svc.CleanupOld(ctx, tenantID, 0); err != nil {
			logging.Warn().Err(err).Str("tenant_id", tenantID).Msg("forecast retention sweep failed")
		}
	}
}
