// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package forecaster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
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

func testForecastingConfig() *config.ForecastingConfig {
	return &config.ForecastingConfig{
		MaxHorizon:    30,
		RetentionDays: 90,
	}
}

func newTestService(t *testing.T, cfg *config.ForecastingConfig) (*Service, *database.DB, *capturingPublisher) {
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
	return New(db, pub, cfg), db, pub
}

func dailyPoints(values ...float64) []models.DataPoint {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.DataPoint, len(values))
	for i, v := range values {
		points[i] = models.DataPoint{Timestamp: start.AddDate(0, 0, i), Value: v}
	}
	return points
}

func forecastRequest(mutate func(*models.ForecastRequest)) *models.ForecastRequest {
	req := &models.ForecastRequest{
		TenantID:       "tenant-a",
		MetricName:     "total_weight",
		Horizon:        5,
		HorizonUnit:    models.HorizonDays,
		Model:          models.ModelLinearRegression,
		HistoricalData: dailyPoints(1, 2, 3, 4, 5),
	}
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestGenerateLinearRegression(t *testing.T) {
	svc, db, pub := newTestService(t, testForecastingConfig())
	ctx := context.Background()

	result := svc.Generate(ctx, forecastRequest(nil))
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.ErrorMessage)
	}
	if result.ModelUsed != models.ModelLinearRegression {
		t.Errorf("model = %s, want linear_regression", result.ModelUsed)
	}
	if result.Accuracy == nil || *result.Accuracy < 0.99 {
		t.Errorf("accuracy = %v, want ~1", result.Accuracy)
	}

	f := result.Forecast
	if f.Version != 1 {
		t.Errorf("version = %d, want 1", f.Version)
	}
	if len(f.ForecastValues) != 5 {
		t.Fatalf("forecast values = %d, want 5", len(f.ForecastValues))
	}
	if got := f.ForecastValues[0].Value; got < 5.99 || got > 6.01 {
		t.Errorf("first projection = %v, want ~6", got)
	}

	stored, err := db.ListForecasts(ctx, "tenant-a", models.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != f.ID {
		t.Fatalf("stored = %d forecasts, want the generated one", len(stored))
	}

	if n := pub.count(models.EventTypeForecastCreated); n != 1 {
		t.Errorf("published %d forecast.created events, want 1", n)
	}
}

func TestGenerateValidationRejectsBeforePersistence(t *testing.T) {
	svc, db, pub := newTestService(t, testForecastingConfig())
	ctx := context.Background()

	badCI := 1.0
	cases := []struct {
		name   string
		mutate func(*models.ForecastRequest)
	}{
		{"zero horizon", func(r *models.ForecastRequest) { r.Horizon = 0 }},
		{"horizon above maximum", func(r *models.ForecastRequest) { r.Horizon = 31 }},
		{"too little history", func(r *models.ForecastRequest) { r.HistoricalData = dailyPoints(1, 2) }},
		{"confidence interval at bound", func(r *models.ForecastRequest) { r.ConfidenceInterval = &badCI }},
		{"unknown horizon unit", func(r *models.ForecastRequest) { r.HorizonUnit = "fortnights" }},
		{"missing tenant", func(r *models.ForecastRequest) { r.TenantID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.Generate(ctx, forecastRequest(tc.mutate))
			if result.Success {
				t.Fatal("Generate succeeded, want validation failure")
			}
			if result.Forecast == nil {
				t.Fatal("failed result has nil forecast placeholder")
			}
			if result.ErrorMessage == "" {
				t.Error("failed result has no error message")
			}
		})
	}

	stored, err := db.ListForecasts(ctx, "tenant-a", models.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("validation failures persisted %d forecasts, want 0", len(stored))
	}
	if n := pub.count(models.EventTypeForecastCreated); n != 0 {
		t.Errorf("validation failures published %d events, want 0", n)
	}
}

func TestGenerateUnknownModelFallsBackToRuleBased(t *testing.T) {
	svc, _, _ := newTestService(t, testForecastingConfig())

	result := svc.Generate(context.Background(), forecastRequest(func(r *models.ForecastRequest) {
		r.Model = "prophet"
	}))
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.ErrorMessage)
	}
	if result.ModelUsed != models.ModelRuleBased {
		t.Errorf("model = %s, want rule_based fallback", result.ModelUsed)
	}
	if result.Accuracy == nil || *result.Accuracy != 0.5 {
		t.Errorf("accuracy = %v, want 0.5", result.Accuracy)
	}
}

func TestGenerateDefaultsHorizonUnitToDays(t *testing.T) {
	svc, _, _ := newTestService(t, testForecastingConfig())

	result := svc.Generate(context.Background(), forecastRequest(func(r *models.ForecastRequest) {
		r.HorizonUnit = ""
	}))
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.ErrorMessage)
	}
	if result.Forecast.HorizonUnit != models.HorizonDays {
		t.Errorf("horizon unit = %s, want days", result.Forecast.HorizonUnit)
	}
}

func TestGenerateExternalFailsClosed(t *testing.T) {
	svc, db, _ := newTestService(t, testForecastingConfig())
	ctx := context.Background()

	result := svc.Generate(ctx, forecastRequest(func(r *models.ForecastRequest) {
		r.Model = models.ModelExternal
	}))
	if result.Success {
		t.Fatal("Generate succeeded with external model disabled")
	}
	if !strings.Contains(result.ErrorMessage, "not enabled") {
		t.Errorf("error = %q, want mention of the model being disabled", result.ErrorMessage)
	}

	stored, err := db.ListForecasts(ctx, "tenant-a", models.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("failed external forecast persisted %d rows, want 0", len(stored))
	}
}

func TestGenerateExternalModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req externalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.MetricName != "total_weight" || len(req.HistoricalData) != 5 {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}

		acc := 0.9
		values := make([]models.ForecastValue, req.Horizon)
		for i := range values {
			values[i] = models.ForecastValue{
				Timestamp: time.Date(2026, 7, 1+i, 0, 0, 0, 0, time.UTC),
				Value:     42,
			}
		}
		_ = json.NewEncoder(w).Encode(externalResponse{
			ForecastValues:  values,
			Accuracy:        &acc,
			ModelParameters: map[string]any{"order": "1,0,0"},
		})
	}))
	defer server.Close()

	cfg := testForecastingConfig()
	cfg.External = config.ExternalModelConfig{
		Enabled: true,
		URL:     server.URL,
		Timeout: 5 * time.Second,
	}
	svc, _, pub := newTestService(t, cfg)

	result := svc.Generate(context.Background(), forecastRequest(func(r *models.ForecastRequest) {
		r.Model = models.ModelExternal
	}))
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.ErrorMessage)
	}
	if result.ModelUsed != models.ModelExternal {
		t.Errorf("model = %s, want external", result.ModelUsed)
	}
	if result.Accuracy == nil || *result.Accuracy != 0.9 {
		t.Errorf("accuracy = %v, want 0.9", result.Accuracy)
	}
	if len(result.Forecast.ForecastValues) != 5 || result.Forecast.ForecastValues[0].Value != 42 {
		t.Errorf("forecast values not mapped from the external response")
	}
	if _, ok := result.Forecast.Metadata["modelParameters"]; !ok {
		t.Error("model parameters missing from forecast metadata")
	}
	if n := pub.count(models.EventTypeForecastCreated); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

func TestGenerateExternalErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testForecastingConfig()
	cfg.External = config.ExternalModelConfig{
		Enabled: true,
		URL:     server.URL,
		Timeout: 5 * time.Second,
	}
	svc, _, _ := newTestService(t, cfg)

	result := svc.Generate(context.Background(), forecastRequest(func(r *models.ForecastRequest) {
		r.Model = models.ModelExternal
	}))
	if result.Success {
		t.Fatal("Generate succeeded against a failing external endpoint")
	}
	if !strings.Contains(result.ErrorMessage, "503") {
		t.Errorf("error = %q, want the upstream status surfaced", result.ErrorMessage)
	}
}

func TestCleanupOld(t *testing.T) {
	svc, db, _ := newTestService(t, testForecastingConfig())
	ctx := context.Background()

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

	insert("tenant-a", 120*24*time.Hour)
	insert("tenant-a", 24*time.Hour)
	insert("tenant-b", 120*24*time.Hour)

	deleted, err := svc.CleanupOld(ctx, "tenant-a", 90)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	remaining, err := db.ListForecasts(ctx, "tenant-a", models.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("tenant-a has %d forecasts, want 1", len(remaining))
	}

	other, err := db.ListForecasts(ctx, "tenant-b", models.ForecastFilter{})
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("tenant-b has %d forecasts, want 1 (untouched)", len(other))
	}
}

func TestCleanupOldDefaultsToConfiguredRetention(t *testing.T) {
	cfg := testForecastingConfig()
	cfg.RetentionDays = 30
	svc, db, _ := newTestService(t, cfg)
	ctx := context.Background()

	f := &models.Forecast{
		ID:          uuid.New().String(),
		TenantID:    "tenant-a",
		MetricName:  "total_weight",
		Horizon:     7,
		HorizonUnit: models.HorizonDays,
		Model:       models.ModelRuleBased,
		CreatedAt:   time.Now().UTC().AddDate(0, 0, -45),
		Version:     1,
	}
	if err := db.InsertForecast(ctx, f, nil); err != nil {
		t.Fatalf("InsertForecast: %v", err)
	}

	deleted, err := svc.CleanupOld(ctx, "tenant-a", 0)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 with the 30-day configured retention", deleted)
	}
}
