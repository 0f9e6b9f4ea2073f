// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package forecaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tradesight/granary/internal/config"
	"github.com/tradesight/granary/internal/models"
)

// ErrExternalDisabled is returned when the external model is requested but not
// configured. The external path fails closed: no endpoint, no forecast.
var ErrExternalDisabled = errors.New("external forecasting model is not enabled")

// externalRequest is the wire format sent to the external model endpoint. The
// full historical series is forwarded; the endpoint owns the model choice.
type externalRequest struct {
	TenantID           string             `json:"tenantId"`
	MetricName         string             `json:"metricName"`
	Horizon            int                `json:"horizon"`
	HorizonUnit        models.HorizonUnit `json:"horizonUnit"`
	HistoricalData     []models.DataPoint `json:"historicalData"`
	ConfidenceInterval *float64           `json:"confidenceInterval,omitempty"`
}

type externalResponse struct {
	ForecastValues  []models.ForecastValue `json:"forecastValues"`
	Accuracy        *float64               `json:"accuracy,omitempty"`
	ModelParameters map[string]any         `json:"modelParameters,omitempty"`
}

// ExternalClient calls a remote forecasting endpoint, guarded by a circuit
// breaker and a client-side rate limit.
type ExternalClient struct {
	cfg     config.ExternalModelConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*externalResponse]
	limiter *rate.Limiter
}

// NewExternalClient builds a client from configuration. A disabled or
// URL-less configuration still yields a usable client whose Forecast method
// returns ErrExternalDisabled.
func NewExternalClient(cfg config.ExternalModelConfig) *ExternalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker[*externalResponse](gobreaker.Settings{
		Name:        "external-forecast",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ExternalClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Enabled reports whether the external model can be called at all.
func (c *ExternalClient) Enabled() bool {
	return c.cfg.Enabled && c.cfg.URL != ""
}

// Forecast calls the external endpoint and maps its response into forecast
// values. Non-2xx responses and malformed bodies are model errors, reported to
// the caller rather than retried here.
func (c *ExternalClient) Forecast(ctx context.Context, req *models.ForecastRequest) (modelOutput, map[string]any, error) {
	if !c.Enabled() {
		return modelOutput{}, nil, ErrExternalDisabled
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return modelOutput{}, nil, fmt.Errorf("external model rate limit: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*externalResponse, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		return modelOutput{}, nil, err
	}

	if len(resp.ForecastValues) == 0 {
		return modelOutput{}, nil, errors.New("external model returned no forecast values")
	}
	return modelOutput{values: resp.ForecastValues, accuracy: resp.Accuracy}, resp.ModelParameters, nil
}

func (c *ExternalClient) call(ctx context.Context, req *models.ForecastRequest) (*externalResponse, error) {
	body, err := json.Marshal(externalRequest{
		TenantID:           req.TenantID,
		MetricName:         req.MetricName,
		Horizon:            req.Horizon,
		HorizonUnit:        req.HorizonUnit,
		HistoricalData:     req.HistoricalData,
		ConfidenceInterval: req.ConfidenceInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode external model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build external model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("external model request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("external model returned status %d", httpResp.StatusCode)
	}

	var out externalResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode external model response: %w", err)
	}
	return &out, nil
}
