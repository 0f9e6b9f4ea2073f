// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

type sampleRequest struct {
	TenantID string  `validate:"required"`
	Horizon  int     `validate:"required,min=1"`
	Unit     string  `validate:"omitempty,oneof=days weeks months"`
	Points   []int   `validate:"required,min=3"`
	Rate     float64 `validate:"gte=0"`
}

func validSample() sampleRequest {
	return sampleRequest{
		TenantID: "tenant-a",
		Horizon:  7,
		Unit:     "days",
		Points:   []int{1, 2, 3},
		Rate:     0.5,
	}
}

func TestTranslateNil(t *testing.T) {
	if got := Translate(nil); got != nil {
		t.Fatalf("Translate(nil) = %v, want nil", got)
	}
}

func TestTranslatePassesThroughForeignErrors(t *testing.T) {
	orig := errors.New("duckdb: connection closed")
	if got := Translate(orig); got != orig {
		t.Fatalf("Translate(%v) = %v, want the original error", orig, got)
	}
}

func TestTranslateMessages(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name   string
		mutate func(*sampleRequest)
		want   string
	}{
		{"missing tenant", func(r *sampleRequest) { r.TenantID = "" }, "TenantID is required"},
		{"bad unit", func(r *sampleRequest) { r.Unit = "fortnights" }, "Unit must be one of: days weeks months"},
		{"too few points", func(r *sampleRequest) { r.Points = []int{1} }, "Points must have at least 3 elements"},
		{"negative rate", func(r *sampleRequest) { r.Rate = -1 }, "Rate must be greater than or equal to 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSample()
			tt.mutate(&req)

			err := Translate(v.Struct(req))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestTranslateCollectsAllFields(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	req := validSample()
	req.TenantID = ""
	req.Horizon = 0

	err := Translate(v.Struct(req))

	var es Errors
	if !errors.As(err, &es) {
		t.Fatalf("Translate returned %T, want Errors", err)
	}
	if len(es) != 2 {
		t.Fatalf("got %d field errors, want 2: %v", len(es), es)
	}
	fields := es.Fields()
	if fields[0] != "TenantID" || fields[1] != "Horizon" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Fatalf("combined message %q should join with semicolons", err.Error())
	}
}
