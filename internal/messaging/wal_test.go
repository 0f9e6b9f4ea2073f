// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradesight/granary/internal/models"
)

func openTestWAL(t *testing.T) *WAL {
	t.Helper()

	cfg := DefaultWALConfig(t.TempDir())
	cfg.SyncWrites = false // speed up tests

	w, err := OpenWAL(cfg)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return w
}

func testDomainEvent(t *testing.T) *models.DomainEvent {
	t.Helper()

	event, err := models.NewDomainEvent(models.EventTypeKPICalculated, "tenant-a", models.KPICalculatedPayload{
		KPIName:      "hedging_ratio",
		Value:        0.85,
		CalculatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("NewDomainEvent: %v", err)
	}
	return event
}

func TestWALWriteConfirm(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()

	entryID, err := w.Write(ctx, testDomainEvent(t))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if entryID == "" {
		t.Fatal("Write returned empty entry ID")
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ID != entryID {
		t.Errorf("pending ID = %s, want %s", pending[0].ID, entryID)
	}

	if err := w.Confirm(ctx, entryID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	pending, err = w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending after confirm: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after confirm = %d, want 0", len(pending))
	}
}

func TestWALConfirmUnknownEntry(t *testing.T) {
	w := openTestWAL(t)

	err := w.Confirm(context.Background(), "no-such-entry")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Confirm unknown = %v, want ErrEntryNotFound", err)
	}
}

func TestWALEntryRoundTrip(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()

	original := testDomainEvent(t)
	if _, err := w.Write(ctx, original); err != nil {
		t.Fatalf("Write: %v", err)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	event, err := pending[0].Event()
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if event.EventID != original.EventID {
		t.Errorf("EventID = %s, want %s", event.EventID, original.EventID)
	}
	if event.EventType != models.EventTypeKPICalculated {
		t.Errorf("EventType = %s, want %s", event.EventType, models.EventTypeKPICalculated)
	}
	if event.TenantID != "tenant-a" {
		t.Errorf("TenantID = %s, want tenant-a", event.TenantID)
	}
}

func TestWALUpdateAttempt(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()

	entryID, err := w.Write(ctx, testDomainEvent(t))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := w.UpdateAttempt(ctx, entryID, "nats: connection refused"); err != nil {
		t.Fatalf("UpdateAttempt: %v", err)
	}
	if err := w.UpdateAttempt(ctx, entryID, "nats: connection refused"); err != nil {
		t.Fatalf("UpdateAttempt second: %v", err)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", pending[0].Attempts)
	}
	if pending[0].LastError != "nats: connection refused" {
		t.Errorf("LastError = %q", pending[0].LastError)
	}
}

func TestWALDelete(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()

	entryID, err := w.Write(ctx, testDomainEvent(t))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Delete(ctx, entryID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after delete = %d, want 0", len(pending))
	}
}

func TestWALClaimRelease(t *testing.T) {
	w := openTestWAL(t)

	if !w.TryClaim("entry-1") {
		t.Fatal("first claim should succeed")
	}
	if w.TryClaim("entry-1") {
		t.Fatal("second claim on held entry should fail")
	}
	w.Release("entry-1")
	if !w.TryClaim("entry-1") {
		t.Fatal("claim after release should succeed")
	}
}

func TestWALStats(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := w.Write(ctx, testDomainEvent(t)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	stats := w.Stats()
	if stats.PendingCount != 3 {
		t.Errorf("PendingCount = %d, want 3", stats.PendingCount)
	}
	if stats.TotalWrites != 3 {
		t.Errorf("TotalWrites = %d, want 3", stats.TotalWrites)
	}
}

func TestWALClosedOperations(t *testing.T) {
	cfg := DefaultWALConfig(t.TempDir())
	cfg.SyncWrites = false

	w, err := OpenWAL(cfg)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := context.Background()
	if _, err := w.Write(ctx, testDomainEvent(t)); !errors.Is(err, ErrWALClosed) {
		t.Errorf("Write on closed = %v, want ErrWALClosed", err)
	}
	if err := w.Confirm(ctx, "x"); !errors.Is(err, ErrWALClosed) {
		t.Errorf("Confirm on closed = %v, want ErrWALClosed", err)
	}
	if _, err := w.GetPending(ctx); !errors.Is(err, ErrWALClosed) {
		t.Errorf("GetPending on closed = %v, want ErrWALClosed", err)
	}
}
