// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/metrics"
	"github.com/tradesight/granary/internal/models"
)

// WAL errors.
var (
	ErrWALClosed     = errors.New("WAL is closed")
	ErrNilEvent      = errors.New("event cannot be nil")
	ErrEmptyEntryID  = errors.New("entry ID cannot be empty")
	ErrEntryNotFound = errors.New("entry not found")
)

// WALConfig holds write-ahead log settings.
type WALConfig struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites forces fsync on every write. Durable but slower.
	SyncWrites bool

	// EntryTTL expires entries that were never confirmed nor retried
	// successfully. Zero disables expiry.
	EntryTTL time.Duration

	// RetryInterval is how often the retry loop scans for pending entries.
	RetryInterval time.Duration

	// MaxRetries is the publish attempt budget before an entry is dropped.
	MaxRetries int

	// CloseTimeout bounds BadgerDB shutdown.
	CloseTimeout time.Duration
}

// DefaultWALConfig returns production defaults for the given path.
func DefaultWALConfig(path string) WALConfig {
	return WALConfig{
		Path:          path,
		SyncWrites:    true,
		EntryTTL:      7 * 24 * time.Hour,
		RetryInterval: 5 * time.Second,
		MaxRetries:    50,
		CloseTimeout:  30 * time.Second,
	}
}

// WALEntry is a single buffered outbound event with retry bookkeeping.
type WALEntry struct {
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// Event deserializes the buffered domain event.
func (e *WALEntry) Event() (*models.DomainEvent, error) {
	var event models.DomainEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal WAL entry %s: %w", e.ID, err)
	}
	return &event, nil
}

// WALStats contains WAL counters for monitoring.
type WALStats struct {
	PendingCount  int64
	TotalWrites   int64
	TotalConfirms int64
	TotalRetries  int64
	DBSizeBytes   int64
}

// WAL buffers outbound domain events in BadgerDB before NATS publishing, so
// events produced while the broker is unreachable survive process restarts.
// Entries are written before the publish attempt and deleted on confirm; the
// retry loop republishes whatever remains.
type WAL struct {
	db     *badger.DB
	config WALConfig

	totalWrites   atomic.Int64
	totalConfirms atomic.Int64
	totalRetries  atomic.Int64

	mu     sync.RWMutex
	closed bool

	// processing tracks entries claimed by a goroutine so the retry loop
	// and startup recovery never republish the same entry concurrently.
	processing sync.Map
}

const walPrefixPending = "pending:"

// OpenWAL opens (or creates) the BadgerDB-backed WAL at cfg.Path.
func OpenWAL(cfg WALConfig) (*WAL, error) {
	if cfg.Path == "" {
		return nil, errors.New("WAL path required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("outbound event WAL opened")

	return &WAL{db: db, config: cfg}, nil
}

// Write persists a domain event before publishing. Returns the entry ID used
// to confirm the entry after a successful publish.
func (w *WAL) Write(ctx context.Context, event *models.DomainEvent) (string, error) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return "", ErrWALClosed
	}
	w.mu.RUnlock()

	if event == nil {
		return "", ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	entryID := uuid.New().String()
	entry := &WALEntry{
		ID:        entryID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	key := []byte(walPrefixPending + entryID)
	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if w.config.EntryTTL > 0 {
			e = e.WithTTL(w.config.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	w.totalWrites.Add(1)
	return entryID, nil
}

// Confirm removes an entry after its event reached the broker.
func (w *WAL) Confirm(ctx context.Context, entryID string) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWALClosed
	}
	w.mu.RUnlock()

	if entryID == "" {
		return ErrEmptyEntryID
	}

	key := []byte(walPrefixPending + entryID)
	err := w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		} else if err != nil {
			return fmt.Errorf("get pending entry: %w", err)
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}

	w.totalConfirms.Add(1)
	return nil
}

// GetPending returns all unconfirmed entries from a consistent snapshot.
// Used by startup recovery and the retry loop.
func (w *WAL) GetPending(ctx context.Context) ([]*WALEntry, error) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil, ErrWALClosed
	}
	w.mu.RUnlock()

	var entries []*WALEntry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(walPrefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var entry WALEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("WAL skipping malformed entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	return entries, nil
}

// UpdateAttempt records a failed publish attempt against an entry.
func (w *WAL) UpdateAttempt(ctx context.Context, entryID, lastError string) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWALClosed
	}
	w.mu.RUnlock()

	key := []byte(walPrefixPending + entryID)
	err := w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var entry WALEntry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	w.totalRetries.Add(1)
	return nil
}

// Delete permanently removes an entry, used when the retry budget is spent.
func (w *WAL) Delete(ctx context.Context, entryID string) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWALClosed
	}
	w.mu.RUnlock()

	key := []byte(walPrefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		return err
	})
}

// TryClaim attempts to claim exclusive processing rights for an entry.
// The caller must Release the entry when done, success or failure.
func (w *WAL) TryClaim(entryID string) bool {
	_, alreadyClaimed := w.processing.LoadOrStore(entryID, time.Now())
	return !alreadyClaimed
}

// Release releases the processing claim on an entry.
func (w *WAL) Release(entryID string) {
	w.processing.Delete(entryID)
}

// Stats counts entries and updates the pending-entries gauge.
func (w *WAL) Stats() WALStats {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return WALStats{}
	}

	var pending int64
	if err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(walPrefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pending++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("WAL stats count failed")
	}

	lsm, vlog := w.db.Size()
	metrics.WALPendingEntries.Set(float64(pending))

	return WALStats{
		PendingCount:  pending,
		TotalWrites:   w.totalWrites.Load(),
		TotalConfirms: w.totalConfirms.Load(),
		TotalRetries:  w.totalRetries.Load(),
		DBSizeBytes:   lsm + vlog,
	}
}

// RunGC triggers BadgerDB value-log garbage collection.
func (w *WAL) RunGC() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWALClosed
	}
	w.mu.RUnlock()

	for {
		err := w.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close shuts down the WAL, bounded by CloseTimeout to avoid hanging the
// supervisor shutdown sequence.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	timeout := w.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	w.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- w.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
