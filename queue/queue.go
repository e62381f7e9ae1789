// Package queue persists the pending-mutation queue and the conflict set,
// each serialized as a single versioned JSON envelope under a fixed key in
// a generic key-value store.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	stocksync "github.com/tallyline/go-stocksync"
	syncErrors "github.com/tallyline/go-stocksync/errors"
	"github.com/tallyline/go-stocksync/storage/kv"
)

const (
	// QueueKey is the fixed key the queue collection lives under.
	QueueKey = "stocksync.queue"

	// ConflictKey is the fixed key the conflict collection lives under.
	ConflictKey = "stocksync.conflicts"

	// EnvelopeVersion is the current schema version of the stored
	// envelope. Older persisted queues written as a bare JSON array are
	// read as version 0 and rewritten under the current version on the
	// next persist.
	EnvelopeVersion = 1
)

// envelope wraps the stored collection with a schema version so future
// migrations of the stored shape don't silently corrupt older queues.
type envelope[T any] struct {
	Version int `json:"version"`
	Records []T `json:"records"`
}

// loadCollection reads and decodes the collection under key. A missing key
// yields an empty collection.
func loadCollection[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	raw, err := store.GetItem(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		if env.Version > EnvelopeVersion {
			return nil, fmt.Errorf("stored envelope version %d is newer than supported version %d", env.Version, EnvelopeVersion)
		}
		return env.Records, nil
	}

	// Legacy shape: a bare JSON array with no envelope.
	var legacy []T
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return nil, fmt.Errorf("corrupt collection under %q: %w", key, err)
	}
	return legacy, nil
}

func persistCollection[T any](ctx context.Context, store kv.Store, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	raw, err := json.Marshal(envelope[T]{Version: EnvelopeVersion, Records: records})
	if err != nil {
		return err
	}
	return store.SetItem(ctx, key, string(raw))
}

// Store is the durable FIFO queue of pending mutations. All operations
// read-modify-write the whole serialized collection; an internal mutex
// serializes them against each other.
type Store struct {
	mu    sync.Mutex
	store kv.Store
	key   string
}

var _ stocksync.QueueStore = (*Store)(nil)

// NewStore returns a queue persisted under QueueKey in the given store.
func NewStore(store kv.Store) *Store {
	return &Store{store: store, key: QueueKey}
}

// NewStoreWithKey returns a queue persisted under a custom key, e.g. to
// give each user session its own queue.
func NewStoreWithKey(store kv.Store, key string) *Store {
	return &Store{store: store, key: key}
}

// Add inserts or updates (by ClientRecordID) a record. On first insert the
// retry count starts at 0; an update-in-place keeps the existing retry
// count and creation time so a record amended mid-retry does not get its
// backoff history wiped. UpdatedAt is always refreshed.
func (s *Store) Add(ctx context.Context, record stocksync.QueueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := loadCollection[stocksync.QueueRecord](ctx, s.store, s.key)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	now := time.Now().UTC()
	record.UpdatedAt = now

	replaced := false
	for i, existing := range records {
		if existing.ClientRecordID == record.ClientRecordID {
			record.RetryCount = existing.RetryCount
			record.CreatedAt = existing.CreatedAt
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		record.RetryCount = 0
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		records = append(records, record)
	}

	if err := persistCollection(ctx, s.store, s.key, records); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPersist, err)
	}
	return nil
}

// List returns all pending records in insertion order.
func (s *Store) List(ctx context.Context) ([]stocksync.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := loadCollection[stocksync.QueueRecord](ctx, s.store, s.key)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return records, nil
}

// Size returns the number of pending records.
func (s *Store) Size(ctx context.Context) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear removes all pending records. Destructive; reserved for an explicit
// user-initiated reset.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.RemoveItem(ctx, s.key); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPersist, err)
	}
	return nil
}

// Reconcile atomically removes the given ids and upserts the given records
// in one read-modify-write, so records enqueued between drain batches are
// not clobbered.
func (s *Store) Reconcile(ctx context.Context, remove []string, update []stocksync.QueueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := loadCollection[stocksync.QueueRecord](ctx, s.store, s.key)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	removeSet := make(map[string]bool, len(remove))
	for _, id := range remove {
		removeSet[id] = true
	}
	updates := make(map[string]stocksync.QueueRecord, len(update))
	for _, r := range update {
		updates[r.ClientRecordID] = r
	}

	next := make([]stocksync.QueueRecord, 0, len(records))
	for _, existing := range records {
		if removeSet[existing.ClientRecordID] {
			continue
		}
		if updated, ok := updates[existing.ClientRecordID]; ok {
			next = append(next, updated)
			delete(updates, existing.ClientRecordID)
			continue
		}
		next = append(next, existing)
	}
	// Updates for ids no longer present are appended rather than dropped.
	for _, r := range update {
		if _, ok := updates[r.ClientRecordID]; ok {
			next = append(next, r)
		}
	}

	if err := persistCollection(ctx, s.store, s.key, next); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpReconcile, err)
	}
	return nil
}
