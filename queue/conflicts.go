package queue

import (
	"context"
	"sync"

	stocksync "github.com/tallyline/go-stocksync"
	syncErrors "github.com/tallyline/go-stocksync/errors"
	"github.com/tallyline/go-stocksync/storage/kv"
)

// Conflicts persists conflict records until explicit dismissal. Dismissal
// removes the record and never resubmits the originating mutation.
type Conflicts struct {
	mu    sync.Mutex
	store kv.Store
	key   string
}

var _ stocksync.ConflictStore = (*Conflicts)(nil)

// NewConflicts returns a conflict store persisted under ConflictKey.
func NewConflicts(store kv.Store) *Conflicts {
	return &Conflicts{store: store, key: ConflictKey}
}

// NewConflictsWithKey returns a conflict store persisted under a custom key.
func NewConflictsWithKey(store kv.Store, key string) *Conflicts {
	return &Conflicts{store: store, key: key}
}

// Add inserts or updates (by ClientRecordID) a conflict record.
func (c *Conflicts) Add(ctx context.Context, record stocksync.ConflictRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := loadCollection[stocksync.ConflictRecord](ctx, c.store, c.key)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	replaced := false
	for i, existing := range records {
		if existing.ClientRecordID == record.ClientRecordID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}

	if err := persistCollection(ctx, c.store, c.key, records); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPersist, err)
	}
	return nil
}

// List returns all open conflicts in insertion order.
func (c *Conflicts) List(ctx context.Context) ([]stocksync.ConflictRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := loadCollection[stocksync.ConflictRecord](ctx, c.store, c.key)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return records, nil
}

// Dismiss removes the conflict for the given record id. Dismissing an
// unknown id is not an error.
func (c *Conflicts) Dismiss(ctx context.Context, clientRecordID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := loadCollection[stocksync.ConflictRecord](ctx, c.store, c.key)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	next := records[:0]
	for _, existing := range records {
		if existing.ClientRecordID != clientRecordID {
			next = append(next, existing)
		}
	}

	if err := persistCollection(ctx, c.store, c.key, next); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPersist, err)
	}
	return nil
}

// Size returns the number of open conflicts.
func (c *Conflicts) Size(ctx context.Context) (int, error) {
	records, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
