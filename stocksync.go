// Package stocksync provides the offline-first synchronization core for a
// warehouse stock-verification client: a durable FIFO queue of pending
// mutations, a batch sync manager with retry and backoff, conflict records
// requiring explicit dismissal, and network-state gating for writes.
package stocksync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tallyline/go-stocksync/netstate"
)

// RecordStatus is the application-level completeness marker of a queued
// mutation. It is not part of the queue lifecycle.
type RecordStatus string

const (
	StatusPartial   RecordStatus = "partial"
	StatusFinalized RecordStatus = "finalized"
)

// QueueRecord is a pending mutation awaiting delivery. The queue passes the
// domain payload through opaquely; Kind discriminates the payload variant
// so each consumer can strongly type its own.
type QueueRecord struct {
	// ClientRecordID is generated at creation, immutable, and serves as
	// the server-side idempotency key.
	ClientRecordID string `json:"client_record_id"`

	SessionID string `json:"session_id,omitempty"`
	ItemCode  string `json:"item_code,omitempty"`

	// Kind tags the payload variant, e.g. "count", "photo", "condition".
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Status RecordStatus `json:"status"`

	// RetryCount starts at 0 and is incremented on each failed delivery
	// attempt.
	RetryCount int `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConflictRecord is a mutation the server rejected due to a detected state
// clash. It persists until explicitly dismissed; dismissal does not
// resubmit the mutation.
type ConflictRecord struct {
	ClientRecordID string          `json:"client_record_id"`
	ConflictType   string          `json:"conflict_type"`
	Message        string          `json:"message"`
	Details        json.RawMessage `json:"details,omitempty"`
}

// ErrorEntry is a per-record retryable rejection reported by the server.
type ErrorEntry struct {
	ClientRecordID string `json:"client_record_id"`
	ErrorType      string `json:"error_type"`
	Message        string `json:"message"`
}

// BatchRequest is the body POSTed to the remote batch sync endpoint.
type BatchRequest struct {
	Records []QueueRecord `json:"records"`
	BatchID string        `json:"batch_id"`
}

// BatchResponse partitions the batch's record ids into three disjoint
// sets: accepted, conflicted, and retryable errors.
type BatchResponse struct {
	OK               []string         `json:"ok"`
	Conflicts        []ConflictRecord `json:"conflicts"`
	Errors           []ErrorEntry     `json:"errors"`
	BatchID          string           `json:"batch_id,omitempty"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	TotalRecords     int              `json:"total_records"`
}

// QueueStore provides durable FIFO persistence for pending mutations.
// Implementations must upsert by ClientRecordID: re-adding with the same
// id updates in place rather than duplicating.
type QueueStore interface {
	// Add inserts or updates (by ClientRecordID) a record.
	Add(ctx context.Context, record QueueRecord) error

	// List returns all pending records in insertion order.
	List(ctx context.Context) ([]QueueRecord, error)

	// Size returns the number of pending records.
	Size(ctx context.Context) (int, error)

	// Clear removes all pending records. Destructive; reserved for an
	// explicit user-initiated reset, never called automatically.
	Clear(ctx context.Context) error

	// Reconcile atomically removes the given ids and upserts the given
	// records, preserving insertion order of everything else. The drain
	// uses it between batches so concurrent enqueues are not clobbered.
	Reconcile(ctx context.Context, remove []string, update []QueueRecord) error
}

// ConflictStore persists conflict records until explicit dismissal.
type ConflictStore interface {
	Add(ctx context.Context, record ConflictRecord) error
	List(ctx context.Context) ([]ConflictRecord, error)

	// Dismiss removes the conflict for the given record id. It does not
	// resubmit the originating mutation.
	Dismiss(ctx context.Context, clientRecordID string) error

	Size(ctx context.Context) (int, error)
}

// Transport delivers batches to the remote service. A returned error means
// the whole batch was unreachable (transport-level failure), as opposed to
// per-record rejections inside the response.
type Transport interface {
	SendBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	Close() error
}

// NetworkMonitor reports the current connectivity classification used to
// gate direct sends.
type NetworkMonitor interface {
	State() netstate.State
}

// DrainSummary reports the outcome of one queue drain.
type DrainSummary struct {
	// Synced is the number of records accepted and removed from the queue.
	Synced int

	// Conflicts is the number of records moved to the conflict store.
	Conflicts int

	// Errors is the number of per-record retryable errors, including the
	// ones that exhausted their retry budget this drain.
	Errors int

	// Failed lists the ids whose retry count reached the maximum. They
	// remain queryable in the queue store but leave the active retry set.
	Failed []string

	// Unaccounted lists ids the server response mentioned in none of the
	// three sets, kept queued for retry.
	Unaccounted []string

	// Total is the number of records in the drain snapshot.
	Total int

	StartTime time.Time
	Duration  time.Duration
}

// SyncManager coordinates queueing and draining of pending mutations.
type SyncManager interface {
	// Submit is the queue-or-send decision point for a mutation. It sends
	// directly only when the network state allows writes; otherwise, or
	// when a direct send fails at the transport level, the record is
	// enqueued. The returned flag reports whether the record was queued.
	Submit(ctx context.Context, record QueueRecord) (queued bool, err error)

	// SyncQueue drains the queue in batches. Concurrent calls share one
	// drain: the second caller awaits the in-flight drain and receives
	// its summary.
	SyncQueue(ctx context.Context) (*DrainSummary, error)

	// StartAutoSync begins periodic drains at the configured interval.
	StartAutoSync(ctx context.Context) error

	// StopAutoSync stops periodic drains.
	StopAutoSync() error

	// OnNetworkChange is a netstate.Listener; register it with a detector
	// to trigger a drain when connectivity is restored.
	OnNetworkChange(old, new netstate.State)

	// Subscribe registers a handler invoked with each drain summary.
	Subscribe(handler func(*DrainSummary)) error

	// Close shuts down the manager and its transport.
	Close() error
}
