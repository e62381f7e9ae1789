package stocksync

import "github.com/google/uuid"

// NewClientRecordID returns a collision-resistant identifier (UUID v4)
// used as the idempotency key for a queued mutation.
func NewClientRecordID() string {
	return uuid.NewString()
}

// NewBatchID identifies one synchronization attempt. Batches are ephemeral;
// the id exists for request correlation only.
func NewBatchID() string {
	return uuid.NewString()
}
