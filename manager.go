package stocksync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/tallyline/go-stocksync/errors"
	"github.com/tallyline/go-stocksync/netstate"
)

// syncManager implements the SyncManager interface
type syncManager struct {
	queue     QueueStore
	conflicts ConflictStore
	transport Transport
	monitor   NetworkMonitor
	options   SyncOptions
	logger    *slog.Logger

	// Internal state
	mu           sync.Mutex
	inflight     *inflightDrain
	autoSyncStop chan struct{}
	subscribers  []func(*DrainSummary)
	closed       bool
}

// inflightDrain lets concurrent SyncQueue callers share one drain.
type inflightDrain struct {
	done    chan struct{}
	summary *DrainSummary
	err     error
}

// Submit is the queue-or-send decision point for a mutation.
func (sm *syncManager) Submit(ctx context.Context, record QueueRecord) (bool, error) {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return false, syncErrors.New(syncErrors.OpEnqueue, fmt.Errorf("sync manager is closed"))
	}
	sm.mu.Unlock()

	now := time.Now().UTC()
	if record.ClientRecordID == "" {
		record.ClientRecordID = NewClientRecordID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	// Writes go out directly only on a confirmed ONLINE state; UNKNOWN is
	// treated as unsafe and forces the record into the queue.
	if sm.monitor != nil && sm.monitor.State().ShouldAllowWrites() {
		sent, err := sm.sendDirect(ctx, record)
		if sent || err != nil {
			return false, err
		}
		sm.logger.Warn("Direct send failed, falling back to queue",
			"client_record_id", record.ClientRecordID)
	}

	if err := sm.queue.Add(ctx, record); err != nil {
		sm.logger.Error("Failed to enqueue record",
			"client_record_id", record.ClientRecordID,
			"error", err)
		return false, syncErrors.NewStorageError(syncErrors.OpEnqueue, err)
	}

	sm.logger.Debug("Record queued for later sync",
		"client_record_id", record.ClientRecordID,
		"kind", record.Kind)
	return true, nil
}

// sendDirect attempts a single-record batch. It reports whether the record
// was handled (accepted or converted to a conflict); a false return with a
// nil error means the caller should enqueue instead.
func (sm *syncManager) sendDirect(ctx context.Context, record QueueRecord) (bool, error) {
	opCtx, cancel := sm.withTimeout(ctx)
	defer cancel()

	req := BatchRequest{Records: []QueueRecord{record}, BatchID: NewBatchID()}
	resp, err := sm.transport.SendBatch(opCtx, req)
	if err != nil {
		sm.logger.Debug("Direct send transport failure",
			"client_record_id", record.ClientRecordID,
			"error", err)
		return false, nil
	}

	for _, id := range resp.OK {
		if id == record.ClientRecordID {
			sm.logger.Debug("Record accepted on direct send",
				"client_record_id", record.ClientRecordID)
			return true, nil
		}
	}

	for _, c := range resp.Conflicts {
		if c.ClientRecordID != record.ClientRecordID {
			continue
		}
		if err := sm.conflicts.Add(ctx, c); err != nil {
			return false, syncErrors.NewStorageError(syncErrors.OpPersist, err)
		}
		sm.logger.Info("Direct send reported a conflict",
			"client_record_id", record.ClientRecordID,
			"conflict_type", c.ConflictType)
		return true, syncErrors.NewConflictError(syncErrors.OpEnqueue,
			fmt.Errorf("record %s conflicted: %s", c.ClientRecordID, c.Message))
	}

	// Per-record error or unaccounted: queue it for the retry machinery.
	return false, nil
}

// SyncQueue drains the queue in batches, sharing the drain with any
// concurrent caller.
func (sm *syncManager) SyncQueue(ctx context.Context) (*DrainSummary, error) {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return nil, syncErrors.New(syncErrors.OpDrain, fmt.Errorf("sync manager is closed"))
	}
	if fl := sm.inflight; fl != nil {
		sm.mu.Unlock()
		sm.logger.Debug("Drain already in flight, awaiting its result")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-fl.done:
			return fl.summary, fl.err
		}
	}
	fl := &inflightDrain{done: make(chan struct{})}
	sm.inflight = fl
	sm.mu.Unlock()

	summary, err := sm.drain(ctx)

	fl.summary, fl.err = summary, err
	sm.mu.Lock()
	sm.inflight = nil
	sm.mu.Unlock()
	close(fl.done)

	if summary != nil {
		sm.notifySubscribers(summary)
	}
	return summary, err
}

func (sm *syncManager) drain(ctx context.Context) (*DrainSummary, error) {
	summary := &DrainSummary{StartTime: time.Now()}
	defer func() {
		summary.Duration = time.Since(summary.StartTime)
		sm.options.MetricsCollector.RecordDrainDuration("drain", summary.Duration)
		sm.options.MetricsCollector.RecordRecords(summary.Synced, summary.Conflicts, summary.Errors)
	}()

	all, err := sm.queue.List(ctx)
	if err != nil {
		sm.logger.Error("Failed to read queue snapshot", "error", err)
		sm.options.MetricsCollector.RecordDrainErrors("drain", "storage_failure")
		return summary, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	// Records that exhausted their retry budget stay queryable in the
	// store but leave the active retry set.
	pending := make([]QueueRecord, 0, len(all))
	for _, r := range all {
		if r.RetryCount < sm.options.MaxRetries {
			pending = append(pending, r)
		}
	}
	summary.Total = len(pending)

	if len(pending) == 0 {
		sm.logger.Debug("Nothing to drain")
		return summary, nil
	}

	sm.logger.Info("Starting queue drain",
		"total_records", summary.Total,
		"batch_size", sm.options.BatchSize)

	netFailures := 0
	processed := 0

	for i := 0; i < len(pending); i += sm.options.BatchSize {
		end := i + sm.options.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		for {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			default:
			}

			batchID := NewBatchID()
			opCtx, cancel := sm.withTimeout(ctx)
			resp, err := sm.transport.SendBatch(opCtx, BatchRequest{Records: batch, BatchID: batchID})
			cancel()

			if err != nil {
				// Transport-level failure covers the whole batch: no
				// per-record increments, pause and back off instead of
				// hammering a downed endpoint.
				if !syncErrors.IsRetryable(err) {
					sm.logger.Error("Batch rejected with non-retryable transport error",
						"batch_id", batchID, "error", err)
					sm.options.MetricsCollector.RecordDrainErrors("drain", "transport_rejected")
					return summary, err
				}

				netFailures++
				if netFailures >= sm.options.MaxNetworkAttempts {
					sm.logger.Warn("Drain aborted after consecutive transport failures",
						"failures", netFailures, "error", err)
					sm.options.MetricsCollector.RecordDrainErrors("drain", "network_failure")
					return summary, err
				}

				delay := sm.options.Backoff.Delay(netFailures - 1)
				sm.logger.Warn("Transport failure, pausing before resuming drain",
					"batch_id", batchID,
					"failures", netFailures,
					"delay", delay,
					"error", err)

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return summary, ctx.Err()
				case <-timer.C:
				}
				continue
			}

			netFailures = 0
			if err := sm.applyResponse(ctx, batch, resp, summary); err != nil {
				return summary, err
			}
			break
		}

		processed += len(batch)
		if sm.options.OnProgress != nil {
			sm.options.OnProgress(processed, summary.Total)
		}
	}

	sm.logger.Info("Queue drain completed",
		"synced", summary.Synced,
		"conflicts", summary.Conflicts,
		"errors", summary.Errors,
		"permanently_failed", len(summary.Failed),
		"unaccounted", len(summary.Unaccounted))

	return summary, nil
}

// applyResponse reconciles one batch response against the queue and the
// conflict store, persisting before the next batch is sent so a crash
// mid-drain loses at most the in-flight batch's state.
func (sm *syncManager) applyResponse(ctx context.Context, batch []QueueRecord, resp *BatchResponse, summary *DrainSummary) error {
	accepted := make(map[string]bool, len(resp.OK))
	for _, id := range resp.OK {
		accepted[id] = true
	}
	conflicted := make(map[string]ConflictRecord, len(resp.Conflicts))
	for _, c := range resp.Conflicts {
		conflicted[c.ClientRecordID] = c
	}
	errored := make(map[string]ErrorEntry, len(resp.Errors))
	for _, e := range resp.Errors {
		errored[e.ClientRecordID] = e
	}

	now := time.Now().UTC()
	var remove []string
	var update []QueueRecord

	for _, rec := range batch {
		id := rec.ClientRecordID
		switch {
		case accepted[id]:
			summary.Synced++
			remove = append(remove, id)

		case conflictedEntry(conflicted, id):
			c := conflicted[id]
			// Conflicts are never auto-resolved; silently overwriting a
			// physical stock count is unacceptable.
			if err := sm.conflicts.Add(ctx, c); err != nil {
				sm.logger.Error("Failed to persist conflict record",
					"client_record_id", id, "error", err)
				return syncErrors.NewStorageError(syncErrors.OpPersist, err)
			}
			summary.Conflicts++
			remove = append(remove, id)
			sm.logger.Info("Record moved to conflict store",
				"client_record_id", id,
				"conflict_type", c.ConflictType)

		case erroredEntry(errored, id):
			e := errored[id]
			rec.RetryCount++
			rec.UpdatedAt = now
			summary.Errors++
			update = append(update, rec)
			if rec.RetryCount >= sm.options.MaxRetries {
				// Reported, not silently discarded. The record stays in
				// the store until manually cleared but leaves the active
				// retry set.
				summary.Failed = append(summary.Failed, id)
				sm.logger.Warn("Record exhausted its retry budget",
					"client_record_id", id,
					"retry_count", rec.RetryCount,
					"error_type", e.ErrorType,
					"message", e.Message)
			} else {
				sm.logger.Debug("Record scheduled for retry",
					"client_record_id", id,
					"retry_count", rec.RetryCount,
					"error_type", e.ErrorType)
			}

		default:
			// The server mentioned this id in none of the three sets.
			if sm.options.SkipResponseValidation {
				// Trust the response shape; the record stays queued as-is.
				continue
			}
			rec.RetryCount++
			rec.UpdatedAt = now
			summary.Errors++
			summary.Unaccounted = append(summary.Unaccounted, id)
			update = append(update, rec)
			protoErr := syncErrors.NewProtocolError(syncErrors.OpSendBatch,
				fmt.Errorf("record %s missing from batch response partition", id))
			sm.logger.Error("Batch response dropped a record id",
				"client_record_id", id,
				"batch_id", resp.BatchID,
				"error", protoErr)
			sm.options.MetricsCollector.RecordDrainErrors("drain", "protocol_violation")
		}
	}

	if err := sm.queue.Reconcile(ctx, remove, update); err != nil {
		sm.logger.Error("Failed to persist queue after batch", "error", err)
		return syncErrors.NewStorageError(syncErrors.OpReconcile, err)
	}
	return nil
}

func conflictedEntry(m map[string]ConflictRecord, id string) bool {
	_, ok := m[id]
	return ok
}

func erroredEntry(m map[string]ErrorEntry, id string) bool {
	_, ok := m[id]
	return ok
}

func (sm *syncManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if sm.options.Timeout > 0 {
		return context.WithTimeout(ctx, sm.options.Timeout)
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// OnNetworkChange triggers a drain when connectivity is restored. Register
// it with a netstate.Detector.
func (sm *syncManager) OnNetworkChange(old, new netstate.State) {
	if new != netstate.Online || old == netstate.Online {
		return
	}

	sm.logger.Info("Connectivity restored, triggering queue drain",
		"previous_state", old.String())

	go func() {
		ctx, cancel := sm.withTimeout(context.Background())
		defer cancel()
		if _, err := sm.SyncQueue(ctx); err != nil {
			sm.logger.Error("Connectivity-triggered drain failed", "error", err)
		}
	}()
}

// StartAutoSync begins periodic drains at the configured interval
func (sm *syncManager) StartAutoSync(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if sm.closed {
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("sync manager is closed"))
	}

	if sm.options.SyncInterval <= 0 {
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("sync interval must be positive"))
	}

	if sm.autoSyncStop != nil {
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("auto sync is already running"))
	}

	stopChan := make(chan struct{})
	sm.autoSyncStop = stopChan

	go func() {
		sm.logger.Info("Auto sync started", "interval", sm.options.SyncInterval)
		ticker := time.NewTicker(sm.options.SyncInterval)
		defer func() {
			ticker.Stop()
			sm.logger.Info("Auto sync stopped")
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopChan:
				return
			case <-ticker.C:
				syncCtx, cancel := sm.withTimeout(ctx)
				_, err := sm.SyncQueue(syncCtx)
				cancel()
				if err != nil {
					sm.logger.Error("Auto sync drain failed", "error", err)
				}
			}
		}
	}()

	return nil
}

// StopAutoSync stops periodic drains
func (sm *syncManager) StopAutoSync() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.autoSyncStop == nil {
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("auto sync is not running"))
	}

	close(sm.autoSyncStop)
	sm.autoSyncStop = nil
	return nil
}

// Subscribe registers a handler invoked with each drain summary
func (sm *syncManager) Subscribe(handler func(*DrainSummary)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("sync manager is closed"))
	}

	sm.subscribers = append(sm.subscribers, handler)
	return nil
}

// Close shuts down the sync manager
func (sm *syncManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}

	sm.closed = true

	if sm.autoSyncStop != nil {
		close(sm.autoSyncStop)
		sm.autoSyncStop = nil
	}

	if err := sm.transport.Close(); err != nil {
		return syncErrors.NewWithComponent(syncErrors.OpClose, "transport", err)
	}

	return nil
}

func (sm *syncManager) notifySubscribers(summary *DrainSummary) {
	sm.mu.Lock()
	subscribers := make([]func(*DrainSummary), len(sm.subscribers))
	copy(subscribers, sm.subscribers)
	sm.mu.Unlock()

	for _, handler := range subscribers {
		go func(h func(*DrainSummary)) {
			defer func() {
				if r := recover(); r != nil {
					sm.logger.Error("Subscriber panic recovered", "panic", r)
				}
			}()
			h(summary)
		}(handler)
	}
}
