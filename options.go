package stocksync

import (
	"log/slog"
	"time"

	"github.com/tallyline/go-stocksync/backoff"
)

// SyncOptions configures the synchronization behavior
type SyncOptions struct {
	// BatchSize limits how many records are sent per batch (default 100)
	BatchSize int

	// MaxRetries is the per-record retry budget. A record whose retry
	// count reaches this value leaves the active retry set and is
	// reported as permanently failed (default 5).
	MaxRetries int

	// Backoff computes the pause after a transport-level batch failure.
	Backoff backoff.Calculator

	// MaxNetworkAttempts is the number of consecutive transport-level
	// failures tolerated within one drain before it aborts, leaving the
	// remaining records queued for the next trigger (default 3).
	MaxNetworkAttempts int

	// SkipResponseValidation disables the cross-check that every sent id
	// appears in exactly one of ok/conflicts/errors. When skipped,
	// unaccounted records simply stay queued untouched, trusting the
	// server's response shape.
	SkipResponseValidation bool

	// OnProgress is invoked after each batch with the number of records
	// processed so far and the drain total.
	OnProgress func(processed, total int)

	// SyncInterval for automatic periodic drains (0 disables)
	SyncInterval time.Duration

	// Timeout bounds each transport call (default 30s)
	Timeout time.Duration

	// MetricsCollector for observability hooks (optional)
	MetricsCollector MetricsCollector

	// Logger for structured drain logging (optional)
	Logger *slog.Logger
}

func (o *SyncOptions) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Backoff == (backoff.Calculator{}) {
		o.Backoff = backoff.Default()
	}
	if o.MaxNetworkAttempts <= 0 {
		o.MaxNetworkAttempts = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MetricsCollector == nil {
		o.MetricsCollector = &NoOpMetricsCollector{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// NewSyncManager creates a sync manager with the provided components.
// Dependencies are injected explicitly so tests can substitute fakes and
// multiple instances can coexist. opts may be nil for defaults.
func NewSyncManager(queue QueueStore, conflicts ConflictStore, transport Transport, monitor NetworkMonitor, opts *SyncOptions) SyncManager {
	options := SyncOptions{}
	if opts != nil {
		options = *opts
	}
	options.setDefaults()

	return &syncManager{
		queue:     queue,
		conflicts: conflicts,
		transport: transport,
		monitor:   monitor,
		options:   options,
		logger:    options.Logger,
	}
}
