package stocksync

import "time"

// MetricsCollector provides hooks for collecting sync operation metrics
type MetricsCollector interface {
	// RecordDrainDuration records how long a drain operation took
	RecordDrainDuration(operation string, duration time.Duration)

	// RecordRecords records drain outcomes by category
	RecordRecords(synced, conflicted, errored int)

	// RecordDrainErrors records drain failures by type
	RecordDrainErrors(operation string, errorType string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordDrainDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordRecords(synced, conflicted, errored int)                {}
func (n *NoOpMetricsCollector) RecordDrainErrors(operation string, errorType string)         {}
