package stocksync

import "testing"

func TestIDGeneration(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewClientRecordID()
		if id == "" {
			t.Fatal("NewClientRecordID returned empty string")
		}
		if len(id) != 36 {
			t.Fatalf("NewClientRecordID() = %q, want UUID format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}

	if a, b := NewBatchID(), NewBatchID(); a == b {
		t.Errorf("NewBatchID returned duplicate %q", a)
	}
}

func TestSyncOptionsDefaults(t *testing.T) {
	opts := SyncOptions{}
	opts.setDefaults()

	if opts.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", opts.BatchSize)
	}
	if opts.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", opts.MaxRetries)
	}
	if opts.MaxNetworkAttempts != 3 {
		t.Errorf("MaxNetworkAttempts = %d, want 3", opts.MaxNetworkAttempts)
	}
	if opts.MetricsCollector == nil {
		t.Error("MetricsCollector should default to the no-op collector")
	}
	if opts.Logger == nil {
		t.Error("Logger should default to slog.Default")
	}
}
