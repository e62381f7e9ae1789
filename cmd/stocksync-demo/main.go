// Command stocksync-demo wires the full sync stack against an in-process
// batch endpoint: records are submitted while offline, land in the durable
// queue, and drain automatically once connectivity is restored.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	stocksync "github.com/tallyline/go-stocksync"
	"github.com/tallyline/go-stocksync/config"
	"github.com/tallyline/go-stocksync/logging"
	"github.com/tallyline/go-stocksync/netstate"
	"github.com/tallyline/go-stocksync/queue"
	"github.com/tallyline/go-stocksync/storage/sqlite"
	"github.com/tallyline/go-stocksync/transport/httptransport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// An in-process server stands in for the remote sync service. It
	// accepts every record it receives.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{Handler: newDemoMux()}
	go server.Serve(listener)
	defer server.Close()

	os.Setenv("STOCKSYNC_ENDPOINT", "http://"+listener.Addr().String())
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(cfg.Logging)
	logging.Info("Demo starting",
		slog.String("endpoint", cfg.Endpoint),
		slog.Int("batch_size", cfg.BatchSize),
	)

	// Durable queue backed by SQLite so pending records survive restarts.
	dir, err := os.MkdirTemp("", "stocksync-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	store, err := sqlite.NewWithDataSource(filepath.Join(dir, "queue.db"))
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	pending := queue.NewStore(store)
	conflicts := queue.NewConflicts(store)

	detector := netstate.NewDetector()
	transport := httptransport.NewClient(cfg.Endpoint,
		httptransport.WithTimeout(cfg.RequestTimeout.Std()))

	opts := cfg.SyncOptions()
	manager := stocksync.NewSyncManager(pending, conflicts, transport, detector, &opts)
	defer manager.Close()

	detector.OnChange(manager.OnNetworkChange)

	done := make(chan *stocksync.DrainSummary, 1)
	if err := manager.Subscribe(func(s *stocksync.DrainSummary) { done <- s }); err != nil {
		return err
	}

	// Offline: submissions go to the queue.
	detector.Update(netstate.Snapshot{Connected: netstate.Bool(false)})
	for _, item := range []string{"SKU-1001", "SKU-1002", "SKU-1003"} {
		record := stocksync.QueueRecord{
			SessionID: "demo-session",
			ItemCode:  item,
			Kind:      "count",
			Payload:   json.RawMessage(`{"quantity": 12}`),
			Status:    stocksync.StatusFinalized,
		}
		queued, err := manager.Submit(ctx, record)
		if err != nil {
			return fmt.Errorf("submit %s: %w", item, err)
		}
		logging.Info("Record submitted",
			slog.String("item_code", item),
			slog.Bool("queued", queued),
		)
	}

	size, err := pending.Size(ctx)
	if err != nil {
		return err
	}
	logging.Info("Queue state while offline", slog.Int("pending", size))

	// Connectivity restored: the detector transition triggers a drain.
	detector.Update(netstate.Snapshot{
		Connected:         netstate.Bool(true),
		InternetReachable: netstate.Bool(true),
		ConnectionType:    "wifi",
	})

	select {
	case summary := <-done:
		logging.Info("Drain completed",
			slog.Int("synced", summary.Synced),
			slog.Int("conflicts", summary.Conflicts),
			slog.Int("errors", summary.Errors),
			slog.Duration("duration", summary.Duration),
		)
	case <-time.After(10 * time.Second):
		return fmt.Errorf("drain did not complete in time")
	}

	size, err = pending.Size(ctx)
	if err != nil {
		return err
	}
	logging.Info("Demo complete", slog.Int("pending", size))
	return nil
}

// newDemoMux serves the batch sync endpoint, accepting every record.
func newDemoMux() http.Handler {
	accept := httptransport.BatchProcessorFunc(
		func(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error) {
			resp := &stocksync.BatchResponse{}
			for _, r := range req.Records {
				resp.OK = append(resp.OK, r.ClientRecordID)
			}
			return resp, nil
		})
	return httptransport.NewBatchHandler(accept)
}
