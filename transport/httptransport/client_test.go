package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stocksync "github.com/tallyline/go-stocksync"
	syncErrors "github.com/tallyline/go-stocksync/errors"
)

func testRecord(id string) stocksync.QueueRecord {
	return stocksync.QueueRecord{
		ClientRecordID: id,
		ItemCode:       "ITEM-1",
		Kind:           "count",
		Payload:        json.RawMessage(`{"quantity":3}`),
		Status:         stocksync.StatusFinalized,
	}
}

func TestSendBatchRoundTrip(t *testing.T) {
	processor := BatchProcessorFunc(func(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error) {
		resp := &stocksync.BatchResponse{}
		for _, r := range req.Records {
			resp.OK = append(resp.OK, r.ClientRecordID)
		}
		return resp, nil
	})

	srv := httptest.NewServer(NewBatchHandler(processor))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	req := stocksync.BatchRequest{
		Records: []stocksync.QueueRecord{testRecord("a"), testRecord("b")},
		BatchID: "batch-1",
	}
	resp, err := client.SendBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	if len(resp.OK) != 2 || resp.OK[0] != "a" || resp.OK[1] != "b" {
		t.Errorf("OK = %v, want [a b] in request order", resp.OK)
	}
	if resp.BatchID != "batch-1" {
		t.Errorf("BatchID = %q, want batch-1", resp.BatchID)
	}
	if resp.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", resp.TotalRecords)
	}
}

func TestSendBatchGzipRequest(t *testing.T) {
	sawGzip := false
	mux := http.NewServeMux()
	var handler http.Handler = NewBatchHandler(BatchProcessorFunc(
		func(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error) {
			resp := &stocksync.BatchResponse{}
			for _, r := range req.Records {
				resp.OK = append(resp.OK, r.ClientRecordID)
			}
			return resp, nil
		}))
	mux.HandleFunc(BatchPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			sawGzip = true
		}
		handler.ServeHTTP(w, r)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, WithLimits(Limits{
		MaxBodyBytes: 8 << 20,
		EnableGzip:   true,
		GzipMinBytes: 1, // force compression
	}))

	big := testRecord("a")
	resp, err := client.SendBatch(context.Background(), stocksync.BatchRequest{
		Records: []stocksync.QueueRecord{big},
		BatchID: "batch-gz",
	})
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if !sawGzip {
		t.Error("request body was not gzip compressed")
	}
	if len(resp.OK) != 1 || resp.OK[0] != "a" {
		t.Errorf("OK = %v, want [a]", resp.OK)
	}
}

func TestSendBatchConflictsAndErrorsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stocksync.BatchResponse{
			OK: []string{"a"},
			Conflicts: []stocksync.ConflictRecord{{
				ClientRecordID: "b",
				ConflictType:   "concurrent_count",
				Message:        "counted elsewhere",
			}},
			Errors: []stocksync.ErrorEntry{{
				ClientRecordID: "c",
				ErrorType:      "stale_session",
				Message:        "session expired",
			}},
			TotalRecords: 3,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.SendBatch(context.Background(), stocksync.BatchRequest{BatchID: "b1"})
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].ConflictType != "concurrent_count" {
		t.Errorf("Conflicts = %v", resp.Conflicts)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].ErrorType != "stale_session" {
		t.Errorf("Errors = %v", resp.Errors)
	}
}

func TestSendBatchStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		code      syncErrors.ErrorCode
	}{
		{http.StatusInternalServerError, true, syncErrors.ErrCodeNetworkFailure},
		{http.StatusBadGateway, true, syncErrors.ErrCodeNetworkFailure},
		{http.StatusTooManyRequests, true, syncErrors.ErrCodeNetworkFailure},
		{http.StatusRequestTimeout, true, syncErrors.ErrCodeNetworkFailure},
		{http.StatusBadRequest, false, syncErrors.ErrCodeValidationFailure},
		{http.StatusUnprocessableEntity, false, syncErrors.ErrCodeValidationFailure},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewClient(srv.URL)
		_, err := client.SendBatch(context.Background(), stocksync.BatchRequest{BatchID: "b"})
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			srv.Close()
			continue
		}
		if got := syncErrors.IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
		if got := syncErrors.CodeOf(err); got != tt.code {
			t.Errorf("status %d: code = %v, want %v", tt.status, got, tt.code)
		}
		srv.Close()
	}
}

func TestSendBatchConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(srv.URL)
	_, err := client.SendBatch(context.Background(), stocksync.BatchRequest{BatchID: "b"})
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if !syncErrors.IsRetryable(err) {
		t.Errorf("connection failure should be retryable, got %v", err)
	}
}

func TestSendBatchTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	_, err := client.SendBatch(context.Background(), stocksync.BatchRequest{BatchID: "b"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !syncErrors.IsRetryable(err) {
		t.Errorf("timeout should be a retryable transport failure, got %v", err)
	}
}

func TestSendBatchMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.SendBatch(context.Background(), stocksync.BatchRequest{BatchID: "b"})
	if err == nil {
		t.Fatal("expected error on malformed response")
	}
	if got := syncErrors.CodeOf(err); got != syncErrors.ErrCodeProtocolViolation {
		t.Errorf("code = %v, want PROTOCOL_VIOLATION", got)
	}
}
