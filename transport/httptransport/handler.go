package httptransport

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	stocksync "github.com/tallyline/go-stocksync"
)

// BatchProcessor is the server-side port: given the records of one batch,
// partition their ids into accepted, conflicted, and errored sets.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error)
}

// BatchProcessorFunc adapts a function to the BatchProcessor interface.
type BatchProcessorFunc func(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error)

func (f BatchProcessorFunc) ProcessBatch(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error) {
	return f(ctx, req)
}

// BatchHandler serves the batch sync endpoint over HTTP.
type BatchHandler struct {
	processor      BatchProcessor
	maxRequestSize int64
}

// HandlerOption configures a BatchHandler
type HandlerOption func(*BatchHandler)

// WithMaxRequestSize sets the maximum allowed size of incoming request bodies
func WithMaxRequestSize(size int64) HandlerOption {
	return func(h *BatchHandler) {
		h.maxRequestSize = size
	}
}

// NewBatchHandler creates a handler delegating to the given processor.
func NewBatchHandler(processor BatchProcessor, opts ...HandlerOption) *BatchHandler {
	h := &BatchHandler{
		processor:      processor,
		maxRequestSize: 8 << 20, // 8MB
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != BatchPath {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body io.Reader = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(body)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed gzip body")
			return
		}
		defer zr.Close()
		body = zr
	}

	var req stocksync.BatchRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed batch request")
		return
	}
	if req.BatchID == "" {
		respondWithError(w, http.StatusBadRequest, "batch_id is required")
		return
	}

	start := time.Now()
	resp, err := h.processor.ProcessBatch(r.Context(), req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if resp.BatchID == "" {
		resp.BatchID = req.BatchID
	}
	if resp.TotalRecords == 0 {
		resp.TotalRecords = len(req.Records)
	}
	if resp.ProcessingTimeMS == 0 {
		resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
