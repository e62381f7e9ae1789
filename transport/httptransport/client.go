// Package httptransport implements the batch sync wire contract over HTTP:
// a client for POST /api/sync/batch and a server handler adapting a
// BatchProcessor, useful for tests and for embedding in a Go backend.
package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	stocksync "github.com/tallyline/go-stocksync"
	syncErrors "github.com/tallyline/go-stocksync/errors"
)

// BatchPath is the endpoint batches are POSTed to, relative to the base URL.
const BatchPath = "/api/sync/batch"

// Limits defines size and compression limits for the HTTP client
type Limits struct {
	MaxBodyBytes int64 // Maximum response body size in bytes
	EnableGzip   bool  // Whether to gzip request bodies
	GzipMinBytes int   // Minimum bytes before applying gzip compression
}

// Client sends batches to the remote sync endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	limits  Limits
}

var _ stocksync.Transport = (*Client)(nil)

// ClientOption configures a Client using the functional options pattern
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithLimits sets the size and compression limits
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// NewClient creates an HTTP transport client with functional options.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes: 8 << 20, // 8MB
			EnableGzip:   true,
			GzipMinBytes: 1024, // 1KB
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendBatch POSTs one batch and decodes the partitioned response. A
// returned error is always a transport-level failure for the entire batch;
// per-record rejections live inside the response.
func (c *Client) SendBatch(ctx context.Context, req stocksync.BatchRequest) (*stocksync.BatchResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpSendBatch, err)
	}

	body, encoding, err := c.encodeBody(payload)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpSendBatch, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+BatchPath, body)
	if err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpSendBatch, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		httpReq.Header.Set("Content-Encoding", encoding)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Includes timeouts and connection failures: the whole batch is
		// treated as unreachable and retried via the backoff path.
		return nil, syncErrors.NewNetworkError(syncErrors.OpSendBatch, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, classifyStatus(httpResp.StatusCode)
	}

	reader := io.LimitReader(httpResp.Body, c.limits.MaxBodyBytes)
	var resp stocksync.BatchResponse
	if err := json.NewDecoder(reader).Decode(&resp); err != nil {
		return nil, syncErrors.NewProtocolError(syncErrors.OpSendBatch,
			fmt.Errorf("malformed batch response: %w", err))
	}

	return &resp, nil
}

// Close implements stocksync.Transport.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) encodeBody(payload []byte) (io.Reader, string, error) {
	if !c.limits.EnableGzip || len(payload) < c.limits.GzipMinBytes {
		return bytes.NewReader(payload), "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "gzip", nil
}

// classifyStatus maps a non-2xx status onto the error taxonomy. Server
// overload and transient statuses are retryable transport failures;
// anything else means the batch itself was rejected.
func classifyStatus(status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return syncErrors.NewNetworkError(syncErrors.OpSendBatch, err)
	default:
		return syncErrors.NewValidationError(syncErrors.OpSendBatch, err)
	}
}
