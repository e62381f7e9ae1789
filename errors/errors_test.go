package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpReconcile,
			component: "store",
			code:      ErrCodeStorageFailure,
			err:       fmt.Errorf("disk full"),
			want:      "reconcile operation failed in store component [STORAGE_FAILURE]: disk full",
		},
		{
			name:      "with component no code",
			op:        OpEnqueue,
			component: "queue",
			err:       fmt.Errorf("failed to persist"),
			want:      "enqueue operation failed in queue component: failed to persist",
		},
		{
			name: "without component with code",
			op:   OpSendBatch,
			code: ErrCodeNetworkFailure,
			err:  fmt.Errorf("connection refused"),
			want: "send_batch operation failed [NETWORK_FAILURE]: connection refused",
		},
		{
			name: "without component or code",
			op:   OpDrain,
			err:  fmt.Errorf("boom"),
			want: "drain operation failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &SyncError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("SyncError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("cause")

	tests := []struct {
		name      string
		err       *SyncError
		code      ErrorCode
		component string
		retryable bool
	}{
		{"network", NewNetworkError(OpSendBatch, cause), ErrCodeNetworkFailure, "transport", true},
		{"storage", NewStorageError(OpPersist, cause), ErrCodeStorageFailure, "store", false},
		{"conflict", NewConflictError(OpDrain, cause), ErrCodeConflict, "sync", false},
		{"validation", NewValidationError(OpSendBatch, cause), ErrCodeValidationFailure, "", false},
		{"exhausted", NewRetryExhaustedError(OpDrain, cause), ErrCodeRetryExhausted, "sync", false},
		{"protocol", NewProtocolError(OpSendBatch, cause), ErrCodeProtocolViolation, "transport", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Component != tt.component {
				t.Errorf("Component = %v, want %v", tt.err.Component, tt.component)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("expected wrapped cause to be reachable via errors.Is")
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewNetworkError(OpSendBatch, fmt.Errorf("timeout"))) {
		t.Error("network error should be retryable")
	}
	if IsRetryable(NewValidationError(OpSendBatch, fmt.Errorf("bad request"))) {
		t.Error("validation error should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain error should not be retryable")
	}

	// Retryability survives wrapping.
	wrapped := fmt.Errorf("outer: %w", NewNetworkError(OpSendBatch, fmt.Errorf("timeout")))
	if !IsRetryable(wrapped) {
		t.Error("wrapped network error should still be retryable")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewProtocolError(OpSendBatch, fmt.Errorf("missing id"))); got != ErrCodeProtocolViolation {
		t.Errorf("CodeOf = %v, want %v", got, ErrCodeProtocolViolation)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf plain error = %v, want empty", got)
	}
}
