// Package errors provides standardized error handling for the bid
// generation orchestrator.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeRetrievalSourceFailed ErrorCode = "RETRIEVAL_SOURCE_FAILED"
	ErrCodeEmbeddingFailed       ErrorCode = "EMBEDDING_FAILED"
	ErrCodeCacheFailure          ErrorCode = "CACHE_FAILURE"

	ErrCodeBackendTransient ErrorCode = "BACKEND_TRANSIENT"
	ErrCodeBackendExhausted ErrorCode = "BACKEND_EXHAUSTED"
	ErrCodeUnknownBackend   ErrorCode = "UNKNOWN_BACKEND"

	ErrCodePersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeUsageEventFailed   ErrorCode = "USAGE_EVENT_FAILED"
	ErrCodeProjectNotFound    ErrorCode = "PROJECT_NOT_FOUND"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeComparisonTooSmall ErrorCode = "COMPARISON_TOO_SMALL"
)

// StandardError represents a structured application error. Err holds
// the underlying cause when one exists, so errors.Is/As can reach it.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Err       error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Err
}

// ==========================
// 2. Error Constructors
// ==========================

// NewRetrievalSourceFailedError marks a single retrieval source failure.
// These never abort the overall request; the source is substituted with
// an empty result.
func NewRetrievalSourceFailedError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalSourceFailed,
		Message:   fmt.Sprintf("Retrieval source '%s' failed", source),
		Details:   err.Error(),
		Retryable: false,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingFailedError creates a retryable embedding generation error.
func NewEmbeddingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "Embedding generation failed",
		Details:   err.Error(),
		Retryable: true,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheFailureError records a cache backend error. Callers treat it
// identically to a cache miss.
func NewCacheFailureError(op, key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheFailure,
		Message:   fmt.Sprintf("Cache %s failed", op),
		Details:   fmt.Sprintf("key: %s, error: %s", key, err.Error()),
		Retryable: false,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// NewBackendTransientError creates a retryable model backend error.
func NewBackendTransientError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendTransient,
		Message:   fmt.Sprintf("Backend '%s' call failed", backend),
		Details:   err.Error(),
		Retryable: true,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// NewBackendExhaustedError creates a fatal error raised after all retry
// attempts against a backend have failed. Details carries the last
// underlying error message.
func NewBackendExhaustedError(backend string, attempts int, lastErr error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendExhausted,
		Message:   fmt.Sprintf("Backend '%s' failed after %d attempts", backend, attempts),
		Details:   lastErr.Error(),
		Retryable: false,
		Err:       lastErr,
		Metadata: map[string]interface{}{
			"backend":  backend,
			"attempts": attempts,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceFailedError creates a non-fatal persistence error. The
// generated content is still returned to the caller.
func NewPersistenceFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Artifact persistence failed",
		Details:   err.Error(),
		Retryable: true,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// NewProjectNotFoundError creates a fatal error raised before any
// retrieval or generation work begins.
func NewProjectNotFoundError(projectID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProjectNotFound,
		Message:   "Project not found",
		Details:   fmt.Sprintf("projectId: %s", projectID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid generation request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewComparisonTooSmallError is raised when comparison mode is requested
// with fewer than two backends.
func NewComparisonTooSmallError(count int) *StandardError {
	return &StandardError{
		Code:      ErrCodeComparisonTooSmall,
		Message:   "Comparison mode requires at least two backends",
		Details:   fmt.Sprintf("requested: %d", count),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsFatal reports whether an error code halts the overall operation.
// Only an exhausted backend in single mode and a missing project do;
// everything else degrades gracefully.
func IsFatal(code ErrorCode) bool {
	switch code {
	case ErrCodeBackendExhausted, ErrCodeProjectNotFound,
		ErrCodeInvalidRequest, ErrCodeComparisonTooSmall, ErrCodeUnknownBackend:
		return true
	default:
		return false
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeBackendTransient, ErrCodeEmbeddingFailed, ErrCodePersistenceFailed:
		return true
	default:
		return false
	}
}
