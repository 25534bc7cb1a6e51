package errors

import (
	"fmt"
)

// SearchError is the structured error type for searchcore.
// It provides rich context for error handling, logging, and user presentation.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_502_INDEX_NOT_READY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Worker, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SearchError.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error.
// The error's message becomes the SearchError message.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InitializationError indicates the worker, ANN library, or embedding model
// failed to start. Fatal to semantic search until the caller retries.
func InitializationError(message string, cause error) *SearchError {
	return New(ErrCodeWorkerInit, message, cause)
}

// IndexNotReadyError indicates the ANN index is not yet built or populated.
// Recoverable: callers treat it as "no semantic results yet".
func IndexNotReadyError(message string) *SearchError {
	return New(ErrCodeIndexNotReady, message, nil)
}

// WorkerTerminatedError indicates the worker was disposed while requests
// were pending. The coordinator must be reinitialized.
func WorkerTerminatedError() *SearchError {
	return New(ErrCodeWorkerTerminated, "compute worker terminated", nil)
}

// InvalidEmbeddingError indicates a malformed or wrong-dimension vector.
// The candidate is excluded from indexing; not fatal.
func InvalidEmbeddingError(expected, got int) *SearchError {
	return New(ErrCodeInvalidEmbedding,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got), nil)
}

// InvalidMessageError indicates a worker message could not be decoded
// or carried fields inconsistent with its operation tag.
func InvalidMessageError(message string) *SearchError {
	return New(ErrCodeInvalidMessage, message, nil)
}

// CacheCorruptError indicates the catalog snapshot cache failed validation.
// Never surfaced to callers as failure: it triggers a full rebuild.
func CacheCorruptError(message string, cause error) *SearchError {
	return New(ErrCodeCacheCorrupt, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a SearchError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SearchError.
// Returns empty string if not a SearchError.
func GetCode(err error) string {
	if se, ok := err.(*SearchError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError.
// Returns empty string if not a SearchError.
func GetCategory(err error) Category {
	if se, ok := err.(*SearchError); ok {
		return se.Category
	}
	return ""
}
