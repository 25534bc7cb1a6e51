// Package errors provides structured error handling for searchcore.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Cache and storage errors
//   - 3XX: Catalog fetch errors
//   - 4XX: Validation errors
//   - 5XX: Worker and index errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates cache and index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryCatalog indicates catalog fetch errors.
	CategoryCatalog Category = "CATALOG"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryWorker indicates compute worker errors.
	CategoryWorker Category = "WORKER"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Cache and storage errors (200-299)
	ErrCodeCacheCorrupt  = "ERR_201_CACHE_CORRUPT"
	ErrCodeCacheStale    = "ERR_202_CACHE_STALE"
	ErrCodeIndexFile     = "ERR_203_INDEX_FILE"
	ErrCodeIndexCorrupt  = "ERR_204_INDEX_CORRUPT"
	ErrCodeStoreUnusable = "ERR_205_STORE_UNUSABLE"

	// Catalog errors (300-399)
	ErrCodeCatalogFetch       = "ERR_301_CATALOG_FETCH"
	ErrCodeCatalogUnavailable = "ERR_302_CATALOG_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidEmbedding = "ERR_401_INVALID_EMBEDDING"
	ErrCodeInvalidMessage   = "ERR_402_INVALID_MESSAGE"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidContext   = "ERR_404_INVALID_CONTEXT"

	// Worker and index errors (500-599)
	ErrCodeWorkerInit       = "ERR_501_WORKER_INIT"
	ErrCodeIndexNotReady    = "ERR_502_INDEX_NOT_READY"
	ErrCodeWorkerTerminated = "ERR_503_WORKER_TERMINATED"
	ErrCodeEmbeddingFailed  = "ERR_504_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_505_SEARCH_FAILED"
	ErrCodeInternal         = "ERR_506_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryWorker
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryCatalog
	case '4':
		return CategoryValidation
	default:
		return CategoryWorker
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreUnusable:
		return SeverityFatal
	case ErrCodeIndexNotReady, ErrCodeCacheCorrupt, ErrCodeCacheStale:
		// Recoverable states: callers fall back to lexical results or rebuild.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCatalogFetch, ErrCodeCatalogUnavailable, ErrCodeWorkerInit:
		return true
	default:
		return false
	}
}
