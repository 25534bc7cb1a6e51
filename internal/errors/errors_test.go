package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"cache corrupt is recoverable", ErrCodeCacheCorrupt, CategoryStorage, SeverityWarning, false},
		{"catalog fetch retryable", ErrCodeCatalogFetch, CategoryCatalog, SeverityWarning, true},
		{"invalid embedding", ErrCodeInvalidEmbedding, CategoryValidation, SeverityError, false},
		{"worker init retryable", ErrCodeWorkerInit, CategoryWorker, SeverityWarning, true},
		{"index not ready recoverable", ErrCodeIndexNotReady, CategoryWorker, SeverityWarning, false},
		{"store unusable fatal", ErrCodeStoreUnusable, CategoryStorage, SeverityFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestSearchError_ErrorFormat(t *testing.T) {
	err := IndexNotReadyError("global index not populated")
	assert.Equal(t, "[ERR_502_INDEX_NOT_READY] global index not populated", err.Error())
}

func TestSearchError_UnwrapChain(t *testing.T) {
	cause := fmt.Errorf("disk unplugged")
	err := Wrap(ErrCodeIndexFile, cause)
	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
}

func TestSearchError_IsMatchesByCode(t *testing.T) {
	a := IndexNotReadyError("a")
	b := IndexNotReadyError("b")
	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, WorkerTerminatedError()))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestInvalidEmbeddingError_Message(t *testing.T) {
	err := InvalidEmbeddingError(384, 0)
	assert.Contains(t, err.Message, "expected 384")
	assert.Contains(t, err.Message, "got 0")
}

func TestHelpers(t *testing.T) {
	err := InitializationError("worker spawn failed", nil)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrCodeWorkerInit, GetCode(err))
	assert.Equal(t, CategoryWorker, GetCategory(err))

	plain := fmt.Errorf("plain")
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, GetCode(plain))
}

func TestWithDetail(t *testing.T) {
	err := CacheCorruptError("sample validation failed", nil).
		WithDetail("chunk", "chunk_3")
	assert.Equal(t, "chunk_3", err.Details["chunk"])
}
