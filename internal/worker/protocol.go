// Package worker implements the isolated compute context that owns the
// embedding model and the ANN index structures. All access goes through a
// correlated request/response message protocol; progress telemetry travels
// on a separate one-way stream so the reply path never carries uncorrelated
// messages.
package worker

import (
	"github.com/quickcart/searchcore/internal/vector"
)

// Op tags a request with its operation.
type Op string

const (
	OpInitLibrary   Op = "initLibrary"
	OpLoadModel     Op = "loadModel"
	OpEmbedQuery    Op = "embedQuery"
	OpInitIndex     Op = "initIndex"
	OpAddPoints     Op = "addPoints"
	OpSearch        Op = "search"
	OpSaveIndex     Op = "saveIndex"
	OpSwitchContext Op = "switchContext"
)

// Payload is one variant of the request union. Each variant carries only
// the fields its operation needs.
type Payload interface {
	op() Op
}

// InitLibraryRequest loads the ANN library. One-time; idempotent.
type InitLibraryRequest struct{}

func (InitLibraryRequest) op() Op { return OpInitLibrary }

// LoadModelRequest loads the embedding model.
type LoadModelRequest struct{}

func (LoadModelRequest) op() Op { return OpLoadModel }

// EmbedQueryRequest computes the embedding for a query string.
type EmbedQueryRequest struct {
	Query string
}

func (EmbedQueryRequest) op() Op { return OpEmbedQuery }

// InitIndexRequest allocates (or, for the global context, possibly loads)
// an ANN structure for a context.
type InitIndexRequest struct {
	MaxElements    int
	M              int
	EfConstruction int
	EfSearch       int
	Filename       string
	ForceRebuild   bool
	Persist        bool
	Context        vector.Context
}

func (InitIndexRequest) op() Op { return OpInitIndex }

// AddPointsRequest appends points to a context's structure.
type AddPointsRequest struct {
	Points  []vector.Point
	Context vector.Context
}

func (AddPointsRequest) op() Op { return OpAddPoints }

// SearchRequest runs a k-nearest-neighbor query against a context.
type SearchRequest struct {
	QueryEmbedding []float32
	Limit          int
	Context        vector.Context
}

func (SearchRequest) op() Op { return OpSearch }

// SaveIndexRequest persists the global context's structure.
type SaveIndexRequest struct {
	Filename string
	Context  vector.Context
}

func (SaveIndexRequest) op() Op { return OpSaveIndex }

// SwitchContextRequest makes a context the active one, loading the global
// index on demand when a filename is known.
type SwitchContextRequest struct {
	Target   vector.Context
	Filename string
}

func (SwitchContextRequest) op() Op { return OpSwitchContext }

// Result is one variant of the response union.
type Result interface {
	resultOp() Op
}

// AckResult is an empty success payload for operations with no data.
type AckResult struct{}

func (AckResult) resultOp() Op { return "" }

// EmbedResult carries a computed query embedding.
type EmbedResult struct {
	Vector []float32
}

func (EmbedResult) resultOp() Op { return OpEmbedQuery }

// InitIndexResult reports how a context was initialized.
type InitIndexResult struct {
	// LoadedFromDisk is true when a persisted global index was read
	// instead of allocating fresh.
	LoadedFromDisk bool

	// Count is the number of items the structure contained after init.
	Count int
}

func (InitIndexResult) resultOp() Op { return OpInitIndex }

// SearchResult carries translated nearest neighbors.
type SearchResult struct {
	Neighbors []vector.Neighbor
}

func (SearchResult) resultOp() Op { return OpSearch }

// Response is the correlated reply to a single request. Success is false
// when the handler failed; Err then carries the message. A handler always
// produces exactly one Response per correlation id.
type Response struct {
	ID      uint64
	Op      Op
	Success bool
	Err     string
	Data    Result
}

// Progress is a fire-and-forget telemetry event emitted while populating
// an index. It travels on a dedicated stream, never the reply path.
type Progress struct {
	Context vector.Context
	Done    int
	Total   int
	Percent int
	Message string
}
