package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/coordinator"
	"github.com/quickcart/searchcore/internal/vector"
)

// TemporaryReranker implements strategy.Reranker on the coordinator's
// temporary index context: the candidate set becomes an ephemeral ANN index,
// the query embedding is ranked against it, and the neighbor original
// indices are returned as the new candidate order. Each call uses a fresh
// generation token so the ephemeral index is always rebuilt.
type TemporaryReranker struct {
	Indexes IndexManager

	gen atomic.Uint64
}

func (r *TemporaryReranker) Rerank(ctx context.Context, products []catalog.Product, queryEmbedding []float32, limit int) ([]int, error) {
	err := r.Indexes.PrepareIndex(ctx, products, r.gen.Add(1), coordinator.PrepareOptions{
		Context:      vector.ContextTemporary,
		ForceRebuild: true,
	})
	if err != nil {
		return nil, err
	}

	neighbors, err := r.Indexes.RankBySimilarity(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		order = append(order, n.OriginalIndex)
	}
	return order, nil
}
