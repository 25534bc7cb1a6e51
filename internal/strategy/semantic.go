package strategy

import (
	"context"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
	"github.com/quickcart/searchcore/internal/vector"
)

// Ranker runs an ANN search against the active index context. Implemented
// by the coordinator.
type Ranker interface {
	RankBySimilarity(ctx context.Context, queryEmbedding []float32, limit int) ([]vector.Neighbor, error)
}

// SemanticSearchStrategy serves the full "search all" page: an ANN search
// over the whole candidate pool, ordered by similarity. Without a query
// embedding, or when the semantic side yields nothing usable, it falls back
// to the lexical results rather than returning an empty page.
type SemanticSearchStrategy struct {
	// Pool is the full product list the active index was built from;
	// neighbor original indices point into it.
	Pool []catalog.Product

	// QueryEmbedding may be nil when the worker has not produced one yet.
	QueryEmbedding []float32

	Ranker Ranker

	// Lexical is the fallback result set.
	Lexical []lexical.Result

	// Limit bounds the result page.
	Limit int
}

func (s *SemanticSearchStrategy) Search(ctx context.Context) (Result, error) {
	if s.QueryEmbedding == nil {
		return s.lexicalFallback(), nil
	}

	neighbors, err := s.Ranker.RankBySimilarity(ctx, s.QueryEmbedding, s.Limit)
	if err != nil || len(neighbors) == 0 {
		// Degraded, not failed: lexical results are still usable.
		return s.lexicalFallback(), nil
	}

	products := make([]catalog.Product, 0, len(neighbors))
	for _, n := range neighbors {
		if n.OriginalIndex < 0 || n.OriginalIndex >= len(s.Pool) {
			continue
		}
		products = append(products, s.Pool[n.OriginalIndex])
	}
	deduped := Deduplicate(products)
	if len(deduped) == 0 {
		return s.lexicalFallback(), nil
	}
	return Result{Products: deduped, Total: len(deduped)}, nil
}

func (s *SemanticSearchStrategy) lexicalFallback() Result {
	text := &TextSearchStrategy{Results: s.Lexical}
	result, _ := text.Search(context.Background())
	if s.Limit > 0 && len(result.Products) > s.Limit {
		result.Products = result.Products[:s.Limit]
	}
	return result
}
