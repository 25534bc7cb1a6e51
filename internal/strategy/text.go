package strategy

import (
	"context"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
)

// TextSearchStrategy wraps already-computed lexical results. The only
// transformation it applies is composite-hash deduplication; the lexical
// ordering is trusted as-is.
type TextSearchStrategy struct {
	Results []lexical.Result
}

func (s *TextSearchStrategy) Search(ctx context.Context) (Result, error) {
	products := make([]catalog.Product, len(s.Results))
	for i, r := range s.Results {
		products[i] = r.Product
	}
	deduped := Deduplicate(products)
	return Result{Products: deduped, Total: len(deduped)}, nil
}

// relevanceByHash builds the hash → lexical-rank map the tie-break rules
// consume.
func relevanceByHash(results []lexical.Result) map[string]int {
	relevance := make(map[string]int, len(results))
	for _, r := range results {
		key := r.Product.Hash.String()
		if _, ok := relevance[key]; !ok {
			relevance[key] = r.Rank
		}
	}
	return relevance
}
