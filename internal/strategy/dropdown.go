package strategy

import (
	"context"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
)

const (
	// DropdownCandidateLimit caps how many prefiltered candidates the
	// dropdown rerank considers.
	DropdownCandidateLimit = 30

	// DropdownResultLimit caps the refreshed dropdown size.
	DropdownResultLimit = 15
)

// Reranker reorders a small product set by similarity to a query
// embedding, returning indices into the given slice, best first. Products
// without a usable embedding may be omitted. Implemented by the
// orchestrator on top of the coordinator's temporary index context.
type Reranker interface {
	Rerank(ctx context.Context, products []catalog.Product, queryEmbedding []float32, limit int) ([]int, error)
}

// HybridDropdownStrategy upgrades a lexical dropdown in place: the exact
// prefiltered candidate set is reordered by embedding similarity and
// truncated. Membership never grows: candidates the reranker drops are
// appended in their lexical order before truncation, so the output is
// always a permutation-prefix of the input.
type HybridDropdownStrategy struct {
	// Candidates is the lexical prefilter output, at most
	// DropdownCandidateLimit entries are considered.
	Candidates []lexical.Result

	// QueryEmbedding may be nil when the worker has not produced one yet.
	QueryEmbedding []float32

	Reranker Reranker

	// MaxResults caps the output; zero means DropdownResultLimit.
	MaxResults int
}

func (s *HybridDropdownStrategy) Search(ctx context.Context) (Result, error) {
	max := s.MaxResults
	if max <= 0 || max > DropdownResultLimit {
		max = DropdownResultLimit
	}

	candidates := s.Candidates
	if len(candidates) > DropdownCandidateLimit {
		candidates = candidates[:DropdownCandidateLimit]
	}
	products := make([]catalog.Product, len(candidates))
	for i, c := range candidates {
		products[i] = c.Product
	}
	products = Deduplicate(products)

	if s.QueryEmbedding == nil || s.Reranker == nil {
		return Result{Products: truncate(products, max), Total: len(products)}, nil
	}

	order, err := s.Reranker.Rerank(ctx, products, s.QueryEmbedding, len(products))
	if err != nil {
		// The lexical ordering is still a valid dropdown.
		return Result{Products: truncate(products, max), Total: len(products)}, nil
	}

	reordered := make([]catalog.Product, 0, len(products))
	used := make([]bool, len(products))
	for _, idx := range order {
		if idx < 0 || idx >= len(products) || used[idx] {
			continue
		}
		used[idx] = true
		reordered = append(reordered, products[idx])
	}
	for i, p := range products {
		if !used[i] {
			reordered = append(reordered, p)
		}
	}

	return Result{Products: truncate(reordered, max), Total: len(reordered)}, nil
}

func truncate(products []catalog.Product, max int) []catalog.Product {
	if len(products) > max {
		return products[:max]
	}
	return products
}
