package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
)

// stubReranker replays a fixed index order.
type stubReranker struct {
	order []int
	err   error
	calls int
}

func (r *stubReranker) Rerank(ctx context.Context, products []catalog.Product, queryEmbedding []float32, limit int) ([]int, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.order, nil
}

func dropdownCandidates(n int) []lexical.Result {
	out := make([]lexical.Result, n)
	for i := range out {
		out[i] = lexical.Result{
			Product: product(fmt.Sprintf("Milk %d", i), "milk", "dairy-eggs", "milk", i),
			Rank:    i,
		}
	}
	return out
}

func memberSet(products []catalog.Product) map[string]bool {
	set := make(map[string]bool, len(products))
	for _, p := range products {
		set[p.Hash.String()] = true
	}
	return set
}

func TestDropdown_ReordersWithoutChangingMembership(t *testing.T) {
	candidates := dropdownCandidates(10)
	s := &HybridDropdownStrategy{
		Candidates:     candidates,
		QueryEmbedding: []float32{1},
		Reranker:       &stubReranker{order: []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}},
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dairy-eggs:9", result.Products[0].Hash.String())

	lexicalSet := memberSet(func() []catalog.Product {
		out := make([]catalog.Product, len(candidates))
		for i, c := range candidates {
			out[i] = c.Product
		}
		return out
	}())
	for _, p := range result.Products {
		assert.True(t, lexicalSet[p.Hash.String()], "rerank never introduces new members")
	}
}

func TestDropdown_TruncatesToResultLimit(t *testing.T) {
	s := &HybridDropdownStrategy{
		Candidates:     dropdownCandidates(30),
		QueryEmbedding: []float32{1},
		Reranker:       &stubReranker{order: []int{0}},
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Products, DropdownResultLimit)
}

func TestDropdown_CapsCandidatesAtThirty(t *testing.T) {
	reranker := &stubReranker{order: []int{0}}
	s := &HybridDropdownStrategy{
		Candidates:     dropdownCandidates(45),
		QueryEmbedding: []float32{1},
		Reranker:       reranker,
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)

	for _, p := range result.Products {
		assert.Less(t, p.Hash.Index, DropdownCandidateLimit,
			"candidates past the cap never participate")
	}
}

func TestDropdown_NoEmbeddingKeepsLexicalOrder(t *testing.T) {
	reranker := &stubReranker{order: []int{5, 4}}
	s := &HybridDropdownStrategy{
		Candidates: dropdownCandidates(6),
		Reranker:   reranker,
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reranker.calls, "no rerank without an embedding")
	assert.Equal(t, []string{
		"dairy-eggs:0", "dairy-eggs:1", "dairy-eggs:2",
		"dairy-eggs:3", "dairy-eggs:4", "dairy-eggs:5",
	}, hashes(result.Products))
}

func TestDropdown_RerankErrorKeepsLexicalOrder(t *testing.T) {
	s := &HybridDropdownStrategy{
		Candidates:     dropdownCandidates(4),
		QueryEmbedding: []float32{1},
		Reranker:       &stubReranker{err: errors.New("worker busy")},
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dairy-eggs:0", "dairy-eggs:1", "dairy-eggs:2", "dairy-eggs:3",
	}, hashes(result.Products))
}

func TestDropdown_DroppedCandidatesAppendInLexicalOrder(t *testing.T) {
	s := &HybridDropdownStrategy{
		Candidates:     dropdownCandidates(5),
		QueryEmbedding: []float32{1},
		Reranker:       &stubReranker{order: []int{3, 1}},
	}

	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dairy-eggs:3", "dairy-eggs:1", "dairy-eggs:0", "dairy-eggs:2", "dairy-eggs:4",
	}, hashes(result.Products))
}
