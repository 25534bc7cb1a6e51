// Package lexical provides the fast in-memory keyword index used for
// dropdown prefiltering. It indexes product names (plus type and category
// text) with a BM25-scored bleve index and caches recent result lists.
package lexical

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/analysis/tokenmap"
	"github.com/blevesearch/bleve/v2/mapping"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quickcart/searchcore/internal/catalog"
)

const (
	productStopMapName  = "product_stop_map"
	productStopName     = "product_stop"
	productAnalyzerName = "product_analyzer"
)

// stopTokens are filler words that carry no signal in product names.
var stopTokens = []interface{}{
	"the", "a", "an", "of", "and", "or", "for", "with", "in", "per",
	"pack", "each", "ct", "oz", "lb", "fl",
}

// DefaultResultCacheSize bounds the cached result lists.
const DefaultResultCacheSize = 256

// Result is one lexical hit.
type Result struct {
	// OriginalIndex is the product's position in the indexed list.
	OriginalIndex int

	Product catalog.Product

	// Score is the BM25 relevance, higher better.
	Score float64

	// Rank is the position in the lexical ordering, lower better. Ranking
	// tie-breaks use it as the relevance of last resort.
	Rank int
}

// Config configures the lexical index.
type Config struct {
	// ResultCacheSize bounds the cached query → results map.
	ResultCacheSize int
}

// Index is the in-memory keyword index over a product snapshot. Safe for
// concurrent use; Rebuild swaps the whole structure.
type Index struct {
	mu       sync.RWMutex
	index    bleve.Index
	products []catalog.Product
	closed   bool

	cache *lru.Cache[string, []Result]
}

type productDoc struct {
	Name        string `json:"name"`
	ProductType string `json:"product_type"`
	Category    string `json:"category"`
}

// New creates an empty in-memory index.
func New(cfg Config) (*Index, error) {
	size := cfg.ResultCacheSize
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	cache, err := lru.New[string, []Result](size)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Index{index: idx, cache: cache}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenMap(productStopMapName, map[string]interface{}{
		"type":   tokenmap.Name,
		"tokens": stopTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("add stop token map: %w", err)
	}

	err = indexMapping.AddCustomTokenFilter(productStopName, map[string]interface{}{
		"type":           stop.Name,
		"stop_token_map": productStopMapName,
	})
	if err != nil {
		return nil, fmt.Errorf("add stop filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(productAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			productStopName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = productAnalyzerName
	return indexMapping, nil
}

// Rebuild replaces the indexed snapshot. Existing documents are dropped,
// the new list is indexed in one batch, and the result cache is purged.
func (x *Index) Rebuild(ctx context.Context, products []catalog.Product) error {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return err
	}
	fresh, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	batch := fresh.NewBatch()
	for i := range products {
		doc := productDoc{
			Name:        products[i].Name,
			ProductType: products[i].ProductType,
			Category:    products[i].Category,
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			return fmt.Errorf("index product %d: %w", i, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		_ = fresh.Close()
		return fmt.Errorf("index is closed")
	}
	old := x.index
	x.index = fresh
	x.products = products
	x.cache.Purge()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search returns the top products for a query, BM25-ranked with a prefix
// boost on the trailing term so partially typed words still match. Blank
// queries return an empty list.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || limit <= 0 {
		return []Result{}, nil
	}

	key := cacheKey(trimmed, limit)
	if cached, ok := x.cache.Get(key); ok {
		return cached, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("index is closed")
	}

	matchName := bleve.NewMatchQuery(trimmed)
	matchName.SetField("name")
	matchType := bleve.NewMatchQuery(trimmed)
	matchType.SetField("product_type")

	// Partial trailing word: "mil" should still surface "milk".
	terms := strings.Fields(strings.ToLower(trimmed))
	prefix := bleve.NewPrefixQuery(terms[len(terms)-1])
	prefix.SetField("name")

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(matchName, matchType, prefix))
	searchRequest.Size = limit

	result, err := x.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(result.Hits))
	for rank, hit := range result.Hits {
		idx, err := strconv.Atoi(hit.ID)
		if err != nil || idx < 0 || idx >= len(x.products) {
			continue
		}
		results = append(results, Result{
			OriginalIndex: idx,
			Product:       x.products[idx],
			Score:         hit.Score,
			Rank:          rank,
		})
	}

	x.cache.Add(key, results)
	return results, nil
}

func cacheKey(query string, limit int) string {
	return strings.ToLower(query) + "\x00" + strconv.Itoa(limit)
}

// Count reports the number of indexed products.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.products)
}

// Product returns the indexed product at a positional index.
func (x *Index) Product(i int) (catalog.Product, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.products) {
		return catalog.Product{}, false
	}
	return x.products[i], true
}

// Products returns the indexed snapshot. The returned slice must not be
// mutated.
func (x *Index) Products() []catalog.Product {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.products
}

// Close releases the underlying index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.index.Close()
}
