package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/quickcart/searchcore/internal/catalog"
)

// segment identifiers, in concatenation priority order.
const (
	segPrimary = iota
	segSameType
	segMappedType
	segSameSubcategory
	segSameCategory
	segOther
	segmentCount
)

// DirectSearchStrategy serves a free-text query by widening around its best
// lexical match: same-type, mapped-category, and same-subcategory candidate
// sets are fetched concurrently, grouped by brand when one is inferable,
// and concatenated in fixed segment order.
type DirectSearchStrategy struct {
	Fetcher catalog.Fetcher

	// Query is the free-text query.
	Query string

	// Seed anchors the candidate fetches; typically the best lexical match.
	Seed *catalog.Product

	// Primary is the precomputed primary match list, placed first.
	Primary []catalog.Product

	// Relevance maps hash strings to lexical ranks for tie-breaking.
	Relevance map[string]int

	// Limit bounds each fetched candidate set.
	Limit int
}

func (s *DirectSearchStrategy) Search(ctx context.Context) (Result, error) {
	return fetchAndAssemble(ctx, s.Fetcher, s.Query, s.Seed, s.Primary, s.Relevance, s.Limit)
}

// ProductSelectionStrategy serves an explicit product selection: the
// selected product leads, and its type, subcategory, and category drive the
// same widening as a direct search.
type ProductSelectionStrategy struct {
	Fetcher  catalog.Fetcher
	Selected catalog.Product
	Limit    int
}

func (s *ProductSelectionStrategy) Search(ctx context.Context) (Result, error) {
	seed := s.Selected
	return fetchAndAssemble(ctx, s.Fetcher, s.Selected.Name, &seed,
		[]catalog.Product{s.Selected}, nil, s.Limit)
}

func fetchAndAssemble(
	ctx context.Context,
	fetcher catalog.Fetcher,
	query string,
	seed *catalog.Product,
	primary []catalog.Product,
	relevance map[string]int,
	limit int,
) (Result, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		typed      catalog.TypedResult
		mapped     []*catalog.Product
		additional []*catalog.Product
	)

	if seed != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			typed, err = fetcher.FetchByType(gctx, seed.Category, seed.Subcategory, seed.ProductType, limit)
			return err
		})
		g.Go(func() error {
			mappedCategory := catalog.MappedCategory(seed.ProductType)
			if mappedCategory == "" || mappedCategory == seed.Category {
				return nil
			}
			var err error
			mapped, err = fetcher.FetchByCategory(gctx, mappedCategory, limit)
			return err
		})
		g.Go(func() error {
			var err error
			additional, err = fetcher.FetchAdditional(gctx, seed.Category, seed.Subcategory, seed.ProductType, limit)
			return err
		})
		if err := g.Wait(); err != nil {
			// Best-available fallback: the primary matches alone beat an
			// empty page.
			if len(primary) > 0 {
				deduped := Deduplicate(primary)
				return Result{Products: deduped, Total: len(deduped)}, nil
			}
			return Result{}, err
		}
	}

	segments := make([][]catalog.Product, segmentCount)
	segments[segPrimary] = primary

	assign := func(batch []*catalog.Product) {
		for _, p := range batch {
			if p == nil {
				continue
			}
			seg := classify(seed, p)
			segments[seg] = append(segments[seg], *p)
		}
	}
	assign(typed.Products)
	assign(additional)
	assign(mapped)

	brand := inferQueryBrand(query, seed, segments[segSameType])

	var out []catalog.Product
	for seg, products := range segments {
		if seg != segPrimary {
			if brand != "" {
				products = groupByBrand(products, brand)
			} else {
				rankProducts(products, query, relevance)
			}
		}
		out = append(out, products...)
	}
	out = Deduplicate(out)

	total := len(out)
	if typed.Total > total {
		total = typed.Total
	}
	return Result{Products: out, Total: total}, nil
}

// classify places a fetched candidate in its highest-priority segment
// relative to the seed product.
func classify(seed *catalog.Product, p *catalog.Product) int {
	if seed == nil {
		return segOther
	}
	switch {
	case p.ProductType != "" && p.ProductType == seed.ProductType:
		return segSameType
	case catalog.MappedCategory(seed.ProductType) != "" && p.Category == catalog.MappedCategory(seed.ProductType) && p.Category != seed.Category:
		return segMappedType
	case p.Subcategory != "" && p.Subcategory == seed.Subcategory && p.Category == seed.Category:
		return segSameSubcategory
	case p.Category != "" && p.Category == seed.Category:
		return segSameCategory
	default:
		return segOther
	}
}
