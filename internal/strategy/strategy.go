// Package strategy implements the ranking policies that turn fetched or
// prefiltered candidates into an ordered result page. Each strategy is a
// small value configured with everything it needs up front; Search never
// reaches outside its inputs except through the injected collaborators.
package strategy

import (
	"context"

	"github.com/quickcart/searchcore/internal/catalog"
)

// Result is a ranked product list plus the catalog-side total, which may
// exceed the number of returned products.
type Result struct {
	Products []catalog.Product
	Total    int
}

// Strategy ranks candidates for one query.
type Strategy interface {
	Search(ctx context.Context) (Result, error)
}

// Deduplicate removes products sharing a composite hash, keeping the first
// occurrence. Applying it twice yields the same list as applying it once.
func Deduplicate(products []catalog.Product) []catalog.Product {
	seen := make(map[string]bool, len(products))
	out := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		key := p.Hash.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
