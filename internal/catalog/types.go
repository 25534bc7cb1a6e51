// Package catalog defines the product data model and the narrow interface
// through which searchcore consumes decoded catalog records. The search core
// never decodes raw ledger data itself.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingDimensions is the fixed embedding dimension for catalog products.
// Vectors of any other length are excluded from ANN indexing.
const EmbeddingDimensions = 384

// CompositeHash identifies a product by its ledger group and its index
// within that group. Identity is structural: two products are the same
// entity iff their string forms match.
type CompositeHash struct {
	Group string
	Index int
}

// String returns the canonical "group:index" form used for equality.
func (h CompositeHash) String() string {
	return h.Group + ":" + strconv.Itoa(h.Index)
}

// ParseCompositeHash parses the canonical "group:index" form.
func ParseCompositeHash(s string) (CompositeHash, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return CompositeHash{}, fmt.Errorf("malformed composite hash %q", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return CompositeHash{}, fmt.Errorf("malformed composite hash %q: %w", s, err)
	}
	return CompositeHash{Group: s[:i], Index: idx}, nil
}

// Product is a single catalog item.
type Product struct {
	Name        string
	Category    string
	Subcategory string
	ProductType string

	Price float64
	// PromoPrice is nil when the product has no promotion. A promo price
	// that is not strictly below Price is treated as absent.
	PromoPrice *float64

	SoldByUnit bool
	ImageRef   string

	// Embedding is the 384-dimension vector, or empty when the product
	// has not been embedded yet. Empty is a valid state: the product is
	// still eligible for lexical search.
	Embedding []float32

	Hash CompositeHash
}

// HasValidEmbedding reports whether the product can participate in ANN
// candidate sets.
func (p *Product) HasValidEmbedding() bool {
	return len(p.Embedding) == EmbeddingDimensions
}

// EffectivePrice returns the promo price when one applies, else the price.
func (p *Product) EffectivePrice() float64 {
	if p.PromoPrice != nil && *p.PromoPrice < p.Price {
		return *p.PromoPrice
	}
	return p.Price
}

// Normalize enforces data-model invariants in place: a promo price that is
// not strictly below the regular price is dropped, and an embedding of the
// wrong dimension is cleared back to the "not yet embedded" state.
func (p *Product) Normalize() {
	if p.PromoPrice != nil && *p.PromoPrice >= p.Price {
		p.PromoPrice = nil
	}
	if len(p.Embedding) != 0 && len(p.Embedding) != EmbeddingDimensions {
		p.Embedding = nil
	}
	p.Name = strings.TrimSpace(p.Name)
}

// Same reports entity equality by CompositeHash string form.
func (p *Product) Same(other *Product) bool {
	if other == nil {
		return false
	}
	return p.Hash.String() == other.Hash.String()
}

// TypedResult is a fetch result that also carries the catalog-side total,
// which may exceed the number of returned products.
type TypedResult struct {
	Products []*Product
	Total    int
}

// Fetcher is the external collaborator supplying decoded product records.
type Fetcher interface {
	// FetchByCategory returns up to limit products in a category.
	FetchByCategory(ctx context.Context, category string, limit int) ([]*Product, error)

	// FetchByType returns products matching an exact category/subcategory/
	// product-type triple, plus the catalog-side total.
	FetchByType(ctx context.Context, category, subcategory, productType string, limit int) (TypedResult, error)

	// FetchAdditional returns products in the same category/subcategory
	// excluding a product type, used to pad result pages.
	FetchAdditional(ctx context.Context, category, subcategory, excludeType string, limit int) ([]*Product, error)
}
