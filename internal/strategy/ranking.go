package strategy

import (
	"sort"
	"strings"

	"github.com/quickcart/searchcore/internal/catalog"
)

// unranked is the relevance assigned to products absent from the lexical
// result set. Anything the lexical index scored sorts ahead of it.
const unranked = 1 << 30

// parsedQuery is the precomputed view of a query the tie-break rules need.
type parsedQuery struct {
	full       string
	terms      []string
	qualifiers []string
}

func parseQuery(query string) parsedQuery {
	full := strings.ToLower(strings.TrimSpace(query))
	terms := strings.Fields(full)
	var qualifiers []string
	for _, term := range terms {
		if catalog.IsQualifier(term) {
			qualifiers = append(qualifiers, term)
		}
	}
	return parsedQuery{full: full, terms: terms, qualifiers: qualifiers}
}

// rankKey holds one product's answers to the tie-break questions, computed
// once before sorting.
type rankKey struct {
	exactType    bool
	typeHasTerm  bool
	wordInName   bool
	qualifierHit bool
	relevance    int
}

func (q parsedQuery) keyFor(p *catalog.Product, relevance int) rankKey {
	productType := strings.ToLower(p.ProductType)
	nameTokens := strings.Fields(strings.ToLower(p.Name))

	key := rankKey{relevance: relevance}
	key.exactType = q.full != "" && productType == q.full

	for _, term := range q.terms {
		if strings.Contains(productType, term) {
			key.typeHasTerm = true
			break
		}
	}
	for _, token := range nameTokens {
		for _, term := range q.terms {
			if token == term {
				key.wordInName = true
				break
			}
		}
		if key.wordInName {
			break
		}
	}
	if len(q.qualifiers) > 0 {
		for _, token := range nameTokens {
			for _, qual := range q.qualifiers {
				if token == qual {
					key.qualifierHit = true
					break
				}
			}
			if key.qualifierHit {
				break
			}
		}
	}
	return key
}

// less applies the tie-break rules in order; the first rule on which the
// two products differ decides.
func (a rankKey) less(b rankKey) bool {
	if a.exactType != b.exactType {
		return a.exactType
	}
	if a.typeHasTerm != b.typeHasTerm {
		return a.typeHasTerm
	}
	if a.wordInName != b.wordInName {
		return a.wordInName
	}
	if a.qualifierHit != b.qualifierHit {
		return a.qualifierHit
	}
	return a.relevance < b.relevance
}

// rankProducts sorts products by the tie-break rules. relevance maps a
// product's hash string to its lexical rank (lower better); products the
// lexical index never scored sort last among otherwise-equal keys. The sort
// is stable so equal products keep their incoming order.
func rankProducts(products []catalog.Product, query string, relevance map[string]int) {
	q := parseQuery(query)
	keys := make([]rankKey, len(products))
	for i := range products {
		rel := unranked
		if r, ok := relevance[products[i].Hash.String()]; ok {
			rel = r
		}
		keys[i] = q.keyFor(&products[i], rel)
	}

	order := make([]int, len(products))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]].less(keys[order[j]])
	})

	sorted := make([]catalog.Product, len(products))
	for i, idx := range order {
		sorted[i] = products[idx]
	}
	copy(products, sorted)
}

// groupByBrand clusters products by their inferred brand, preserving the
// order brands are first seen and each product's order within its cluster.
// When preferred is non-empty, that brand's cluster moves to the front.
func groupByBrand(products []catalog.Product, preferred string) []catalog.Product {
	clusters := make(map[string][]catalog.Product)
	var brandOrder []string
	for _, p := range products {
		brand := catalog.InferBrand(p.Name)
		if _, ok := clusters[brand]; !ok {
			brandOrder = append(brandOrder, brand)
		}
		clusters[brand] = append(clusters[brand], p)
	}

	if preferred != "" {
		for i, brand := range brandOrder {
			if strings.EqualFold(brand, preferred) {
				brandOrder = append([]string{brand}, append(append([]string{}, brandOrder[:i]...), brandOrder[i+1:]...)...)
				break
			}
		}
	}

	out := make([]catalog.Product, 0, len(products))
	for _, brand := range brandOrder {
		out = append(out, clusters[brand]...)
	}
	return out
}

// inferQueryBrand returns the brand to group by: the seed product's brand
// when a seed exists, otherwise a query token that matches some candidate's
// inferred brand. Empty means no brand is inferable.
func inferQueryBrand(query string, seed *catalog.Product, candidates []catalog.Product) string {
	if seed != nil {
		if brand := catalog.InferBrand(seed.Name); brand != "" {
			return brand
		}
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return ""
	}
	for _, p := range candidates {
		brand := catalog.InferBrand(p.Name)
		if brand == "" {
			continue
		}
		lower := strings.ToLower(brand)
		for _, term := range terms {
			if term == lower {
				return brand
			}
		}
	}
	return ""
}
