package catalog

import (
	"sort"
	"strings"
)

// TopCategories are fetched first during a cache rebuild so the most
// commonly searched shelves become usable before the full catalog lands.
var TopCategories = []string{
	"produce",
	"dairy-eggs",
	"meat-seafood",
	"bakery",
	"beverages",
}

// categoryByType maps a product type to the category most often paired with
// it in queries ("milk" shoppers also want cream, "bread" shoppers butter).
// Used by the direct-search strategy to build the mapped-category segment.
var categoryByType = map[string]string{
	"milk":    "dairy-eggs",
	"cheese":  "dairy-eggs",
	"yogurt":  "dairy-eggs",
	"bread":   "bakery",
	"coffee":  "beverages",
	"tea":     "beverages",
	"juice":   "beverages",
	"chicken": "meat-seafood",
	"beef":    "meat-seafood",
	"fish":    "meat-seafood",
	"apple":   "produce",
	"banana":  "produce",
	"lettuce": "produce",
}

// MappedCategory returns the category associated with a product type, or
// empty when no mapping exists.
func MappedCategory(productType string) string {
	return categoryByType[strings.ToLower(strings.TrimSpace(productType))]
}

// AllCategories returns the fetch order for a full rebuild: the priority
// shelves first, then every other category the type mapping knows about,
// alphabetically for determinism.
func AllCategories() []string {
	seen := make(map[string]bool, len(TopCategories))
	out := make([]string, 0, len(TopCategories)+4)
	for _, c := range TopCategories {
		seen[c] = true
		out = append(out, c)
	}

	var rest []string
	for _, c := range categoryByType {
		if !seen[c] {
			seen[c] = true
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// InferBrand extracts the brand token from a product name: the text before
// a '®' glyph when present, otherwise the first whitespace token. This is a
// heuristic; names without a leading brand yield their first word.
func InferBrand(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.Index(name, "®"); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	if i := strings.IndexByte(name, ' '); i >= 0 {
		return name[:i]
	}
	return name
}

// Qualifiers is the fixed vocabulary of descriptive words recognized by the
// ranking tie-break rules.
var Qualifiers = map[string]bool{
	"organic":  true,
	"fresh":    true,
	"large":    true,
	"small":    true,
	"whole":    true,
	"natural":  true,
	"frozen":   true,
	"gluten":   true,
	"free":     true,
	"low":      true,
	"fat":      true,
	"sugar":    true,
	"unsalted": true,
	"raw":      true,
}

// IsQualifier reports whether a token belongs to the qualifier vocabulary.
func IsQualifier(token string) bool {
	return Qualifiers[strings.ToLower(token)]
}
