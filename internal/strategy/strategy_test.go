package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/lexical"
)

func product(name, productType, category, subcategory string, hashIndex int) catalog.Product {
	return catalog.Product{
		Name:        name,
		ProductType: productType,
		Category:    category,
		Subcategory: subcategory,
		Hash:        catalog.CompositeHash{Group: category, Index: hashIndex},
	}
}

func hashes(products []catalog.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Hash.String()
	}
	return out
}

func TestDeduplicate_Idempotent(t *testing.T) {
	list := []catalog.Product{
		product("Whole Milk", "milk", "dairy-eggs", "milk", 0),
		product("Whole Milk", "milk", "dairy-eggs", "milk", 0),
		product("2% Milk", "milk", "dairy-eggs", "milk", 1),
		product("Whole Milk", "milk", "dairy-eggs", "milk", 0),
	}

	once := Deduplicate(list)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)
	assert.Len(t, once, 2)
	assert.Equal(t, []string{"dairy-eggs:0", "dairy-eggs:1"}, hashes(once))
}

func TestRankProducts_ExactTypeWinsFirst(t *testing.T) {
	products := []catalog.Product{
		product("Milk Chocolate Bar", "chocolate", "snacks", "candy", 0),
		product("Whole Milk", "milk", "dairy-eggs", "milk", 1),
	}

	rankProducts(products, "milk", nil)
	assert.Equal(t, "Whole Milk", products[0].Name, "exact product-type match leads")
}

func TestRankProducts_TypeContainsTermBeatsNameWord(t *testing.T) {
	products := []catalog.Product{
		product("Fresh Milk Bread", "bread", "bakery", "loaves", 0),
		product("Barista Blend", "oat beverage", "beverages", "plant", 1),
	}

	rankProducts(products, "oat milk", nil)
	assert.Equal(t, "Barista Blend", products[0].Name,
		"type containing a term outranks a name word hit")
}

func TestRankProducts_QualifierRuleOnlyWithQualifiers(t *testing.T) {
	products := []catalog.Product{
		product("Plain Yogurt Tub", "snack", "dairy-eggs", "yogurt", 0),
		product("Organic Yogurt Tub", "snack", "dairy-eggs", "yogurt", 1),
	}

	// Both names contain "yogurt" (rule 3 ties); the qualifier hit on
	// "organic" decides.
	rankProducts(products, "organic yogurt", nil)
	assert.Equal(t, "Organic Yogurt Tub", products[0].Name)

	// Without qualifiers in the query the rule never fires; lexical
	// relevance (rule 5) decides instead.
	products = []catalog.Product{
		product("Plain Yogurt Tub", "snack", "dairy-eggs", "yogurt", 0),
		product("Organic Yogurt Tub", "snack", "dairy-eggs", "yogurt", 1),
	}
	relevance := map[string]int{"dairy-eggs:0": 0, "dairy-eggs:1": 1}
	rankProducts(products, "yogurt", relevance)
	assert.Equal(t, "Plain Yogurt Tub", products[0].Name)
}

func TestRankProducts_LexicalRelevanceLastResort(t *testing.T) {
	products := []catalog.Product{
		product("Cheddar Block", "cheese", "dairy-eggs", "cheese", 0),
		product("Gouda Wheel", "cheese", "dairy-eggs", "cheese", 1),
	}
	relevance := map[string]int{
		"dairy-eggs:0": 4,
		"dairy-eggs:1": 1,
	}

	rankProducts(products, "aged selection", relevance)
	assert.Equal(t, "Gouda Wheel", products[0].Name, "lower lexical rank wins")
}

func TestRankProducts_StableForEqualKeys(t *testing.T) {
	products := []catalog.Product{
		product("Apple One", "apple", "produce", "fruit", 0),
		product("Apple Two", "apple", "produce", "fruit", 1),
		product("Apple Three", "apple", "produce", "fruit", 2),
	}

	rankProducts(products, "apple", nil)
	assert.Equal(t, []string{"produce:0", "produce:1", "produce:2"}, hashes(products))
}

func TestGroupByBrand_FirstSeenOrder(t *testing.T) {
	products := []catalog.Product{
		product("Acme® Whole Milk", "milk", "dairy-eggs", "milk", 0),
		product("Borden Skim Milk", "milk", "dairy-eggs", "milk", 1),
		product("Acme® 2% Milk", "milk", "dairy-eggs", "milk", 2),
		product("Borden Whole Milk", "milk", "dairy-eggs", "milk", 3),
	}

	grouped := groupByBrand(products, "")
	assert.Equal(t, []string{"dairy-eggs:0", "dairy-eggs:2", "dairy-eggs:1", "dairy-eggs:3"},
		hashes(grouped), "clusters keep first-seen brand order")
}

func TestGroupByBrand_PreferredBrandLeads(t *testing.T) {
	products := []catalog.Product{
		product("Acme® Whole Milk", "milk", "dairy-eggs", "milk", 0),
		product("Borden Skim Milk", "milk", "dairy-eggs", "milk", 1),
	}

	grouped := groupByBrand(products, "borden")
	assert.Equal(t, "Borden Skim Milk", grouped[0].Name)
}

func TestInferBrand(t *testing.T) {
	assert.Equal(t, "Acme", catalog.InferBrand("Acme® Whole Milk"))
	assert.Equal(t, "Borden", catalog.InferBrand("Borden Skim Milk"))
	assert.Equal(t, "Milk", catalog.InferBrand("Milk"))
	assert.Equal(t, "", catalog.InferBrand("   "))
}

func TestTextSearchStrategy_DedupOnly(t *testing.T) {
	results := []lexical.Result{
		{Product: product("Whole Milk", "milk", "dairy-eggs", "milk", 0), Rank: 0},
		{Product: product("Whole Milk", "milk", "dairy-eggs", "milk", 0), Rank: 1},
		{Product: product("2% Milk", "milk", "dairy-eggs", "milk", 1), Rank: 2},
	}

	s := &TextSearchStrategy{Results: results}
	result, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dairy-eggs:0", "dairy-eggs:1"}, hashes(result.Products))
	assert.Equal(t, 2, result.Total)
}
