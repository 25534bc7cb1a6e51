package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/searchcore/internal/catalog"
	"github.com/quickcart/searchcore/internal/embed"
	"github.com/quickcart/searchcore/internal/vector"
	"github.com/quickcart/searchcore/internal/worker"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Worker: worker.Config{
			DataDir:    t.TempDir(),
			Dimensions: embed.Dimensions,
			Defaults: vector.Config{
				Dimensions:     embed.Dimensions,
				MaxElements:    1000,
				M:              16,
				EfConstruction: 200,
				EfSearch:       64,
			},
		},
		QueryCacheCapacity: 10,
		StartupTimeout:     5 * time.Second,
	}
}

func readyCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c := New(testConfig(t), nil)
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(c.Dispose)
	return c
}

func axisProducts(axes ...int) []catalog.Product {
	products := make([]catalog.Product, len(axes))
	for i, axis := range axes {
		v := make([]float32, embed.Dimensions)
		v[axis] = 1
		products[i] = catalog.Product{
			Name:      fmt.Sprintf("product-%d", axis),
			Category:  "produce",
			Embedding: v,
			Hash:      catalog.CompositeHash{Group: "produce", Index: axis},
		}
	}
	return products
}

func axisQuery(axis int) []float32 {
	v := make([]float32, embed.Dimensions)
	v[axis] = 1
	return v
}

func TestInitialize_Idempotent(t *testing.T) {
	c := readyCoordinator(t)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Initialize(context.Background()))
}

func TestInitialize_ConcurrentCallsShareOneInit(t *testing.T) {
	c := New(testConfig(t), nil)
	t.Cleanup(c.Dispose)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestGetQueryEmbedding_BlankQueryIsNil(t *testing.T) {
	c := readyCoordinator(t)

	vec, err := c.GetQueryEmbedding(context.Background(), "   ", 1)
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestGetQueryEmbedding_Deterministic(t *testing.T) {
	c := readyCoordinator(t)

	first, err := c.GetQueryEmbedding(context.Background(), "organic milk", 1)
	require.NoError(t, err)
	require.Len(t, first, embed.Dimensions)

	second, err := c.GetQueryEmbedding(context.Background(), "organic milk", 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetQueryEmbedding_NormalizedCacheKey(t *testing.T) {
	c := readyCoordinator(t)

	first, err := c.GetQueryEmbedding(context.Background(), "Milk", 1)
	require.NoError(t, err)

	c.mu.Lock()
	cached := c.cache.Len()
	c.mu.Unlock()
	require.Equal(t, 1, cached)

	// Different surface form, same normalized key: no second cache entry.
	second, err := c.GetQueryEmbedding(context.Background(), "  milk ", 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	c.mu.Lock()
	cached = c.cache.Len()
	c.mu.Unlock()
	assert.Equal(t, 1, cached)
}

func TestGetQueryEmbedding_BeforeInitializeFails(t *testing.T) {
	c := New(testConfig(t), nil)

	_, err := c.GetQueryEmbedding(context.Background(), "milk", 1)
	assert.Error(t, err)
}

func TestPrepareIndex_ThenRank(t *testing.T) {
	c := readyCoordinator(t)

	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0, 1, 2), 1, PrepareOptions{}))
	assert.True(t, c.IndexReady(vector.ContextGlobal))

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(1), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)
}

func TestPrepareIndex_SameGenerationSkipsRebuild(t *testing.T) {
	c := readyCoordinator(t)

	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0, 1), 7, PrepareOptions{}))

	// Same generation token with a different product list: the rebuild is
	// skipped, so results still reflect the first list.
	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(5, 6), 7, PrepareOptions{}))

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(1), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)

	// A new generation rebuilds.
	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(5, 6), 8, PrepareOptions{}))

	neighbors, err = c.RankBySimilarity(context.Background(), axisQuery(6), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)
}

func TestPrepareIndex_ForceRebuild(t *testing.T) {
	c := readyCoordinator(t)

	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0, 1), 3, PrepareOptions{}))
	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(5, 6), 3, PrepareOptions{ForceRebuild: true}))

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(6), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)
}

func TestPrepareIndex_SkipsProductsWithoutEmbeddings(t *testing.T) {
	c := readyCoordinator(t)

	products := axisProducts(0, 1, 2)
	products[1].Embedding = nil

	require.NoError(t, c.PrepareIndex(context.Background(), products, 1, PrepareOptions{}))

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(2), 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 2, neighbors[0].OriginalIndex, "original positions survive the gap")
}

func TestPrepareIndex_TemporaryContext(t *testing.T) {
	c := readyCoordinator(t)

	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0, 1), 1, PrepareOptions{}))
	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(8, 9), 2, PrepareOptions{
		Context: vector.ContextTemporary,
	}))
	assert.Equal(t, vector.ContextTemporary, c.ActiveContext())

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(9), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)

	// Switching back to global restores the durable view.
	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0, 1), 1, PrepareOptions{}))
	assert.Equal(t, vector.ContextGlobal, c.ActiveContext())

	neighbors, err = c.RankBySimilarity(context.Background(), axisQuery(1), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 1, neighbors[0].OriginalIndex)
}

func TestRankBySimilarity_EmptyWhenNotPrepared(t *testing.T) {
	c := readyCoordinator(t)

	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(0), 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestDispose_ResetsAndAllowsReinitialize(t *testing.T) {
	c := readyCoordinator(t)

	require.NoError(t, c.PrepareIndex(context.Background(), axisProducts(0), 1, PrepareOptions{}))
	c.Dispose()

	assert.False(t, c.IndexReady(vector.ContextGlobal))
	_, err := c.GetQueryEmbedding(context.Background(), "milk", 1)
	assert.Error(t, err)

	require.NoError(t, c.Initialize(context.Background()))
	neighbors, err := c.RankBySimilarity(context.Background(), axisQuery(0), 1)
	require.NoError(t, err)
	assert.Empty(t, neighbors, "index readiness does not survive dispose")
}

func TestDispose_Idempotent(t *testing.T) {
	c := readyCoordinator(t)
	c.Dispose()
	c.Dispose()
}

func TestEmbedQueue_PriorityThenFIFO(t *testing.T) {
	q := newEmbedQueue()

	submit := func(name string, priority int) {
		require.True(t, q.Submit(&embedTask{query: name, priority: priority}))
	}
	submit("a", 1)
	submit("b", 5)
	submit("c", 1)
	submit("d", 5)

	var order []string
	for range 4 {
		order = append(order, q.Next().query)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order,
		"higher priority first, arrival order among equals")
}

func TestEmbedQueue_CloseRejectsAndReturnsPending(t *testing.T) {
	q := newEmbedQueue()
	require.True(t, q.Submit(&embedTask{query: "a", priority: 1}))
	require.True(t, q.Submit(&embedTask{query: "b", priority: 2}))

	pending := q.Close()
	assert.Len(t, pending, 2)
	assert.False(t, q.Submit(&embedTask{query: "c", priority: 1}))
	assert.Nil(t, q.Next())
}

func TestQueryCache_EvictsOldestFifth(t *testing.T) {
	cache := newQueryCache(10)

	vec := []float32{1}
	for i := range 10 {
		cache.Put(fmt.Sprintf("q%d", i), vec)
	}
	require.Equal(t, 10, cache.Len())

	// Refresh q0 so it is no longer the stalest entry.
	_, ok := cache.Get("q0")
	require.True(t, ok)

	// Overflow: the two stalest entries (q1, q2) go in one sweep.
	cache.Put("q10", vec)
	assert.Equal(t, 9, cache.Len())

	_, ok = cache.Get("q0")
	assert.True(t, ok, "recently accessed entry survives")
	_, ok = cache.Get("q1")
	assert.False(t, ok)
	_, ok = cache.Get("q2")
	assert.False(t, ok)
	_, ok = cache.Get("q10")
	assert.True(t, ok)
}

func TestQueryCache_UpdateDoesNotGrow(t *testing.T) {
	cache := newQueryCache(10)
	cache.Put("milk", []float32{1})
	cache.Put("milk", []float32{2})
	assert.Equal(t, 1, cache.Len())

	vec, ok := cache.Get("milk")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, vec)
}
