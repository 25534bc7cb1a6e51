package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/searchcore/internal/embed"
	"github.com/quickcart/searchcore/internal/vector"
)

func testWorkerConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		DataDir:    t.TempDir(),
		Dimensions: embed.Dimensions,
		Defaults: vector.Config{
			Dimensions:     embed.Dimensions,
			MaxElements:    1000,
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
		},
	}
}

func startWorker(t *testing.T) *Worker {
	t.Helper()
	w := New(testWorkerConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)
	return w
}

func mustSend(t *testing.T, w *Worker, p Payload) Response {
	t.Helper()
	resp, err := w.Send(context.Background(), p)
	require.NoError(t, err)
	return resp
}

func bootWorker(t *testing.T) *Worker {
	t.Helper()
	w := startWorker(t)
	require.True(t, mustSend(t, w, InitLibraryRequest{}).Success)
	require.True(t, mustSend(t, w, LoadModelRequest{}).Success)
	return w
}

func basisVector(axis int) []float32 {
	v := make([]float32, embed.Dimensions)
	v[axis] = 1
	return v
}

func initIndexReq(ctx vector.Context) InitIndexRequest {
	return InitIndexRequest{
		MaxElements:    1000,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		Context:        ctx,
	}
}

func TestWorker_StartAndStop(t *testing.T) {
	w := New(testWorkerConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()
	w.Stop() // idempotent
}

func TestWorker_SendAfterStopFails(t *testing.T) {
	w := New(testWorkerConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()

	_, err := w.Send(context.Background(), InitLibraryRequest{})
	assert.Error(t, err)
}

func TestWorker_EmbedQueryRequiresModel(t *testing.T) {
	w := startWorker(t)

	resp := mustSend(t, w, EmbedQueryRequest{Query: "milk"})
	assert.False(t, resp.Success, "embed without loadModel fails via response, not channel error")
	assert.NotEmpty(t, resp.Err)
}

func TestWorker_EmbedQuery(t *testing.T) {
	w := bootWorker(t)

	resp := mustSend(t, w, EmbedQueryRequest{Query: "organic milk"})
	require.True(t, resp.Success)

	data, ok := resp.Data.(EmbedResult)
	require.True(t, ok)
	assert.Len(t, data.Vector, embed.Dimensions)
}

func TestWorker_LoadModelIdempotent(t *testing.T) {
	w := bootWorker(t)
	require.True(t, mustSend(t, w, LoadModelRequest{}).Success)
}

func TestWorker_InitIndexRequiresLibrary(t *testing.T) {
	w := startWorker(t)

	resp := mustSend(t, w, initIndexReq(vector.ContextGlobal))
	assert.False(t, resp.Success)
}

func TestWorker_InitAddSearch(t *testing.T) {
	w := bootWorker(t)

	resp := mustSend(t, w, initIndexReq(vector.ContextGlobal))
	require.True(t, resp.Success)
	init, ok := resp.Data.(InitIndexResult)
	require.True(t, ok)
	assert.False(t, init.LoadedFromDisk)
	assert.Zero(t, init.Count)

	resp = mustSend(t, w, AddPointsRequest{
		Points: []vector.Point{
			{Embedding: basisVector(0), OriginalIndex: 5},
			{Embedding: basisVector(1), OriginalIndex: 9},
		},
		Context: vector.ContextGlobal,
	})
	require.True(t, resp.Success)

	resp = mustSend(t, w, SearchRequest{
		QueryEmbedding: basisVector(1),
		Limit:          1,
		Context:        vector.ContextGlobal,
	})
	require.True(t, resp.Success)
	search, ok := resp.Data.(SearchResult)
	require.True(t, ok)
	require.Len(t, search.Neighbors, 1)
	assert.Equal(t, 9, search.Neighbors[0].OriginalIndex)
}

func TestWorker_SearchUninitializedContextFails(t *testing.T) {
	w := bootWorker(t)

	resp := mustSend(t, w, SearchRequest{
		QueryEmbedding: basisVector(0),
		Limit:          3,
		Context:        vector.ContextTemporary,
	})
	assert.False(t, resp.Success)
}

func TestWorker_ContextIsolation(t *testing.T) {
	w := bootWorker(t)

	require.True(t, mustSend(t, w, initIndexReq(vector.ContextGlobal)).Success)
	require.True(t, mustSend(t, w, AddPointsRequest{
		Points:  []vector.Point{{Embedding: basisVector(0), OriginalIndex: 1}},
		Context: vector.ContextGlobal,
	}).Success)

	globalBefore := mustSend(t, w, SearchRequest{
		QueryEmbedding: basisVector(0), Limit: 5, Context: vector.ContextGlobal,
	})
	require.True(t, globalBefore.Success)

	// Populate the temporary context with different points.
	require.True(t, mustSend(t, w, initIndexReq(vector.ContextTemporary)).Success)
	require.True(t, mustSend(t, w, AddPointsRequest{
		Points: []vector.Point{
			{Embedding: basisVector(2), OriginalIndex: 7},
			{Embedding: basisVector(3), OriginalIndex: 8},
		},
		Context: vector.ContextTemporary,
	}).Success)

	globalAfter := mustSend(t, w, SearchRequest{
		QueryEmbedding: basisVector(0), Limit: 5, Context: vector.ContextGlobal,
	})
	require.True(t, globalAfter.Success)

	assert.Equal(t,
		globalBefore.Data.(SearchResult).Neighbors,
		globalAfter.Data.(SearchResult).Neighbors,
		"temporary context population must not alter global results")

	temp := mustSend(t, w, SearchRequest{
		QueryEmbedding: basisVector(2), Limit: 1, Context: vector.ContextTemporary,
	})
	require.True(t, temp.Success)
	assert.Equal(t, 7, temp.Data.(SearchResult).Neighbors[0].OriginalIndex)
}

func TestWorker_SaveRejectsTemporaryContext(t *testing.T) {
	w := bootWorker(t)

	require.True(t, mustSend(t, w, initIndexReq(vector.ContextTemporary)).Success)

	resp := mustSend(t, w, SaveIndexRequest{Filename: "temp.hnsw", Context: vector.ContextTemporary})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Err, "global")
}

func TestWorker_PersistRoundTrip(t *testing.T) {
	cfg := testWorkerConfig(t)

	w := New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.True(t, mustSend(t, w, InitLibraryRequest{}).Success)

	req := initIndexReq(vector.ContextGlobal)
	req.Filename = "catalog.hnsw"
	req.Persist = true
	require.True(t, mustSend(t, w, req).Success)

	points := make([]vector.Point, 20)
	for i := range points {
		points[i] = vector.Point{Embedding: basisVector(i), OriginalIndex: i}
	}
	// Put the interesting point at original index 17.
	require.True(t, mustSend(t, w, AddPointsRequest{Points: points, Context: vector.ContextGlobal}).Success)
	require.True(t, mustSend(t, w, SaveIndexRequest{Context: vector.ContextGlobal}).Success)
	w.Stop()

	// Fresh worker loads the saved structure instead of allocating.
	w2 := New(cfg, nil)
	require.NoError(t, w2.Start(context.Background()))
	t.Cleanup(w2.Stop)
	require.True(t, mustSend(t, w2, InitLibraryRequest{}).Success)

	resp := mustSend(t, w2, req)
	require.True(t, resp.Success)
	init := resp.Data.(InitIndexResult)
	assert.True(t, init.LoadedFromDisk)
	assert.Equal(t, 20, init.Count)

	search := mustSend(t, w2, SearchRequest{
		QueryEmbedding: basisVector(17), Limit: 1, Context: vector.ContextGlobal,
	})
	require.True(t, search.Success)
	require.NotEmpty(t, search.Data.(SearchResult).Neighbors)
	assert.Equal(t, 17, search.Data.(SearchResult).Neighbors[0].OriginalIndex)
}

func TestWorker_ForceRebuildSkipsLoad(t *testing.T) {
	cfg := testWorkerConfig(t)
	w := New(cfg, nil)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	require.True(t, mustSend(t, w, InitLibraryRequest{}).Success)

	req := initIndexReq(vector.ContextGlobal)
	req.Filename = "catalog.hnsw"
	req.Persist = true
	require.True(t, mustSend(t, w, req).Success)
	require.True(t, mustSend(t, w, AddPointsRequest{
		Points:  []vector.Point{{Embedding: basisVector(0), OriginalIndex: 0}},
		Context: vector.ContextGlobal,
	}).Success)
	require.True(t, mustSend(t, w, SaveIndexRequest{Context: vector.ContextGlobal}).Success)

	req.ForceRebuild = true
	resp := mustSend(t, w, req)
	require.True(t, resp.Success)
	init := resp.Data.(InitIndexResult)
	assert.False(t, init.LoadedFromDisk)
	assert.Zero(t, init.Count)
}

func TestWorker_SwitchContext(t *testing.T) {
	w := bootWorker(t)

	// No-op switch still succeeds.
	resp := mustSend(t, w, SwitchContextRequest{Target: vector.ContextGlobal})
	assert.True(t, resp.Success)

	resp = mustSend(t, w, SwitchContextRequest{Target: vector.ContextTemporary})
	assert.True(t, resp.Success)

	resp = mustSend(t, w, SwitchContextRequest{Target: vector.Context("staging")})
	assert.False(t, resp.Success)
}

func TestWorker_SwitchContextOnDemandLoad(t *testing.T) {
	cfg := testWorkerConfig(t)

	// Build and save a global index in a first worker.
	w := New(cfg, nil)
	require.NoError(t, w.Start(context.Background()))
	require.True(t, mustSend(t, w, InitLibraryRequest{}).Success)
	req := initIndexReq(vector.ContextGlobal)
	req.Filename = "catalog.hnsw"
	req.Persist = true
	require.True(t, mustSend(t, w, req).Success)
	require.True(t, mustSend(t, w, AddPointsRequest{
		Points:  []vector.Point{{Embedding: basisVector(4), OriginalIndex: 4}},
		Context: vector.ContextGlobal,
	}).Success)
	require.True(t, mustSend(t, w, SaveIndexRequest{Context: vector.ContextGlobal}).Success)
	w.Stop()

	// Fresh worker: move active away from global, then switch back with
	// a filename; the saved index is loaded on demand.
	w2 := New(cfg, nil)
	require.NoError(t, w2.Start(context.Background()))
	t.Cleanup(w2.Stop)
	require.True(t, mustSend(t, w2, InitLibraryRequest{}).Success)
	require.True(t, mustSend(t, w2, SwitchContextRequest{Target: vector.ContextTemporary}).Success)
	require.True(t, mustSend(t, w2, SwitchContextRequest{
		Target:   vector.ContextGlobal,
		Filename: "catalog.hnsw",
	}).Success)

	search := mustSend(t, w2, SearchRequest{
		QueryEmbedding: basisVector(4), Limit: 1, Context: vector.ContextGlobal,
	})
	require.True(t, search.Success)
	require.NotEmpty(t, search.Data.(SearchResult).Neighbors)
	assert.Equal(t, 4, search.Data.(SearchResult).Neighbors[0].OriginalIndex)
}

func TestWorker_ProgressEvents(t *testing.T) {
	w := bootWorker(t)

	require.True(t, mustSend(t, w, initIndexReq(vector.ContextGlobal)).Success)

	points := make([]vector.Point, 40)
	for i := range points {
		points[i] = vector.Point{Embedding: basisVector(i), OriginalIndex: i}
	}
	require.True(t, mustSend(t, w, AddPointsRequest{Points: points, Context: vector.ContextGlobal}).Success)

	var events []Progress
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case p := <-w.Progress():
			events = append(events, p)
			if p.Done == p.Total {
				break collect
			}
		case <-timeout:
			break collect
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 40, last.Total)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, vector.ContextGlobal, last.Context)
}

func TestWorker_AddPointsInvalidEmbeddingFails(t *testing.T) {
	w := bootWorker(t)

	require.True(t, mustSend(t, w, initIndexReq(vector.ContextGlobal)).Success)

	resp := mustSend(t, w, AddPointsRequest{
		Points:  []vector.Point{{Embedding: make([]float32, 10), OriginalIndex: 0}},
		Context: vector.ContextGlobal,
	})
	assert.False(t, resp.Success)
}
