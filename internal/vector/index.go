// Package vector provides the approximate-nearest-neighbor index structures
// owned by the compute worker. An Index maps dense internal labels to the
// positional index of each point in the source product list; that mapping is
// only meaningful for the list generation the index was built from.
package vector

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// Context names the two index contexts the worker manages.
type Context string

const (
	// ContextGlobal is the durable full-catalog index. It is the only
	// context that may be persisted.
	ContextGlobal Context = "global"

	// ContextTemporary is the ephemeral index over a filtered candidate
	// subset. Never persisted.
	ContextTemporary Context = "temporary"
)

// Valid reports whether c is one of the two known contexts.
func (c Context) Valid() bool {
	return c == ContextGlobal || c == ContextTemporary
}

// Config configures an Index.
type Config struct {
	// Dimensions is the fixed embedding dimension.
	Dimensions int

	// MaxElements caps the number of points; Search k is clamped to the
	// populated count.
	MaxElements int

	// M is HNSW max connections per layer.
	M int

	// EfConstruction is HNSW build-time search width.
	EfConstruction int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultConfig returns sensible defaults for a catalog-sized index.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		MaxElements:    50000,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

// Neighbor is a single ANN search result, already translated from the
// internal label back to the source-list position.
type Neighbor struct {
	// OriginalIndex is the position in the source product list.
	OriginalIndex int

	// Distance is the cosine distance (lower is more similar).
	Distance float32

	// Score is the normalized similarity (0-1, higher is better).
	Score float32
}

// Index is an HNSW graph plus the label -> original-index map.
// It is not safe for concurrent use by itself; the worker serializes
// all access to it.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	// labelMap maps a dense internal label to the point's positional
	// index in the source product list. Its length always equals the
	// populated count.
	labelMap map[uint64]int
	nextKey  uint64
}

// New allocates a fresh index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.MaxElements <= 0 {
		return nil, fmt.Errorf("max elements must be positive, got %d", cfg.MaxElements)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Index{
		graph:    graph,
		config:   cfg,
		labelMap: make(map[uint64]int),
		nextKey:  0,
	}, nil
}

// Point pairs an embedding with its position in the source product list.
type Point struct {
	Embedding     []float32
	OriginalIndex int
}

// Add appends points, assigning each a fresh dense label equal to the
// structure's size before insertion, and records label -> original index.
// The onProgress callback, when non-nil, is invoked with inserted/total
// roughly every 5% of the batch.
func (x *Index) Add(points []Point, onProgress func(done, total int)) error {
	if len(points) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.labelMap)+len(points) > x.config.MaxElements {
		return fmt.Errorf("index capacity exceeded: %d + %d > %d",
			len(x.labelMap), len(points), x.config.MaxElements)
	}

	step := len(points) / 20
	if step == 0 {
		step = 1
	}

	for i, p := range points {
		if len(p.Embedding) != x.config.Dimensions {
			return fmt.Errorf("dimension mismatch at point %d: expected %d, got %d",
				i, x.config.Dimensions, len(p.Embedding))
		}

		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(p.Embedding))
		copy(vec, p.Embedding)
		normalizeInPlace(vec)

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.labelMap[key] = p.OriginalIndex

		if onProgress != nil && ((i+1)%step == 0 || i+1 == len(points)) {
			onProgress(i+1, len(points))
		}
	}

	return nil
}

// Search runs a k-nearest-neighbor query, capped at the populated count,
// translating internal labels back to original indices. Labels with no
// mapping are dropped.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(query) != x.config.Dimensions {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d",
			x.config.Dimensions, len(query))
	}

	if x.graph.Len() == 0 {
		return []Neighbor{}, nil
	}

	if k > len(x.labelMap) {
		k = len(x.labelMap)
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := x.graph.Search(normalized, k)

	results := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		orig, ok := x.labelMap[node.Key]
		if !ok {
			// Defensive: should not occur while state invariants hold.
			continue
		}

		distance := x.graph.Distance(normalized, node.Value)
		results = append(results, Neighbor{
			OriginalIndex: orig,
			Distance:      distance,
			Score:         1.0 - distance/2.0,
		})
	}

	return results, nil
}

// Count returns the number of populated points.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.labelMap)
}

// Config returns the index configuration.
func (x *Index) Config() Config {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.config
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
