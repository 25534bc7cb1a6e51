// Package embed provides the query embedding model owned by the compute
// worker. The interactive side never calls an Embedder directly; it goes
// through the coordinator and the worker message protocol.
package embed

import (
	"context"
	"math"
)

// Dimensions is the embedding dimension for catalog queries and products.
const Dimensions = 384

// Embedder generates vector embeddings for query text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	inv := float32(1.0 / magnitude)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val * inv
	}
	return result
}
