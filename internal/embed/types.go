// Package embed generates vector embeddings for paper text and queries.
//
// The default provider is Ollama's HTTP embed API; a deterministic
// hash-based static embedder exists for tests and offline use. Both
// return unit-normalized vectors so downstream cosine similarity is a
// plain dot product.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts per embed request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embed request. Cold model loads
	// can take tens of seconds, so this is generous.
	DefaultTimeout = 60 * time.Second

	// DefaultOllamaHost is the local Ollama endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// StaticDimensions is the static embedder's vector size.
	StaticDimensions = 256

	// DefaultMaxRetries is the retry budget per embed request.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
