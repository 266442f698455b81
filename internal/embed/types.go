// Package embed turns text into L2-normalized vectors. Inner product of two
// embeddings from the same model is their cosine similarity.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 64

	// MaxBatchSize prevents oversized requests.
	MaxBatchSize = 512

	// DefaultTimeout bounds a single embedding request. The first request may
	// also load the model, so it gets DefaultColdTimeout.
	DefaultTimeout     = 60 * time.Second
	DefaultColdTimeout = 180 * time.Second

	// DefaultStaticDimensions is the width of StaticEmbedder vectors.
	DefaultStaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier recorded in the build manifest.
	ModelName() string

	// Available checks if the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
