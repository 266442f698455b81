// Package store persists the two artifacts a build produces: the vector
// index and the line-delimited chunk store. Offset i in the index is the
// i-th record of the chunk store.
package store

import (
	"fmt"
)

// Backend selects the nearest-neighbor implementation.
type Backend string

const (
	// BackendFlat scans every vector; results are exact.
	BackendFlat Backend = "flat"
	// BackendHNSW searches an HNSW graph and rescores candidates exactly.
	BackendHNSW Backend = "hnsw"
)

// ParseBackend validates a backend name. Empty means flat.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendFlat:
		return BackendFlat, nil
	case BackendHNSW:
		return BackendHNSW, nil
	default:
		return "", fmt.Errorf("unknown index backend %q (want flat or hnsw)", s)
	}
}

// Neighbor is one search hit. Score is the inner product with the query,
// which equals cosine similarity for unit vectors.
type Neighbor struct {
	Offset int
	Score  float32
}

// VectorIndex is an append-only mapping from offsets 0..N-1 to vectors.
type VectorIndex interface {
	// Add appends vectors; the first gets offset Count().
	Add(vectors [][]float32) error

	// Search returns up to k neighbors ordered by descending score.
	Search(query []float32, k int) ([]Neighbor, error)

	// Count returns the number of stored vectors.
	Count() int

	// Dimensions returns the vector width, 0 before the first Add.
	Dimensions() int

	// Backend identifies the implementation.
	Backend() Backend

	// Save writes the index atomically.
	Save(path string) error

	// Load replaces the in-memory index with the one at path.
	Load(path string) error
}

// IndexConfig configures a vector index.
type IndexConfig struct {
	Backend    Backend
	Dimensions int // 0 means taken from the first Add

	// HNSW parameters
	M        int
	EfSearch int
}

// NewIndex creates an empty index for cfg.
func NewIndex(cfg IndexConfig) (VectorIndex, error) {
	switch cfg.Backend {
	case "", BackendFlat:
		return NewFlatIndex(cfg.Dimensions), nil
	case BackendHNSW:
		return NewHNSWIndex(cfg), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// ErrDimensionMismatch indicates vector dimensions don't match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
