package store

import (
	"bufio"
	"cmp"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

const flatFormatVersion = 1

// FlatIndex is an exact inner-product index. Vectors are stored
// contiguously in offset order.
type FlatIndex struct {
	mu   sync.RWMutex
	dims int
	data []float32
}

// flatFile is the on-disk form of a FlatIndex.
type flatFile struct {
	Version    int
	Dimensions int
	Count      int
	Data       []float32
}

// NewFlatIndex creates an empty flat index. dims may be 0.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{dims: dims}
}

// Add appends vectors in order.
func (x *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dims == 0 {
		x.dims = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != x.dims {
			return ErrDimensionMismatch{Expected: x.dims, Got: len(v)}
		}
	}
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Search scans every vector and returns the k best by inner product.
// Equal scores keep offset order.
func (x *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.count()
	if n == 0 || k <= 0 {
		return []Neighbor{}, nil
	}
	if len(query) != x.dims {
		return nil, ErrDimensionMismatch{Expected: x.dims, Got: len(query)}
	}

	all := make([]Neighbor, n)
	for i := range n {
		all[i] = Neighbor{Offset: i, Score: dot(query, x.vector(i))}
	}
	sortNeighbors(all)
	return all[:min(k, n)], nil
}

// Vector returns a copy of the vector at offset i.
func (x *FlatIndex) Vector(i int) []float32 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.vector(i))
}

// Count returns the number of vectors.
func (x *FlatIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count()
}

// Dimensions returns the vector width.
func (x *FlatIndex) Dimensions() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dims
}

// Backend returns BackendFlat.
func (x *FlatIndex) Backend() Backend { return BackendFlat }

// Save writes the index atomically as a gob stream.
func (x *FlatIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return writeAtomic(path, func(w io.Writer) error {
		f := flatFile{Version: flatFormatVersion, Dimensions: x.dims, Count: x.count(), Data: x.data}
		if err := gob.NewEncoder(w).Encode(f); err != nil {
			return fmt.Errorf("encode vectors: %w", err)
		}
		return nil
	})
}

// Load reads an index written by Save.
func (x *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var f flatFile
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&f); err != nil {
		return fmt.Errorf("decode vectors: %w", err)
	}
	if f.Version != flatFormatVersion {
		return fmt.Errorf("unsupported index format version %d", f.Version)
	}
	if f.Dimensions < 0 || len(f.Data) != f.Count*f.Dimensions {
		return fmt.Errorf("index holds %d floats, header says %d x %d", len(f.Data), f.Count, f.Dimensions)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.dims = f.Dimensions
	x.data = f.Data
	return nil
}

func (x *FlatIndex) count() int {
	if x.dims == 0 {
		return 0
	}
	return len(x.data) / x.dims
}

func (x *FlatIndex) vector(i int) []float32 {
	return x.data[i*x.dims : (i+1)*x.dims]
}

var _ VectorIndex = (*FlatIndex)(nil)

// sortNeighbors orders by descending score, then ascending offset.
func sortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, func(a, b Neighbor) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Offset, b.Offset)
	})
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
