package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex answers searches from a coder/hnsw graph. The flat vectors stay
// the source of truth for offsets and counts; graph hits are rescored by
// exact inner product so both backends rank on the same scale.
type HNSWIndex struct {
	mu    sync.RWMutex
	flat  *FlatIndex
	graph *hnsw.Graph[uint64]
	cfg   IndexConfig
}

// NewHNSWIndex creates an empty HNSW-backed index.
func NewHNSWIndex(cfg IndexConfig) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	cfg.Backend = BackendHNSW
	return &HNSWIndex{
		flat:  NewFlatIndex(cfg.Dimensions),
		graph: newGraph(cfg),
		cfg:   cfg,
	}
}

func newGraph(cfg IndexConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// GraphPath returns where the graph for an index file is stored:
// index.vec -> index.hnsw.
func GraphPath(indexPath string) string {
	return strings.TrimSuffix(indexPath, filepath.Ext(indexPath)) + ".hnsw"
}

// Add appends vectors to the flat store and the graph.
func (x *HNSWIndex) Add(vectors [][]float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	start := x.flat.Count()
	if err := x.flat.Add(vectors); err != nil {
		return err
	}
	for i := range vectors {
		offset := start + i
		x.graph.Add(hnsw.MakeNode(uint64(offset), x.flat.Vector(offset)))
	}
	return nil
}

// Search asks the graph for k candidates. When the graph returns fewer than
// it should, the flat scan answers instead.
func (x *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.flat.Count()
	if n == 0 || k <= 0 {
		return []Neighbor{}, nil
	}
	if len(query) != x.flat.Dimensions() {
		return nil, ErrDimensionMismatch{Expected: x.flat.Dimensions(), Got: len(query)}
	}

	want := min(k, n)
	nodes := x.graph.Search(query, want)
	if len(nodes) < want {
		slog.Debug("hnsw_short_result",
			slog.Int("requested", want),
			slog.Int("returned", len(nodes)))
		return x.flat.Search(query, k)
	}

	out := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, Neighbor{Offset: int(node.Key), Score: dot(query, node.Value)})
	}
	sortNeighbors(out)
	return out, nil
}

// Count returns the number of vectors.
func (x *HNSWIndex) Count() int {
	return x.flat.Count()
}

// Dimensions returns the vector width.
func (x *HNSWIndex) Dimensions() int {
	return x.flat.Dimensions()
}

// Backend returns BackendHNSW.
func (x *HNSWIndex) Backend() Backend { return BackendHNSW }

// Save writes the flat vectors to path and the graph beside it.
func (x *HNSWIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := x.flat.Save(path); err != nil {
		return err
	}
	return writeAtomic(GraphPath(path), func(w io.Writer) error {
		if err := x.graph.Export(w); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
		return nil
	})
}

// Load reads the vectors and the graph. A missing or stale graph is rebuilt
// from the vectors.
func (x *HNSWIndex) Load(path string) error {
	flat := NewFlatIndex(0)
	if err := flat.Load(path); err != nil {
		return err
	}

	graph, err := importGraph(GraphPath(path), x.cfg)
	switch {
	case err != nil:
		slog.Warn("hnsw_graph_rebuild", slog.String("reason", err.Error()))
		graph = nil
	case graph.Len() != flat.Count():
		slog.Warn("hnsw_graph_rebuild",
			slog.String("reason", "graph size differs from vector count"),
			slog.Int("graph_nodes", graph.Len()),
			slog.Int("vectors", flat.Count()))
		graph = nil
	}

	if graph == nil {
		graph = newGraph(x.cfg)
		for i := range flat.Count() {
			graph.Add(hnsw.MakeNode(uint64(i), flat.Vector(i)))
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.flat = flat
	x.graph = graph
	return nil
}

func importGraph(path string, cfg IndexConfig) (*hnsw.Graph[uint64], error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("graph file %s not found", filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()

	g := newGraph(cfg)
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return g, nil
}

var _ VectorIndex = (*HNSWIndex)(nil)
