package store

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v ...float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f * f)
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f * inv
	}
	return out
}

func randomUnitVectors(rng *rand.Rand, n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = unit(v...)
	}
	return out
}

func TestFlatIndex_SearchRanksByInnerProduct(t *testing.T) {
	// Given: three unit vectors at different angles to the query
	x := NewFlatIndex(0)
	require.NoError(t, x.Add([][]float32{
		unit(0, 1),
		unit(1, 0),
		unit(1, 1),
	}))

	// When: searching near the x axis
	got, err := x.Search(unit(1, 0.1), 3)
	require.NoError(t, err)

	// Then: offsets come back by descending similarity
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{got[0].Offset, got[1].Offset, got[2].Offset})
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.GreaterOrEqual(t, got[1].Score, got[2].Score)
}

func TestFlatIndex_SearchCapsAtCount(t *testing.T) {
	x := NewFlatIndex(2)
	require.NoError(t, x.Add([][]float32{unit(1, 0), unit(0, 1)}))

	got, err := x.Search(unit(1, 0), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	empty, err := NewFlatIndex(2).Search(unit(1, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFlatIndex_TiesKeepOffsetOrder(t *testing.T) {
	x := NewFlatIndex(0)
	require.NoError(t, x.Add([][]float32{unit(1, 0), unit(1, 0), unit(1, 0)}))

	got, err := x.Search(unit(1, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].Offset)
	assert.Equal(t, 1, got[1].Offset)
	assert.Equal(t, 2, got[2].Offset)
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	x := NewFlatIndex(3)

	err := x.Add([][]float32{{1, 0}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)

	require.NoError(t, x.Add([][]float32{unit(1, 0, 0)}))
	_, err = x.Search([]float32{1}, 1)
	assert.ErrorAs(t, err, &dm)
}

func TestFlatIndex_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFile)
	rng := rand.New(rand.NewPCG(1, 2))
	vectors := randomUnitVectors(rng, 25, 8)

	x := NewFlatIndex(0)
	require.NoError(t, x.Add(vectors))
	require.NoError(t, x.Save(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded := NewFlatIndex(0)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 25, loaded.Count())
	assert.Equal(t, 8, loaded.Dimensions())

	want, err := x.Search(vectors[3], 5)
	require.NoError(t, err)
	got, err := loaded.Search(vectors[3], 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHNSWIndex_AgreesWithFlatOnSmallCorpus(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	vectors := randomUnitVectors(rng, 60, 16)

	flat := NewFlatIndex(0)
	require.NoError(t, flat.Add(vectors))
	graph := NewHNSWIndex(IndexConfig{EfSearch: 128})
	require.NoError(t, graph.Add(vectors))
	assert.Equal(t, 60, graph.Count())

	for _, q := range randomUnitVectors(rng, 5, 16) {
		want, err := flat.Search(q, 1)
		require.NoError(t, err)
		got, err := graph.Search(q, 8)
		require.NoError(t, err)

		require.NotEmpty(t, got)
		assert.Equal(t, want[0].Offset, got[0].Offset)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	}
}

func TestHNSWIndex_SaveLoadAndRebuildMissingGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFile)
	rng := rand.New(rand.NewPCG(5, 6))
	vectors := randomUnitVectors(rng, 30, 8)

	x := NewHNSWIndex(IndexConfig{})
	require.NoError(t, x.Add(vectors))
	require.NoError(t, x.Save(path))
	assert.FileExists(t, filepath.Join(dir, "index.hnsw"))

	loaded := NewHNSWIndex(IndexConfig{})
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 30, loaded.Count())

	// When: the graph file disappears, Load rebuilds it from the vectors
	require.NoError(t, os.Remove(GraphPath(path)))
	rebuilt := NewHNSWIndex(IndexConfig{})
	require.NoError(t, rebuilt.Load(path))

	got, err := rebuilt.Search(vectors[7], 1)
	require.NoError(t, err)
	assert.Equal(t, 7, got[0].Offset)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, b)

	b, err = ParseBackend("hnsw")
	require.NoError(t, err)
	assert.Equal(t, BackendHNSW, b)

	_, err = ParseBackend("faiss")
	assert.Error(t, err)
}
