package retrieve

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
)

func storePaths(dir string) store.Paths {
	return store.Paths{Dir: dir}
}

func TestNewLoader_RequiresEmbedderAndDir(t *testing.T) {
	_, err := NewLoader(LoaderConfig{Paths: storePaths(t.TempDir())})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)

	_, err = NewLoader(LoaderConfig{Embedder: &queryEmbedder{}})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)
}

func TestLoader_ConcurrentCallersShareOneLoad(t *testing.T) {
	// Given
	emb := &queryEmbedder{}
	paths := writeFixture(t, t.TempDir(), emb.ModelName(), toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)

	// When: many goroutines ask at once
	const callers = 32
	var wg sync.WaitGroup
	got := make([]*Assets, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := loader.Get(context.Background())
			assert.NoError(t, err)
			got[i] = a
		}()
	}
	wg.Wait()

	// Then: one load, one shared object
	assert.Equal(t, int64(1), loader.Loads())
	for _, a := range got {
		assert.Same(t, got[0], a)
	}
	assert.Equal(t, 10, got[0].Count())
}

func TestLoader_ModelMismatch(t *testing.T) {
	// Given: an index built with another model
	paths := writeFixture(t, t.TempDir(), "nomic-embed-text", toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: &queryEmbedder{}})
	require.NoError(t, err)

	// When
	_, err = loader.Get(context.Background())

	// Then: the index is reported unavailable with the mismatch as the cause
	assert.ErrorIs(t, err, awerrors.ErrIndexUnavailable)
	assert.Equal(t, awerrors.ErrCodeIndexUnavailable, awerrors.GetCode(err))
	assert.Contains(t, errors.Unwrap(err).Error(), "nomic-embed-text")
	assert.False(t, loader.Loaded())
}

func TestLoader_CardinalityMismatchIsCorrupt(t *testing.T) {
	// Given: a chunk store missing its last record
	emb := &queryEmbedder{}
	paths := writeFixture(t, t.TempDir(), emb.ModelName(), toyotaHonda())
	chunks, err := store.LoadChunks(paths.Chunks())
	require.NoError(t, err)
	_, err = store.WriteChunks(paths.Chunks(), func(yield func(c chunk.Chunk) bool) {
		for _, c := range chunks[:len(chunks)-1] {
			if !yield(c) {
				return
			}
		}
	})
	require.NoError(t, err)
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)

	// When
	_, err = loader.Get(context.Background())

	// Then
	assert.ErrorIs(t, err, awerrors.ErrCorruptIndex)
}

func TestLoader_Reload(t *testing.T) {
	// Given: loaded assets
	emb := &queryEmbedder{}
	dir := t.TempDir()
	paths := writeFixture(t, dir, emb.ModelName(), toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)
	first, err := loader.Get(context.Background())
	require.NoError(t, err)

	// When: a smaller corpus is written and reloaded
	writeFixture(t, dir, emb.ModelName(), toyotaHonda()[:4])
	second, err := loader.Reload(context.Background())

	// Then
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 4, second.Count())

	// When: the artifacts disappear and a reload fails
	require.NoError(t, os.Remove(paths.Chunks()))
	_, err = loader.Reload(context.Background())

	// Then: the previous assets stay in place
	assert.ErrorIs(t, err, awerrors.ErrIndexUnavailable)
	current, err := loader.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, current)
}

func TestLoader_GetHonorsContext(t *testing.T) {
	emb := &queryEmbedder{}
	paths := writeFixture(t, t.TempDir(), emb.ModelName(), toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loader.Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
