package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_HitsSkipInnerCall(t *testing.T) {
	// Given: a cached mock embedder
	ctx := context.Background()
	inner := newMockEmbedder(8)
	c := NewCachedEmbedder(inner, 10, nil)

	// When: embedding the same text twice
	first, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	// Then: the inner embedder ran once
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	// Given: one text already cached
	ctx := context.Background()
	inner := newMockEmbedder(8)
	c := NewCachedEmbedder(inner, 10, nil)
	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	// When: embedding a batch containing it
	out, err := c.EmbedBatch(ctx, []string{"a", "bb", "ccc"})

	// Then: only the two misses reach the inner embedder, in order
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(3), inner.texts.Load())
	assert.Equal(t, inner.vector("bb"), out[1])
	assert.Equal(t, inner.vector("ccc"), out[2])
}

func TestCachedEmbedder_RemoteTier(t *testing.T) {
	// Given: two cached embedders sharing a remote tier
	ctx := context.Background()
	remote := newFakeRemote()
	innerA := newMockEmbedder(8)
	innerB := newMockEmbedder(8)
	a := NewCachedEmbedder(innerA, 10, remote)
	b := NewCachedEmbedder(innerB, 10, remote)

	// When: A embeds, then B asks for the same text
	_, err := a.Embed(ctx, "shared")
	require.NoError(t, err)
	v, err := b.Embed(ctx, "shared")
	require.NoError(t, err)

	// Then: B is served from the remote tier
	assert.Equal(t, innerA.vector("shared"), v)
	assert.Zero(t, innerB.batchCalls.Load())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	// Given: two models
	a := NewCachedEmbedder(newMockEmbedder(4), 10, nil)
	innerB := newMockEmbedder(4)
	innerB.modelName = "other"
	b := NewCachedEmbedder(innerB, 10, nil)

	// Then: cache keys differ for the same text
	assert.NotEqual(t, a.cacheKey("x"), b.cacheKey("x"))
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
