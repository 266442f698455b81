package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the number of embeddings kept in memory.
const DefaultEmbeddingCacheSize = 1000

// RemoteCache is an optional second cache tier shared between processes.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

// CachedEmbedder wraps an Embedder with an LRU cache keyed by model and
// text, plus an optional RemoteCache consulted on LRU misses. Remote cache
// errors are logged and treated as misses.
type CachedEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	remote RemoteCache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder. remote may be nil.
func NewCachedEmbedder(inner Embedder, cacheSize int, remote RemoteCache) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache, remote: remote}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding if available.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch serves what it can from the caches and embeds the rest in one
// inner call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			results[i] = vec
			continue
		}
		if vec, ok := c.remoteGet(ctx, keys[i]); ok {
			c.cache.Add(keys[i], vec)
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		results[i] = fresh[j]
		c.cache.Add(keys[i], fresh[j])
		c.remoteSet(ctx, keys[i], fresh[j])
	}
	return results, nil
}

func (c *CachedEmbedder) remoteGet(ctx context.Context, key string) ([]float32, bool) {
	if c.remote == nil {
		return nil, false
	}
	vec, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.Debug("embedding_cache_get_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if ok && len(vec) != c.inner.Dimensions() && c.inner.Dimensions() != 0 {
		return nil, false
	}
	return vec, ok
}

func (c *CachedEmbedder) remoteSet(ctx context.Context, key string, vec []float32) {
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, vec); err != nil {
		slog.Debug("embedding_cache_set_failed", slog.String("error", err.Error()))
	}
}

// Len returns the number of in-memory entries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Dimensions passes through to the inner embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName passes through to the inner embedder.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available passes through to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close closes the remote cache and the inner embedder.
func (c *CachedEmbedder) Close() error {
	if c.remote != nil {
		_ = c.remote.Close()
	}
	return c.inner.Close()
}
