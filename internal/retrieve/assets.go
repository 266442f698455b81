package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
)

// Assets is everything a query needs: the loaded index, the chunk records
// it points at, and the embedder that produced its vectors. An Assets value
// is read-only once built and is shared by concurrent requests.
type Assets struct {
	Index    store.VectorIndex
	Chunks   []chunk.Chunk
	Manifest *store.Manifest
	Embedder embed.Embedder
	LoadedAt time.Time
}

// Count returns the number of indexed chunks.
func (a *Assets) Count() int {
	return len(a.Chunks)
}

// LoaderConfig wires a Loader.
type LoaderConfig struct {
	Paths    store.Paths
	Index    store.IndexConfig
	Embedder embed.Embedder
}

// Loader builds Assets once. Concurrent first callers share a single load;
// a successful load is cached, a failed one is not.
type Loader struct {
	cfg LoaderConfig

	current atomic.Pointer[Assets]
	mu      sync.Mutex // serializes loads with Reload
	group   singleflight.Group
	loads   atomic.Int64
}

// NewLoader creates a Loader. Nothing is read until Get.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Embedder == nil {
		return nil, awerrors.ConfigError("asset loader requires an embedder", nil)
	}
	if cfg.Paths.Dir == "" {
		return nil, awerrors.ConfigError("asset loader requires a data directory", nil)
	}
	return &Loader{cfg: cfg}, nil
}

// Get returns the loaded assets, loading them on first use.
func (l *Loader) Get(ctx context.Context) (*Assets, error) {
	if a := l.current.Load(); a != nil {
		return a, nil
	}

	ch := l.group.DoChan("assets", func() (any, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if a := l.current.Load(); a != nil {
			return a, nil
		}
		a, err := l.load()
		if err != nil {
			return nil, err
		}
		l.current.Store(a)
		return a, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Assets), nil
	}
}

// Reload loads the artifacts again and swaps them in. On failure the
// previous assets stay in place.
func (l *Loader) Reload(ctx context.Context) (*Assets, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current.Store(a)
	return a, nil
}

// Loaded reports whether assets are cached.
func (l *Loader) Loaded() bool {
	return l.current.Load() != nil
}

// Loads returns how many loads were attempted.
func (l *Loader) Loads() int64 {
	return l.loads.Load()
}

// Paths returns the artifact locations.
func (l *Loader) Paths() store.Paths {
	return l.cfg.Paths
}

func (l *Loader) load() (*Assets, error) {
	l.loads.Add(1)
	start := time.Now()

	art, err := store.OpenArtifacts(l.cfg.Paths, l.cfg.Index)
	if err != nil {
		slog.Warn("assets_load_failed",
			slog.String("dir", l.cfg.Paths.Dir),
			slog.String("error", err.Error()))
		return nil, err
	}

	model := l.cfg.Embedder.ModelName()
	if art.Manifest != nil && art.Manifest.EmbedModel != "" && art.Manifest.EmbedModel != model {
		cause := fmt.Errorf("index was built with %q but the configured embedder is %q", art.Manifest.EmbedModel, model)
		return nil, awerrors.IndexUnavailable("index does not match the configured embedder", cause).
			WithSuggestion("Rebuild the index or set embeddings.model to the model in manifest.json")
	}
	if dims := l.cfg.Embedder.Dimensions(); dims > 0 && art.Index.Dimensions() > 0 && dims != art.Index.Dimensions() {
		cause := store.ErrDimensionMismatch{Expected: art.Index.Dimensions(), Got: dims}
		return nil, awerrors.IndexUnavailable("index does not match the configured embedder", cause).
			WithSuggestion("Rebuild the index with the configured embedder")
	}

	a := &Assets{
		Index:    art.Index,
		Chunks:   art.Chunks,
		Manifest: art.Manifest,
		Embedder: l.cfg.Embedder,
		LoadedAt: time.Now(),
	}
	slog.Info("assets_loaded",
		slog.String("dir", l.cfg.Paths.Dir),
		slog.Int("chunks", a.Count()),
		slog.String("backend", string(art.Index.Backend())),
		slog.Duration("duration", time.Since(start)))
	return a, nil
}
