// Package retrieve answers evidence queries against a built index.
//
// A query is embedded with the index's embedder, the nearest neighbors are
// over-fetched, metadata filters are applied, and when too few candidates
// pass the filters the unfiltered neighbors are returned instead.
package retrieve

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

const (
	// DefaultK is the number of evidence items returned when unspecified.
	DefaultK = 6

	// DefaultOverfetch multiplies k to size the candidate set.
	DefaultOverfetch = 4
)

// Evidence is one retrieved chunk.
type Evidence struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata,omitempty"`
	Score    float32        `json:"score,omitempty"`
}

// Recorder receives one event per Retrieve call.
type Recorder interface {
	RetrievalCompleted(ctx context.Context, ev telemetry.RetrievalEvent)
}

// Options configures a Retriever.
type Options struct {
	// Overfetch multiplies k (default 4).
	Overfetch int

	// Recorder is optional.
	Recorder Recorder
}

// Retriever runs queries against assets from a Loader.
type Retriever struct {
	loader    *Loader
	overfetch int
	recorder  Recorder
}

// New creates a Retriever.
func New(loader *Loader, opts Options) *Retriever {
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOverfetch
	}
	return &Retriever{
		loader:    loader,
		overfetch: opts.Overfetch,
		recorder:  opts.Recorder,
	}
}

// Loader returns the asset loader.
func (r *Retriever) Loader() *Loader {
	return r.loader
}

// Ready loads the assets if needed and reports whether they are usable.
func (r *Retriever) Ready(ctx context.Context) error {
	_, err := r.loader.Get(ctx)
	return err
}

// Retrieve returns up to k evidence items for query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters Filters, k int) ([]Evidence, error) {
	if k <= 0 {
		return nil, awerrors.ValidationError("k must be positive", nil).
			WithDetail("k", itoa(k))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, awerrors.ValidationError("query must not be empty", nil)
	}

	start := time.Now()
	assets, err := r.loader.Get(ctx)
	if err != nil {
		if _, ok := awerrors.As(err); ok {
			return nil, err
		}
		return nil, awerrors.IndexUnavailable("index could not be loaded", err)
	}

	vec, err := assets.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, awerrors.Wrap(awerrors.ErrCodeEmbeddingFailed, err).
			WithSuggestion("Check that the embedding backend is running")
	}
	vec = embed.Normalize(slices.Clone(vec))

	total := assets.Index.Count()
	n := total
	if k <= total/r.overfetch {
		n = k * r.overfetch
	}
	neighbors, err := assets.Index.Search(vec, n)
	if err != nil {
		return nil, awerrors.InternalError("vector search failed", err)
	}

	candidates := make([]Evidence, 0, len(neighbors))
	for _, nb := range neighbors {
		if nb.Offset < 0 || nb.Offset >= len(assets.Chunks) {
			return nil, awerrors.CorruptIndex("neighbor offset outside chunk store", nil).
				WithDetail("offset", itoa(nb.Offset))
		}
		c := assets.Chunks[nb.Offset]
		candidates = append(candidates, Evidence{
			ChunkID:  c.ID,
			Text:     c.Text,
			Metadata: c.Metadata,
			Score:    nb.Score,
		})
	}

	matched := candidates
	active := filters.Active()
	if active > 0 {
		matched = make([]Evidence, 0, len(candidates))
		for _, ev := range candidates {
			if filters.Matches(ev.Metadata) {
				matched = append(matched, ev)
			}
		}
	}

	results := matched
	fallback := false
	if len(matched) < k && active > 0 {
		fallback = true
		results = candidates
		slog.Debug("retrieval_fallback",
			slog.Int("k", k),
			slog.Int("matched", len(matched)),
			slog.Int("candidates", len(candidates)))
	}
	if len(results) > k {
		results = results[:k]
	}

	if r.recorder != nil {
		r.recorder.RetrievalCompleted(ctx, telemetry.RetrievalEvent{
			Query:      query,
			K:          k,
			Candidates: len(candidates),
			Matched:    len(matched),
			Returned:   len(results),
			Fallback:   fallback,
			Filters:    active,
			Duration:   time.Since(start),
			Timestamp:  start,
		})
	}
	return results, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
