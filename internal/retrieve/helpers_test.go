package retrieve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

const testDims = 4

// queryEmbedder maps every text to the first axis unless overridden.
type queryEmbedder struct {
	model string
	fail  error
	calls atomic.Int32
}

func (e *queryEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	return []float32{1, 0, 0, 0}, nil
}

func (e *queryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *queryEmbedder) Dimensions() int { return testDims }

func (e *queryEmbedder) ModelName() string {
	if e.model == "" {
		return "test-axis"
	}
	return e.model
}

func (e *queryEmbedder) Available(context.Context) bool { return true }
func (e *queryEmbedder) Close() error                   { return nil }

var errEmbedDown = errors.New("embedding backend down")

// fixtureChunk describes one indexed chunk; rank 0 is the closest to the
// query axis.
type fixtureChunk struct {
	make string
	year int
}

// writeFixture writes artifacts whose i-th chunk has similarity decreasing
// with i.
func writeFixture(t *testing.T, dir string, model string, rows []fixtureChunk) store.Paths {
	t.Helper()
	paths := store.Paths{Dir: dir}

	idx := store.NewFlatIndex(testDims)
	chunks := make([]chunk.Chunk, len(rows))
	vecs := make([][]float32, len(rows))
	for i, r := range rows {
		vecs[i] = embed.Normalize([]float32{1, 0.1 * float32(i+1), 0, 0})
		md := chunk.BaseMetadata()
		md[chunk.KeyMake] = chunk.StringValue(r.make)
		if r.year > 0 {
			md[chunk.KeyYear] = chunk.IntValue(r.year)
		}
		md[chunk.KeyBrochureID] = chunk.StringValue("fixture")
		md[chunk.KeyPage] = chunk.IntValue(1)
		chunks[i] = chunk.Chunk{
			ID:       chunk.ID("fixture", 1, i+1),
			Text:     fmt.Sprintf("%s brochure text %d", r.make, i+1),
			Metadata: md,
		}
	}
	require.NoError(t, idx.Add(vecs))
	require.NoError(t, idx.Save(paths.Index()))
	_, err := store.WriteChunks(paths.Chunks(), slices.Values(chunks))
	require.NoError(t, err)
	require.NoError(t, store.WriteManifest(paths.Manifest(), &store.Manifest{
		EmbedModel: model,
		Dimensions: testDims,
		Backend:    store.BackendFlat,
		Vectors:    len(rows),
		Chunks:     len(rows),
		Complete:   true,
	}))
	return paths
}

// toyotaHonda interleaves 6 Toyota and 4 Honda chunks.
func toyotaHonda() []fixtureChunk {
	return []fixtureChunk{
		{"Toyota", 2021}, {"Honda", 2020}, {"Toyota", 2021}, {"Honda", 2020}, {"Toyota", 2022},
		{"Honda", 2019}, {"Toyota", 2021}, {"Honda", 2020}, {"Toyota", 2020}, {"Toyota", 2021},
	}
}

func newTestRetriever(t *testing.T, rows []fixtureChunk) (*Retriever, *queryEmbedder, *captureRecorder) {
	t.Helper()
	emb := &queryEmbedder{}
	paths := writeFixture(t, t.TempDir(), emb.ModelName(), rows)
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)
	rec := &captureRecorder{}
	return New(loader, Options{Recorder: rec}), emb, rec
}

type captureRecorder struct {
	mu     sync.Mutex
	events []telemetry.RetrievalEvent
}

func (r *captureRecorder) RetrievalCompleted(_ context.Context, ev telemetry.RetrievalEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) last() telemetry.RetrievalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func makes(results []Evidence) []string {
	out := make([]string, len(results))
	for i, ev := range results {
		out[i] = ev.Metadata.Get(chunk.KeyMake).String()
	}
	return out
}
