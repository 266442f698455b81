package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

type mockRetriever struct {
	results    []retrieve.Evidence
	err        error
	gotFilters retrieve.Filters
	gotK       int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, filters retrieve.Filters, k int) ([]retrieve.Evidence, error) {
	m.gotFilters, m.gotK = filters, k
	return m.results, m.err
}

type mockAssets struct {
	assets *retrieve.Assets
	err    error
}

func (m *mockAssets) Get(context.Context) (*retrieve.Assets, error) { return m.assets, m.err }
func (m *mockAssets) Paths() store.Paths                            { return store.Paths{Dir: "/data"} }

type mockGenerator struct {
	out    *generate.Output
	err    error
	gotReq generate.Request
}

func (m *mockGenerator) Generate(_ context.Context, req generate.Request) (*generate.Output, error) {
	m.gotReq = req
	return m.out, m.err
}
func (m *mockGenerator) Name() string                 { return "ollama" }
func (m *mockGenerator) Model() string                { return "qwen2.5:7b-instruct" }
func (m *mockGenerator) BreakerState() awerrors.State { return awerrors.StateClosed }

type mockWriter struct {
	res *autowriter.Result
	err error
}

func (m *mockWriter) Write(context.Context, string, map[string]any) (*autowriter.Result, error) {
	return m.res, m.err
}

type captureRecorder struct {
	events []telemetry.GenerationEvent
}

func (c *captureRecorder) GenerationCompleted(_ context.Context, ev telemetry.GenerationEvent) {
	c.events = append(c.events, ev)
}

func sampleOutput() *generate.Output {
	return &generate.Output{
		DescriptionParagraph: "A well kept 2018 Toyota Camry.",
		BulletHighlights:     []string{"Single owner", "Full service history"},
		Keywords:             []string{"Sunroof", "GCC"},
		Warnings:             nil,
		DetectedEntities: generate.Entities{
			Make:  chunk.StringValue("Toyota"),
			Model: chunk.StringValue("Camry"),
			Year:  chunk.IntValue(2018),
		},
		Evidence: []generate.EvidenceNote{{ChunkID: "camry-p1-c1", Note: "SE trim equipment"}},
	}
}

func sampleAssets(t *testing.T) *retrieve.Assets {
	t.Helper()
	idx := store.NewFlatIndex(4)
	require.NoError(t, idx.Add([][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	return &retrieve.Assets{
		Index: idx,
		Chunks: []chunk.Chunk{
			{ID: "camry-p1-c1", Text: "The Camry SE adds a sunroof.", Metadata: chunk.Metadata{chunk.KeyMake: chunk.StringValue("Toyota"), chunk.KeyYear: chunk.IntValue(2018)}},
			{ID: "accord-p1-c1", Text: "The Accord Sport.", Metadata: chunk.Metadata{chunk.KeyMake: chunk.StringValue("Honda")}},
		},
		Manifest: &store.Manifest{EmbedModel: "bge-m3", Backend: store.BackendFlat, Complete: true, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		Embedder: embed.NewStaticEmbedder(4),
		LoadedAt: time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC),
	}
}

type serverDeps struct {
	retriever *mockRetriever
	assets    *mockAssets
	generator Generator
	writer    *mockWriter
	recorder  *captureRecorder
}

func newTestServer(t *testing.T, deps serverDeps) *Server {
	t.Helper()
	if deps.retriever == nil {
		deps.retriever = &mockRetriever{}
	}
	if deps.assets == nil {
		deps.assets = &mockAssets{assets: sampleAssets(t)}
	}
	if deps.writer == nil {
		deps.writer = &mockWriter{}
	}
	cfg := Config{
		Retriever: deps.retriever,
		Assets:    deps.assets,
		Generator: deps.generator,
		Writer:    deps.writer,
	}
	if deps.recorder != nil {
		cfg.Recorder = deps.recorder
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}
