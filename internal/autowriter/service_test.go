package autowriter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

type fakeRetriever struct {
	evidence []retrieve.Evidence
	err      error

	mu      sync.Mutex
	query   string
	filters retrieve.Filters
	k       int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, filters retrieve.Filters, k int) ([]retrieve.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query, f.filters, f.k = query, filters, k
	return f.evidence, f.err
}

type fakeGenerator struct {
	out   *generate.Output
	err   error
	calls int
	req   generate.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req generate.Request) (*generate.Output, error) {
	f.calls++
	f.req = req
	return f.out, f.err
}

func (f *fakeGenerator) Name() string  { return "fake" }
func (f *fakeGenerator) Model() string { return "fake-model" }

type captureGenerations struct {
	events []telemetry.GenerationEvent
}

func (c *captureGenerations) GenerationCompleted(_ context.Context, ev telemetry.GenerationEvent) {
	c.events = append(c.events, ev)
}

func someEvidence() []retrieve.Evidence {
	return []retrieve.Evidence{{
		ChunkID:  "camry-p1-c0",
		Text:     "The Camry pairs a 2.5L engine with an 8-speed automatic.",
		Metadata: chunk.Metadata{chunk.KeyMake: chunk.StringValue("Toyota")},
	}}
}

func newTestService(t *testing.T, r Retriever, g Generator) (*Service, *captureGenerations) {
	t.Helper()
	rec := &captureGenerations{}
	cfg := Config{Retriever: r, Recorder: rec}
	if g != nil {
		cfg.Generator = g
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc, rec
}

func TestNewService_RequiresRetriever(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)
}

func TestWrite_Generated(t *testing.T) {
	// Given evidence and a generator returning a valid listing
	r := &fakeRetriever{evidence: someEvidence()}
	g := &fakeGenerator{out: goodOutput()}
	svc, rec := newTestService(t, r, g)

	// When writing
	res, err := svc.Write(context.Background(), "2019 Toyota Camry, 45,000 km, sunroof", map[string]any{"trim": "SE", "color": "white"})

	// Then the generated listing is returned
	require.NoError(t, err)
	assert.Equal(t, telemetry.SourceGenerated, res.Source)
	assert.Empty(t, res.Reason)
	assert.Equal(t, chunk.IntValue(2019), res.DetectedEntities.Year)
	assert.Equal(t, chunk.StringValue("SE"), res.DetectedEntities.Trim)

	// And retrieval was filtered on the detected vehicle
	assert.Equal(t, retrieve.DefaultK, r.k)
	assert.Equal(t, chunk.StringValue("Toyota"), r.filters[chunk.KeyMake])
	assert.Equal(t, chunk.StringValue("Camry"), r.filters[chunk.KeyModel])
	assert.Equal(t, chunk.IntValue(2019), r.filters[chunk.KeyYear])
	assert.Equal(t, chunk.StringValue("SE"), r.filters[chunk.KeyTrim])

	// And the generator saw entities plus extra fields
	assert.Equal(t, generate.DefaultTone, g.req.Tone)
	assert.Equal(t, []string{"en", "ar"}, g.req.Languages)
	assert.Equal(t, "white", g.req.Fields["color"])
	assert.Equal(t, "45,000 km", g.req.Fields["mileage"])

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Success)
	assert.Equal(t, "fake", rec.events[0].Backend)
}

func TestWrite_FallbackPaths(t *testing.T) {
	tests := []struct {
		name       string
		retriever  *fakeRetriever
		generator  *fakeGenerator
		wantReason string
		wantCode   string
		wantCalls  int
	}{
		{
			name:       "retrieval failed",
			retriever:  &fakeRetriever{err: awerrors.IndexUnavailable("no index", nil)},
			generator:  &fakeGenerator{out: goodOutput()},
			wantReason: ReasonRetrievalFailed,
			wantCode:   awerrors.ErrCodeIndexUnavailable,
		},
		{
			name:       "no evidence",
			retriever:  &fakeRetriever{},
			generator:  &fakeGenerator{out: goodOutput()},
			wantReason: ReasonNoEvidence,
		},
		{
			name:       "generation unavailable",
			retriever:  &fakeRetriever{evidence: someEvidence()},
			generator:  &fakeGenerator{err: awerrors.GenerationUnavailable("down", nil)},
			wantReason: ReasonGenerationFailed,
			wantCode:   awerrors.ErrCodeGenerationUnavailable,
			wantCalls:  1,
		},
		{
			name:       "schema violation",
			retriever:  &fakeRetriever{evidence: someEvidence()},
			generator:  &fakeGenerator{err: awerrors.SchemaViolation("bad year")},
			wantReason: ReasonSchemaViolation,
			wantCode:   awerrors.ErrCodeSchemaViolation,
			wantCalls:  1,
		},
		{
			name:      "too short",
			retriever: &fakeRetriever{evidence: someEvidence()},
			generator: &fakeGenerator{out: func() *generate.Output {
				o := goodOutput()
				o.DescriptionParagraph = "Too short."
				return o
			}()},
			wantReason: "rejected_word_count",
			wantCode:   "rejected_word_count",
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec := newTestService(t, tt.retriever, tt.generator)

			res, err := svc.Write(context.Background(), "Low mileage, sunroof", nil)

			require.NoError(t, err)
			assert.Equal(t, telemetry.SourceFallback, res.Source)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, RuleEvidenceID, res.Evidence[0].ChunkID)
			assert.Equal(t, tt.wantCalls, tt.generator.calls)

			require.Len(t, rec.events, 1)
			assert.False(t, rec.events[0].Success)
			assert.Equal(t, tt.wantCode, rec.events[0].ErrorCode)
			assert.Equal(t, tt.wantReason, rec.events[0].Reason)
		})
	}
}

func TestWrite_WithoutGeneratorFallsBack(t *testing.T) {
	svc, rec := newTestService(t, &fakeRetriever{evidence: someEvidence()}, nil)

	res, err := svc.Write(context.Background(), "sunroof", nil)

	require.NoError(t, err)
	assert.Equal(t, telemetry.SourceFallback, res.Source)
	require.Len(t, rec.events, 1)
	assert.Empty(t, rec.events[0].Backend)
}

func TestWrite_RequiresHighlights(t *testing.T) {
	svc, rec := newTestService(t, &fakeRetriever{}, nil)

	_, err := svc.Write(context.Background(), "   ", nil)

	assert.ErrorIs(t, err, awerrors.ErrInvalidInput)
	assert.Empty(t, rec.events)
}

func TestWrite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc, rec := newTestService(t, &fakeRetriever{err: context.Canceled}, nil)

	_, err := svc.Write(ctx, "sunroof", nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rec.events)
}

func TestResult_JSONFlattensOutput(t *testing.T) {
	svc, _ := newTestService(t, &fakeRetriever{}, nil)
	res, err := svc.Write(context.Background(), "sunroof", nil)
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "fallback", m["source"])
	assert.Equal(t, ReasonNoEvidence, m["reason"])
	assert.Contains(t, m, "description_paragraph")
	assert.Contains(t, m, "detected_entities")
}
