package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
)

func TestIngest_BuildsIndex(t *testing.T) {
	// Given: a brochure tree
	dir := testEnv(t)
	src := writeBrochures(t, dir)

	// When: ingesting with defaults for the output
	out := mustRun(t, "ingest", "--source", src, "--no-tui", "--max-words", "40", "--overlap", "10")

	// Then: chunk records and a complete index are written to the data dir
	assert.Contains(t, out, "Ingested 2 documents")
	paths := store.Paths{Dir: filepath.Join(dir, "data")}
	assert.FileExists(t, filepath.Join(dir, "data", "corpus.jsonl"))
	assert.True(t, paths.Exists())

	m, err := store.ReadManifest(paths.Manifest())
	require.NoError(t, err)
	assert.True(t, m.Complete)
	assert.Equal(t, "static-hash-256", m.EmbedModel)
	assert.Equal(t, m.Chunks, m.Vectors)
	assert.Greater(t, m.Chunks, 2)
}

func TestIngest_NoIndex(t *testing.T) {
	// Given: a brochure tree
	dir := testEnv(t)
	src := writeBrochures(t, dir)

	// When: ingesting with --no-index into a custom directory
	mustRun(t, "ingest", "--source", src, "--out", "out", "--no-index")

	// Then: only the chunk records exist
	assert.FileExists(t, filepath.Join(dir, "out", "corpus.jsonl"))
	assert.False(t, store.Paths{Dir: filepath.Join(dir, "out")}.Exists())
}

func TestIngest_RequiresSource(t *testing.T) {
	testEnv(t)

	_, err := run(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}

func TestIndex_RefusesToReplaceWithoutForce(t *testing.T) {
	// Given: a complete index
	dir := testEnv(t)
	ingestFixture(t, dir)

	// When: indexing again without --force
	_, err := run(t, "index", "--no-tui")

	// Then: it refuses with a validation error
	require.Error(t, err)
	assert.Equal(t, awerrors.ErrCodeInvalidInput, awerrors.GetCode(err))

	// And --force rebuilds
	mustRun(t, "index", "--no-tui", "--force")
	assert.True(t, store.Paths{Dir: filepath.Join(dir, "data")}.Exists())
}

func TestIndex_ResumeAndForceAreExclusive(t *testing.T) {
	testEnv(t)

	_, err := run(t, "index", "--resume", "--force")

	require.Error(t, err)
}

func TestIndex_MissingChunkFile(t *testing.T) {
	testEnv(t)

	_, err := run(t, "index", "--chunks", "nope.jsonl")

	require.Error(t, err)
	assert.Equal(t, awerrors.ErrCodeFileNotFound, awerrors.GetCode(err))
}

func TestRetrieve_JSON(t *testing.T) {
	// Given: an index over two vehicles
	dir := testEnv(t)
	ingestFixture(t, dir)

	// When: retrieving with a make filter
	out := mustRun(t, "retrieve", "V8", "engine", "--filter", "make=Nissan", "--k", "1", "--json")

	// Then: the single result carries Nissan metadata
	var got []struct {
		ChunkID  string         `json:"chunk_id"`
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Nissan", got[0].Metadata["make"])
	assert.Equal(t, "Patrol", got[0].Metadata["model"])
	assert.Equal(t, float64(2023), got[0].Metadata["year"])
	assert.Contains(t, got[0].Text, "Patrol")
}

func TestRetrieve_Markdown(t *testing.T) {
	dir := testEnv(t)
	ingestFixture(t, dir)

	out := mustRun(t, "retrieve", "towing capacity", "--k", "2")

	assert.Contains(t, out, "Evidence")
	assert.Contains(t, out, "towing capacity")
}

func TestRetrieve_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no index", []string{"retrieve", "towing"}, awerrors.ErrCodeIndexUnavailable},
		{"bad filter", []string{"retrieve", "towing", "--filter", "make"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)

			_, err := run(t, tt.args...)

			require.Error(t, err)
			if tt.code != "" {
				assert.Equal(t, tt.code, awerrors.GetCode(err))
			}
		})
	}
}

func TestGenerate_JSONFromBackend(t *testing.T) {
	// Given: an index and a generation backend returning a listing
	dir := testEnv(t)
	ingestFixture(t, dir)
	srv := fakeOllama(t, fakeListingJSON)
	t.Setenv("OLLAMA_HOST", srv.URL)

	// When: generating
	out := mustRun(t, "generate", "--highlights", "2024 Toyota Land Cruiser GXR, twin-turbo V6", "--json")

	// Then: the raw backend output is printed
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got["description_paragraph"], "Land Cruiser GXR")
	assert.Len(t, got["bullet_highlights"], 5)

	// And the direct call is counted in telemetry
	stats := mustRun(t, "stats", "--json")
	var sum map[string]any
	require.NoError(t, json.Unmarshal([]byte(stats), &sum))
	assert.Equal(t, float64(1), sum["listings"].(map[string]any)["direct"])
	assert.GreaterOrEqual(t, sum["retrievals"], float64(1))
}

func TestGenerate_BackendDown(t *testing.T) {
	// Given: an index and an unreachable backend
	dir := testEnv(t)
	ingestFixture(t, dir)

	// When: generating
	_, err := run(t, "generate", "--highlights", "Land Cruiser with leather seats")

	// Then: the backend failure is reported rather than replaced
	require.Error(t, err)
}

func TestGenerate_BlankHighlights(t *testing.T) {
	testEnv(t)

	_, err := run(t, "generate", "--highlights", "   ")

	require.Error(t, err)
	assert.Equal(t, awerrors.ErrCodeInvalidInput, awerrors.GetCode(err))
}

func TestWrite_FallsBackWithoutIndex(t *testing.T) {
	// Given: no index at all
	testEnv(t)

	// When: writing a listing
	out := mustRun(t, "write", "--highlights", "2021 Toyota Camry, 30,000 km, sunroof, one owner",
		"--field", "trim=SE", "--json")

	// Then: a rule-based listing is returned with the reason
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "fallback", got["source"])
	assert.Equal(t, "retrieval_failed", got["reason"])
	assert.NotEmpty(t, got["description_paragraph"])

	entities := got["detected_entities"].(map[string]any)
	assert.Equal(t, "Toyota", entities["make"])
	assert.Equal(t, "SE", entities["trim"])
}

func TestWrite_RejectedGenerationFallsBack(t *testing.T) {
	// Given: an index and a backend whose copy is far too short
	dir := testEnv(t)
	ingestFixture(t, dir)
	srv := fakeOllama(t, fakeListingJSON)
	t.Setenv("OLLAMA_HOST", srv.URL)

	// When: writing
	out := mustRun(t, "write", "--highlights", "2024 Toyota Land Cruiser GXR, 12,000 km", "--json")

	// Then: the validator rejects it and the fallback is used
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "fallback", got["source"])
	assert.NotEmpty(t, got["reason"])
	assert.NotEqual(t, "retrieval_failed", got["reason"])
}

func TestWrite_Markdown(t *testing.T) {
	testEnv(t)

	out := mustRun(t, "write", "--highlights", "Nissan Patrol with panoramic sunroof")

	assert.Contains(t, out, "Listing")
	assert.Contains(t, out, "fallback")
}

func TestStatus_ReportsIndex(t *testing.T) {
	// Given: an index
	dir := testEnv(t)
	ingestFixture(t, dir)

	// When: showing status as JSON
	out := mustRun(t, "status", "--json")

	// Then: the manifest and backend availability are reported
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["complete"])
	assert.Equal(t, "static-hash-256", got["embed_model"])
	assert.Equal(t, "offline", got["generator_status"])
	assert.Greater(t, got["total_size"], float64(0))
}

func TestStatus_NoIndex(t *testing.T) {
	testEnv(t)

	_, err := run(t, "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestStats_Text(t *testing.T) {
	// Given: one recorded fallback listing
	testEnv(t)
	mustRun(t, "write", "--highlights", "Toyota Prado, diesel")

	// When: printing stats
	out := mustRun(t, "stats", "--days", "0")

	// Then: the listing sources are shown
	assert.Contains(t, out, "Telemetry (all time)")
	assert.Contains(t, out, "fallback")
}

func TestStats_Disabled(t *testing.T) {
	testEnv(t)
	t.Setenv("AUTOWRITER_TELEMETRY", "false")

	out := mustRun(t, "stats")

	assert.Contains(t, out, "disabled")
}

func TestServe_StopsOnCancel(t *testing.T) {
	// Given: serve on an ephemeral port
	testEnv(t)
	cmd, opts := newRootCmd()
	defer opts.teardown()
	cmd.SetOut(os.Stderr)
	cmd.SetArgs([]string{"serve", "--listen", "127.0.0.1:0", "--watch"})

	// When: the context is cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := cmd.ExecuteContext(ctx)

	// Then: the server shuts down cleanly
	assert.NoError(t, err)
}

func TestDoctor(t *testing.T) {
	// Given: an index and an offline generation backend
	dir := testEnv(t)
	ingestFixture(t, dir)

	// When: running the checks
	out := mustRun(t, "doctor", "--json")

	// Then: only the generator warns
	var got struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ready_with_warnings", got.Status)
	for _, c := range got.Checks {
		if c.Name == "generator" {
			assert.Equal(t, "WARN", c.Status)
			continue
		}
		assert.Equal(t, "PASS", c.Status, c.Name)
	}
}

func TestPull_Check(t *testing.T) {
	// Given: an Ollama server without the generation model
	testEnv(t)
	srv := fakeOllama(t, fakeListingJSON)
	t.Setenv("OLLAMA_HOST", srv.URL)

	// When: checking models
	out, err := run(t, "pull", "--check", "--json")

	// Then: the generation model is reported missing
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 model(s) missing")
	var states []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &states))
	require.Len(t, states, 1)
	assert.Equal(t, "generation", states[0]["role"])
	assert.Equal(t, false, states[0]["present"])
}

func TestPull_NothingConfigured(t *testing.T) {
	testEnv(t)
	t.Setenv("AUTOWRITER_GENERATOR", "ollama-cli")

	out := mustRun(t, "pull")

	assert.Contains(t, out, "No Ollama models configured")
}
