package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const brochurePage1 = `The Land Cruiser GXR pairs a twin-turbo V6 with a ten-speed automatic
transmission. Crawl Control and Multi-Terrain Select manage traction on sand
and rock, while the full-time four-wheel drive system keeps the cabin calm on
the highway. Towing capacity reaches 3,500 kg.`

const brochurePage2 = `Inside, leather seats with heating and ventilation, a 12.3 inch touchscreen
with Apple CarPlay and Android Auto, and a 14-speaker JBL audio system. Safety
Sense adds adaptive cruise control, lane tracing assist and pre-collision braking.`

const patrolPage = `The Patrol LE Platinum uses a 5.6 litre V8 with seven-speed automatic
transmission, hydraulic body motion control and a panoramic sunroof.`

const fakeListingJSON = `{
  "description_paragraph": "A capable Land Cruiser GXR with a twin-turbo V6. لاند كروزر قوية.",
  "bullet_highlights": ["Twin-turbo V6", "Ten-speed automatic", "Crawl Control", "Leather seats", "Adaptive cruise"],
  "keywords": ["suv", "4x4", "toyota", "land cruiser"],
  "warnings": [],
  "detected_entities": {
    "make": "Toyota",
    "model": "Land Cruiser",
    "year": 2024,
    "trim": "GXR",
    "mileage": null,
    "transmission": "automatic",
    "engine": "V6",
    "condition": null
  },
  "evidence": [{"chunk_id": "brochure-p1-c0", "note": "Engine and transmission."}]
}`

// testEnv isolates HOME, config lookup and the working directory, and
// selects offline embeddings. It returns the working directory.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("AUTOWRITER_EMBED_PROVIDER", "static")
	t.Setenv("AUTOWRITER_TELEMETRY", "true")
	t.Setenv("AUTOWRITER_DATA_DIR", "")
	t.Setenv("AUTOWRITER_GENERATOR", "ollama")
	t.Setenv("OLLAMA_HOST", "http://127.0.0.1:1")
	t.Setenv("NO_COLOR", "1")
	t.Chdir(dir)
	return dir
}

// writeBrochures lays out a small brochure tree under dir/brochures.
func writeBrochures(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "brochures")
	files := map[string]string{
		"toyota/land-cruiser/2024/brochure.txt": brochurePage1 + "\f" + brochurePage2,
		"nissan/patrol/2023/patrol.txt":         patrolPage,
	}
	for rel, content := range files {
		path := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return src
}

// fakeOllama answers /api/generate with response and /api/tags with an
// empty model list.
func fakeOllama(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"response": response, "done": true})
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, opts := newRootCmd()
	defer opts.teardown()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustRun executes args and fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "autowriter %s", strings.Join(args, " "))
	return out
}

// ingestFixture builds an index from the brochure fixture.
func ingestFixture(t *testing.T, dir string) {
	t.Helper()
	src := writeBrochures(t, dir)
	mustRun(t, "ingest", "--source", src, "--no-tui", "--max-words", "40", "--overlap", "10")
}

// writeFile writes content to a path relative to the working directory.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
