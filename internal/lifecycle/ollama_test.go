package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/tags from a mutable model list and streams a
// three-step pull that adds the model.
type fakeOllama struct {
	mu     sync.Mutex
	models []string
	pulled []string
	fail   string
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		type model struct {
			Name string `json:"name"`
		}
		out := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range f.models {
			out.Models = append(out.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if f.fail != "" {
			_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", f.fail)
			return
		}
		_, _ = fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		_, _ = fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:1","total":100,"completed":50}`)
		_, _ = fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:1","total":100,"completed":100}`)
		_, _ = fmt.Fprintln(w, `{"status":"success"}`)

		f.mu.Lock()
		f.models = append(f.models, req.Model)
		f.pulled = append(f.pulled, req.Model)
		f.mu.Unlock()
	})
	return mux
}

func newFake(t *testing.T, models ...string) (*fakeOllama, *Manager) {
	t.Helper()
	f := &fakeOllama{models: models}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewManager(srv.URL + "/")
}

func TestNewManager_DefaultHost(t *testing.T) {
	assert.Equal(t, DefaultHost, NewManager("").Host())
}

func TestManager_IsRunning(t *testing.T) {
	_, m := newFake(t)

	assert.True(t, m.IsRunning(context.Background()))
	assert.False(t, NewManager("http://127.0.0.1:1").IsRunning(context.Background()))
}

func TestManager_Check(t *testing.T) {
	// Given: a server with the embedding model under its latest tag
	_, m := newFake(t, "nomic-embed-text:latest")

	// When: checking the configured models
	states, err := m.Check(context.Background(), map[string]string{
		"embedding":  "nomic-embed-text",
		"generation": "llama3.1:8b",
	})

	// Then: roles come back in order with presence flags
	require.NoError(t, err)
	assert.Equal(t, []ModelState{
		{Name: "nomic-embed-text", Role: "embedding", Present: true},
		{Name: "llama3.1:8b", Role: "generation", Present: false},
	}, states)
}

func TestManager_PullModel(t *testing.T) {
	// Given: a server without the model
	f, m := newFake(t)
	var events []PullProgress

	// When: pulling it
	err := m.PullModel(context.Background(), "llama3.1:8b", func(p PullProgress) {
		events = append(events, p)
	})

	// Then: progress is reported and percentages are computed
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "pulling manifest", events[0].Status)
	assert.InDelta(t, 50.0, events[1].Percent, 0.001)
	assert.Equal(t, "llama3.1:8b", events[2].Model)
	assert.Equal(t, []string{"llama3.1:8b"}, f.pulled)

	// And a second pull is a no-op
	require.NoError(t, m.PullModel(context.Background(), "llama3.1:8b", nil))
	assert.Len(t, f.pulled, 1)
}

func TestManager_PullModel_StreamError(t *testing.T) {
	f, m := newFake(t)
	f.fail = "model not found"

	err := m.PullModel(context.Background(), "nope", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestManager_EnsureModels(t *testing.T) {
	// Given: only the embedding model present
	f, m := newFake(t, "nomic-embed-text:latest")

	// When: ensuring both models
	err := m.EnsureModels(context.Background(), map[string]string{
		"embedding":  "nomic-embed-text",
		"generation": "llama3.1:8b",
		"unused":     "",
	}, time.Second, nil)

	// Then: only the missing one is pulled
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b"}, f.pulled)
}

func TestManager_WaitForReady_Timeout(t *testing.T) {
	m := NewManager("http://127.0.0.1:1")

	err := m.WaitForReady(context.Background(), 200*time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestHasModel(t *testing.T) {
	available := []string{"nomic-embed-text:latest", "Llama3.1:8B"}

	tests := []struct {
		model string
		want  bool
	}{
		{"nomic-embed-text", true},
		{"nomic-embed-text:latest", true},
		{"llama3.1:8b", true},
		{"llama3.1:70b", false},
		{"llama3.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, hasModel(available, tt.model))
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	t.Run("bar", func(t *testing.T) {
		var buf bytes.Buffer
		p := ProgressPrinter(&buf, false)

		p(PullProgress{Model: "m", Status: "pulling manifest"})
		p(PullProgress{Model: "m", Status: "downloading", Total: 2048, Completed: 1024, Percent: 50})
		p(PullProgress{Model: "m", Status: "downloading", Total: 2048, Completed: 2048, Percent: 100})

		out := buf.String()
		assert.Contains(t, out, "m: pulling manifest")
		assert.Contains(t, out, " 50% 1.0 KB/2.0 KB")
		assert.Contains(t, out, "100%")
	})

	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		p := ProgressPrinter(&buf, true)

		p(PullProgress{Model: "m", Status: "downloading", Total: 10, Completed: 1, Percent: 10})
		p(PullProgress{Model: "m", Status: "downloading", Total: 10, Completed: 5, Percent: 50})
		p(PullProgress{Model: "m", Status: "success"})

		assert.Equal(t, "m: downloading\nm: success\n", buf.String())
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}
