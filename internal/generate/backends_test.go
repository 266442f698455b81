package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerator_Complete(t *testing.T) {
	// Given: a fake Ollama that checks the request
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: validOutputJSON, Done: true})
	}))
	defer srv.Close()
	g := NewOllamaGenerator(OllamaOptions{Host: srv.URL + "/"})

	// When
	out, err := g.Complete(context.Background(), "prompt text")

	// Then: non-streaming, JSON format, default model
	require.NoError(t, err)
	assert.JSONEq(t, validOutputJSON, out)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "prompt text", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
}

func TestOllamaGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"error field", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Error: "out of memory"})
		}},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOllamaGenerator(OllamaOptions{Host: srv.URL}).Complete(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}

func TestOllamaGenerator_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:7b-instruct"},{"name":"llama3:latest"}]}`))
	}))
	defer srv.Close()

	assert.True(t, NewOllamaGenerator(OllamaOptions{Host: srv.URL}).Available(context.Background()))
	assert.True(t, NewOllamaGenerator(OllamaOptions{Host: srv.URL, Model: "llama3"}).Available(context.Background()))
	assert.False(t, NewOllamaGenerator(OllamaOptions{Host: srv.URL, Model: "mistral"}).Available(context.Background()))
	assert.False(t, NewOllamaGenerator(OllamaOptions{Host: "http://127.0.0.1:1"}).Available(context.Background()))
}

func TestOpenAIGenerator_Complete(t *testing.T) {
	// Given
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()
	g, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	// When
	out, err := g.Complete(context.Background(), "prompt")

	// Then
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), "prompt")
	assert.ErrorContains(t, err, "invalid key")

	_, err = NewOpenAIGenerator(OpenAIOptions{})
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-ollama")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandGenerator_Complete(t *testing.T) {
	// Given: a stand-in binary that echoes stdin
	bin := writeScript(t, "cat\n")
	g := NewCommandGenerator(bin, "qwen2.5:7b-instruct")

	// When
	out, err := g.Complete(context.Background(), "  {\"echo\":1}\n")

	// Then
	require.NoError(t, err)
	assert.Equal(t, `{"echo":1}`, out)
	assert.True(t, g.Available(context.Background()))
}

func TestCommandGenerator_Failure(t *testing.T) {
	bin := writeScript(t, "echo 'model not found' >&2\nexit 1\n")
	g := NewCommandGenerator(bin, "missing")

	_, err := g.Complete(context.Background(), "prompt")

	assert.ErrorContains(t, err, "model not found")
	assert.False(t, NewCommandGenerator("definitely-not-a-binary-xyz", "").Available(context.Background()))
}

func TestNewTextGenerator(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	ctx := context.Background()

	g, err := NewTextGenerator(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, BackendOllama, g.Name())

	g, err = NewTextGenerator(ctx, Options{Backend: "OLLAMA-CLI"})
	require.NoError(t, err)
	assert.Equal(t, BackendOllamaCLI, g.Name())

	_, err = NewTextGenerator(ctx, Options{Backend: BackendOpenAI})
	assert.Error(t, err)

	_, err = NewTextGenerator(ctx, Options{Backend: BackendGemini})
	assert.Error(t, err)

	g, err = NewTextGenerator(ctx, Options{Backend: BackendOpenAI, APIKey: "sk", Model: DefaultModel})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, g.(*OpenAIGenerator).Model())

	_, err = NewTextGenerator(ctx, Options{Backend: "claude"})
	assert.ErrorContains(t, err, "unknown generation backend")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "unknown", Status(context.Background(), &fakeBackend{}))
	assert.Equal(t, "offline", Status(context.Background(), NewCommandGenerator("definitely-not-a-binary-xyz", "")))
}
