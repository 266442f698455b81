package generate

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Backend names accepted by NewTextGenerator.
const (
	BackendOllama    = "ollama"
	BackendOllamaCLI = "ollama-cli"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Model   string

	// Host is the Ollama endpoint.
	Host string

	// APIKey and BaseURL configure hosted backends. When APIKey is empty
	// OPENAI_API_KEY or GEMINI_API_KEY is read.
	APIKey  string
	BaseURL string

	// Command overrides the ollama binary for the CLI backend.
	Command string
}

// NewTextGenerator creates the backend named by opts.Backend (default
// ollama).
func NewTextGenerator(ctx context.Context, opts Options) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendOllama:
		return NewOllamaGenerator(OllamaOptions{Host: opts.Host, Model: opts.Model}), nil
	case BackendOllamaCLI:
		return NewCommandGenerator(opts.Command, opts.Model), nil
	case BackendOpenAI:
		model := hostedModel(opts.Model)
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAIGenerator(OpenAIOptions{APIKey: key, BaseURL: opts.BaseURL, Model: model})
	case BackendGemini:
		model := hostedModel(opts.Model)
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		return NewGeminiGenerator(ctx, GeminiOptions{APIKey: key, BaseURL: opts.BaseURL, Model: model})
	default:
		return nil, fmt.Errorf("unknown generation backend %q (want ollama, ollama-cli, openai or gemini)", opts.Backend)
	}
}

// hostedModel drops the local default model name so hosted backends fall
// back to their own default.
func hostedModel(model string) string {
	if model == DefaultModel {
		return ""
	}
	return model
}

// Availability is implemented by backends that can probe themselves.
type Availability interface {
	Available(ctx context.Context) bool
}

// Status returns "ready", "offline" or "unknown" for backend.
func Status(ctx context.Context, backend TextGenerator) string {
	a, ok := backend.(Availability)
	if !ok {
		return "unknown"
	}
	if a.Available(ctx) {
		return "ready"
	}
	return "offline"
}
