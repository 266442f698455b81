// Package generate turns highlights, structured fields and retrieved
// evidence into a schema-bound listing record.
//
// The completion itself is delegated to a TextGenerator backend (Ollama
// HTTP, the ollama CLI, an OpenAI-compatible API, or Gemini). A Generator
// calls the backend exactly once per request through a circuit breaker and
// a concurrency limit, then validates the JSON it gets back.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

const (
	// DefaultTone is used when a request names none.
	DefaultTone = "premium_clean"

	// DefaultMaxConcurrent bounds in-flight completions (one local model).
	DefaultMaxConcurrent = 1

	DefaultTimeout = 120 * time.Second
)

// DefaultLanguages are English first, Arabic second.
var DefaultLanguages = []string{"en", "ar"}

// TextGenerator is a text-completion backend.
type TextGenerator interface {
	// Complete returns the raw completion for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend ("ollama", "openai", ...).
	Name() string
}

// modelNamer is implemented by backends that know their model.
type modelNamer interface {
	Model() string
}

// Request is one generation request.
type Request struct {
	Highlights string              `json:"highlights"`
	Fields     map[string]any      `json:"fields"`
	Evidence   []retrieve.Evidence `json:"evidence"`
	Tone       string              `json:"tone"`
	Languages  []string            `json:"languages"`
}

// Config wires a Generator.
type Config struct {
	Backend TextGenerator

	// MaxConcurrent bounds in-flight backend calls (default 1).
	MaxConcurrent int

	// Timeout applies to each backend call (default 120s).
	Timeout time.Duration

	// BreakerFailures opens the circuit after this many consecutive
	// failures (default 5).
	BreakerFailures int

	// BreakerReset is how long the circuit stays open (default 30s).
	BreakerReset time.Duration
}

// Generator produces Outputs.
type Generator struct {
	backend TextGenerator
	sem     *semaphore.Weighted
	breaker *awerrors.CircuitBreaker
	timeout time.Duration
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Backend == nil {
		return nil, awerrors.ConfigError("generator requires a text generation backend", nil)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		backend: cfg.Backend,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker: awerrors.NewCircuitBreaker("generation:"+cfg.Backend.Name(),
			awerrors.WithMaxFailures(cfg.BreakerFailures),
			awerrors.WithResetTimeout(cfg.BreakerReset)),
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the backend name.
func (g *Generator) Name() string {
	return g.backend.Name()
}

// Model returns the backend model, if known.
func (g *Generator) Model() string {
	if m, ok := g.backend.(modelNamer); ok {
		return m.Model()
	}
	return ""
}

// BreakerState reports the circuit breaker state.
func (g *Generator) BreakerState() awerrors.State {
	return g.breaker.State()
}

// Generate builds the prompt, invokes the backend once and validates the
// result. It returns a complete Output or an error, never a partial record.
func (g *Generator) Generate(ctx context.Context, req Request) (*Output, error) {
	if req.Tone == "" {
		req.Tone = DefaultTone
	}
	if len(req.Languages) == 0 {
		req.Languages = DefaultLanguages
	}
	prompt := BuildPrompt(req)

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, awerrors.GenerationUnavailable("gave up waiting for a generation slot", err)
	}
	defer g.sem.Release(1)

	start := time.Now()
	raw, err := awerrors.Execute(g.breaker, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		raw, err := g.backend.Complete(callCtx, prompt)
		if err != nil && ctx.Err() != nil {
			// The caller left; the backend may be fine.
			return "", awerrors.Abandoned(err)
		}
		return raw, err
	})
	if err != nil && ctx.Err() != nil {
		slog.Debug("generation_abandoned",
			slog.String("backend", g.backend.Name()),
			slog.Duration("duration", time.Since(start)))
		return nil, awerrors.GenerationUnavailable("generation abandoned by caller", err)
	}
	if err != nil {
		slog.Warn("generation_failed",
			slog.String("backend", g.backend.Name()),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		if errors.Is(err, awerrors.ErrCircuitOpen) {
			return nil, awerrors.GenerationUnavailable("generation backend is failing; not retrying yet", err).
				WithSuggestion("Wait for the backend to recover or check its logs")
		}
		return nil, awerrors.GenerationUnavailable("generation backend unavailable", err).
			WithDetail("backend", g.backend.Name())
	}

	out, err := ParseOutput(raw)
	if err != nil {
		slog.Warn("generation_rejected",
			slog.String("backend", g.backend.Name()),
			slog.String("code", awerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.Debug("generation_complete",
		slog.String("backend", g.backend.Name()),
		slog.Int("bullets", len(out.BulletHighlights)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// Event describes the outcome of a Generate call for telemetry.
func (g *Generator) Event(start time.Time, err error, source telemetry.Source) telemetry.GenerationEvent {
	return telemetry.GenerationEvent{
		Backend:   g.Name(),
		Model:     g.Model(),
		Success:   err == nil,
		ErrorCode: awerrors.GetCode(err),
		Source:    source,
		Duration:  time.Since(start),
		Timestamp: start,
	}
}
