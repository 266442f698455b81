package cmd

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	"github.com/Aman-CERP/autowriter/internal/config"
	"github.com/Aman-CERP/autowriter/internal/embed"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

// newEmbedder builds the embedder described by the embeddings section.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, err
	}
	opts := embed.Options{
		Provider:   provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = -1
	}
	if cfg.Embeddings.CacheBackend == "redis" {
		opts.Redis = embed.RedisConfig{
			Addr:     cfg.Embeddings.Redis.Addr,
			Password: cfg.Embeddings.Redis.Password,
			DB:       cfg.Embeddings.Redis.DB,
			TTL:      cfg.Embeddings.Redis.TTL,
		}
	}
	return embed.NewEmbedder(ctx, opts)
}

// indexConfig translates the index section.
func indexConfig(cfg *config.Config) (store.IndexConfig, error) {
	backend, err := store.ParseBackend(cfg.Index.Backend)
	if err != nil {
		return store.IndexConfig{}, err
	}
	return store.IndexConfig{
		Backend:    backend,
		Dimensions: cfg.Embeddings.Dimensions,
		M:          cfg.Index.HNSW.M,
		EfSearch:   cfg.Index.HNSW.EfSearch,
	}, nil
}

// newTextBackend creates the configured generation backend without
// contacting it.
func newTextBackend(ctx context.Context, cfg *config.Config) (generate.TextGenerator, error) {
	return generate.NewTextGenerator(ctx, generate.Options{
		Backend: cfg.Generation.Backend,
		Model:   cfg.Generation.Model,
		Host:    cfg.Generation.Host,
		BaseURL: cfg.Generation.BaseURL,
		Command: cfg.Generation.Command,
	})
}

// newGenerator wraps the configured backend with the concurrency limit and
// circuit breaker.
func newGenerator(ctx context.Context, cfg *config.Config) (*generate.Generator, error) {
	backend, err := newTextBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return generate.New(generate.Config{
		Backend:         backend,
		MaxConcurrent:   cfg.Generation.MaxConcurrent,
		Timeout:         cfg.Generation.Timeout,
		BreakerFailures: cfg.Generation.BreakerFailures,
		BreakerReset:    cfg.Generation.BreakerReset,
	})
}

// stack is the query side of the system, shared by retrieve, generate,
// write and serve.
type stack struct {
	cfg       *config.Config
	loader    *retrieve.Loader
	retriever *retrieve.Retriever
	generator *generate.Generator // nil when the backend could not be created
	writer    *autowriter.Service
	recorder  *telemetry.Recorder // nil when telemetry is disabled
	telemetry *telemetry.Store
}

// buildStack wires the query side from cfg. Assets load lazily on first
// use; a generation backend that cannot be created leaves the stack in
// fallback-only mode.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	idxCfg, err := indexConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg}
	if cfg.TelemetryEnabled() {
		ts, err := telemetry.Open(cfg.TelemetryPath())
		if err != nil {
			slog.Warn("telemetry_unavailable",
				slog.String("path", cfg.TelemetryPath()),
				slog.String("error", err.Error()))
		} else {
			s.telemetry = ts
			s.recorder = telemetry.NewRecorder(ts)
		}
	}

	s.loader, err = retrieve.NewLoader(retrieve.LoaderConfig{
		Paths:    store.Paths{Dir: cfg.Paths.DataDir},
		Index:    idxCfg,
		Embedder: embedder,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	ropts := retrieve.Options{Overfetch: cfg.Retrieval.Overfetch}
	if s.recorder != nil {
		ropts.Recorder = s.recorder
	}
	s.retriever = retrieve.New(s.loader, ropts)

	s.generator, err = newGenerator(ctx, cfg)
	if err != nil {
		slog.Warn("generation_backend_unavailable",
			slog.String("backend", cfg.Generation.Backend),
			slog.String("error", err.Error()))
		s.generator = nil
	}

	wcfg := autowriter.Config{
		Retriever: s.retriever,
		K:         cfg.Retrieval.K,
	}
	if s.generator != nil {
		wcfg.Generator = s.generator
	}
	if s.recorder != nil {
		wcfg.Recorder = s.recorder
	}
	s.writer, err = autowriter.NewService(wcfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the telemetry database.
func (s *stack) Close() {
	if s.telemetry != nil {
		if err := s.telemetry.Close(); err != nil {
			slog.Debug("telemetry_close_failed", slog.String("error", err.Error()))
		}
		s.telemetry = nil
	}
}
