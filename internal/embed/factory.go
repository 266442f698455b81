package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings. Offline and deterministic.
	ProviderStatic ProviderType = "static"
)

// ParseProvider validates a provider name. Empty selects ProviderOllama.
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderOllama:
		return ProviderOllama, nil
	case ProviderStatic:
		return ProviderStatic, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want ollama or static)", s)
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	// CacheSize is the in-memory LRU size; negative disables caching.
	CacheSize int

	// Redis, when Addr is set, adds a shared second cache tier.
	Redis RedisConfig
}

// NewEmbedder creates an embedder for opts. AUTOWRITER_EMBED_PROVIDER
// overrides opts.Provider. An explicitly chosen provider never falls back
// to another, since vectors from different models cannot share an index.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	provider := opts.Provider
	if env := os.Getenv("AUTOWRITER_EMBED_PROVIDER"); env != "" {
		p, err := ParseProvider(env)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	if provider == "" {
		provider = ProviderOllama
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		retries := opts.MaxRetries
		if retries == 0 {
			retries = 3
		}
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
			Timeout:    opts.Timeout,
			MaxRetries: retries,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or build offline: AUTOWRITER_EMBED_PROVIDER=static", err, modelOrDefault(opts.Model))
		}
		embedder = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if opts.CacheSize < 0 {
		return embedder, nil
	}

	var remote RemoteCache
	if opts.Redis.Addr != "" {
		rc, err := NewRedisCache(ctx, opts.Redis)
		if err != nil {
			// The shared tier is optional; the LRU still works.
			slog.Warn("embedding_cache_redis_unavailable",
				slog.String("addr", opts.Redis.Addr),
				slog.String("error", err.Error()))
		} else {
			remote = rc
		}
	}
	return NewCachedEmbedder(embedder, opts.CacheSize, remote), nil
}

func modelOrDefault(m string) string {
	if m == "" {
		return DefaultOllamaModel
	}
	return m
}
