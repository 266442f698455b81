// Package config loads autowriter configuration.
//
// Values are layered in order of increasing precedence:
//  1. Built-in defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/autowriter/config.yaml or ~/.config/autowriter/config.yaml)
//  3. Project config (autowriter.yaml in the working directory, or --config)
//  4. .env in the working directory (never overriding variables already set)
//  5. Environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/store"
)

const (
	// ProjectFile is the project config name looked up in the working directory.
	ProjectFile = "autowriter.yaml"

	// EnvFile is loaded from the working directory when present.
	EnvFile = ".env"
)

// Config is the complete autowriter configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`

	// Sources lists the files that contributed, lowest precedence first.
	Sources []string `yaml:"-" json:"sources,omitempty"`
}

// PathsConfig locates artifacts.
type PathsConfig struct {
	// DataDir holds index.vec, chunks.jsonl and manifest.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Corpus is the chunk-record file written by ingest. Defaults to
	// corpus.jsonl inside DataDir.
	Corpus string `yaml:"corpus" json:"corpus"`
}

// ChunkingConfig sizes chunk windows in words.
type ChunkingConfig struct {
	MaxWords int `yaml:"max_words" json:"max_words"`
	Overlap  int `yaml:"overlap" json:"overlap"`
}

// EmbeddingsConfig configures the embedding provider and its cache.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the number of in-process LRU entries; 0 disables caching.
	CacheSize    int         `yaml:"cache_size" json:"cache_size"`
	CacheBackend string      `yaml:"cache_backend" json:"cache_backend"` // memory | redis
	Redis        RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the shared embedding cache tier.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"-"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// IndexConfig configures the vector index and build checkpoints.
type IndexConfig struct {
	Backend         string     `yaml:"backend" json:"backend"`
	CheckpointEvery int        `yaml:"checkpoint_every" json:"checkpoint_every"`
	HNSW            HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// HNSWConfig holds graph parameters for the hnsw backend.
type HNSWConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// RetrievalConfig configures evidence retrieval.
type RetrievalConfig struct {
	K         int `yaml:"k" json:"k"`
	Overfetch int `yaml:"overfetch" json:"overfetch"`
}

// GenerationConfig configures the text generation backend and its guard.
type GenerationConfig struct {
	Backend         string        `yaml:"backend" json:"backend"`
	Model           string        `yaml:"model" json:"model"`
	Host            string        `yaml:"host" json:"host"`
	Command         string        `yaml:"command" json:"command"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen"`

	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit      float64       `yaml:"rate_limit" json:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst" json:"rate_burst"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// TelemetryConfig configures the local event store.
type TelemetryConfig struct {
	// Enabled is a pointer so that an explicit false in a file is kept.
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IngestConfig selects source documents.
type IngestConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	enabled := true
	return &Config{
		Paths: PathsConfig{
			DataDir: "data",
		},
		Chunking: ChunkingConfig{
			MaxWords: chunk.DefaultMaxWords,
			Overlap:  chunk.DefaultOverlap,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     string(embed.ProviderOllama),
			Model:        embed.DefaultOllamaModel,
			Host:         embed.DefaultOllamaHost,
			BatchSize:    64,
			CacheSize:    1000,
			CacheBackend: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  7 * 24 * time.Hour,
			},
		},
		Index: IndexConfig{
			Backend:         string(store.BackendFlat),
			CheckpointEvery: 10,
			HNSW:            HNSWConfig{M: 16, EfSearch: 64},
		},
		Retrieval: RetrievalConfig{
			K:         6,
			Overfetch: 4,
		},
		Generation: GenerationConfig{
			Backend:         generate.BackendOllama,
			Model:           generate.DefaultModel,
			Host:            generate.DefaultOllamaHost,
			Command:         "ollama",
			Timeout:         generate.DefaultTimeout,
			MaxConcurrent:   generate.DefaultMaxConcurrent,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8088",
			RateLimit:      10,
			RateBurst:      20,
			RequestTimeout: 180 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled: &enabled,
		},
		Ingest: IngestConfig{
			Include: []string{"**/*.pdf", "**/*.txt", "**/*.html", "**/*.htm"},
			Exclude: []string{"**/.*/**"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration file path, following
// the XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autowriter", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "autowriter", "config.yaml")
	}
	return filepath.Join(home, ".config", "autowriter", "config.yaml")
}

// Load builds the configuration for dir. When file is non-empty it replaces
// the project config lookup and must exist.
func Load(dir, file string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if file != "" {
		if !fileExists(file) {
			return nil, awerrors.ConfigError(fmt.Sprintf("config file %s not found", file), nil)
		}
		if err := cfg.loadYAML(file); err != nil {
			return nil, err
		}
	} else {
		for _, name := range []string{ProjectFile, "autowriter.yml"} {
			if path := filepath.Join(dir, name); fileExists(path) {
				if err := cfg.loadYAML(path); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if envPath := filepath.Join(dir, EnvFile); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, awerrors.ConfigError(fmt.Sprintf("read %s", envPath), err)
		}
		cfg.Sources = append(cfg.Sources, envPath)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return awerrors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return awerrors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	c.mergeWith(&parsed)
	c.Sources = append(c.Sources, path)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	setString(&c.Paths.DataDir, other.Paths.DataDir)
	setString(&c.Paths.Corpus, other.Paths.Corpus)

	setInt(&c.Chunking.MaxWords, other.Chunking.MaxWords)
	// Overlap 0 is meaningful, so it follows max_words.
	if other.Chunking.MaxWords != 0 || other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	e, oe := &c.Embeddings, other.Embeddings
	setString(&e.Provider, oe.Provider)
	setString(&e.Model, oe.Model)
	setString(&e.Host, oe.Host)
	setInt(&e.Dimensions, oe.Dimensions)
	setInt(&e.BatchSize, oe.BatchSize)
	setInt(&e.CacheSize, oe.CacheSize)
	setString(&e.CacheBackend, oe.CacheBackend)
	setString(&e.Redis.Addr, oe.Redis.Addr)
	setString(&e.Redis.Password, oe.Redis.Password)
	setInt(&e.Redis.DB, oe.Redis.DB)
	if oe.Redis.TTL != 0 {
		e.Redis.TTL = oe.Redis.TTL
	}

	setString(&c.Index.Backend, other.Index.Backend)
	setInt(&c.Index.CheckpointEvery, other.Index.CheckpointEvery)
	setInt(&c.Index.HNSW.M, other.Index.HNSW.M)
	setInt(&c.Index.HNSW.EfSearch, other.Index.HNSW.EfSearch)

	setInt(&c.Retrieval.K, other.Retrieval.K)
	setInt(&c.Retrieval.Overfetch, other.Retrieval.Overfetch)

	g, og := &c.Generation, other.Generation
	setString(&g.Backend, og.Backend)
	setString(&g.Model, og.Model)
	setString(&g.Host, og.Host)
	setString(&g.Command, og.Command)
	setString(&g.BaseURL, og.BaseURL)
	if og.Timeout != 0 {
		g.Timeout = og.Timeout
	}
	setInt(&g.MaxConcurrent, og.MaxConcurrent)
	setInt(&g.BreakerFailures, og.BreakerFailures)
	if og.BreakerReset != 0 {
		g.BreakerReset = og.BreakerReset
	}

	setString(&c.Server.Listen, other.Server.Listen)
	if other.Server.RateLimit != 0 {
		c.Server.RateLimit = other.Server.RateLimit
	}
	setInt(&c.Server.RateBurst, other.Server.RateBurst)
	if other.Server.RequestTimeout != 0 {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}

	if other.Telemetry.Enabled != nil {
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}
	setString(&c.Telemetry.Path, other.Telemetry.Path)

	if len(other.Ingest.Include) > 0 {
		c.Ingest.Include = other.Ingest.Include
	}
	if len(other.Ingest.Exclude) > 0 {
		c.Ingest.Exclude = other.Ingest.Exclude
	}

	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies environment variables, the highest layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTOWRITER_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("AUTOWRITER_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AUTOWRITER_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		host := v
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		c.Embeddings.Host = host
		c.Generation.Host = host
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("AUTOWRITER_GENERATOR"); v != "" {
		c.Generation.Backend = v
	}
	if v := os.Getenv("AUTOWRITER_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("AUTOWRITER_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && r >= 0 {
			c.Server.RateLimit = r
		}
	}
	if v := os.Getenv("AUTOWRITER_REDIS_ADDR"); v != "" {
		c.Embeddings.Redis.Addr = v
		c.Embeddings.CacheBackend = "redis"
	}
	if v := os.Getenv("AUTOWRITER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUTOWRITER_TELEMETRY"); v != "" {
		enabled := strings.EqualFold(v, "true") || v == "1"
		c.Telemetry.Enabled = &enabled
	}
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return invalid("paths.data_dir", "must not be empty")
	}
	if err := chunk.ValidateWindow(c.Chunking.MaxWords, c.Chunking.Overlap); err != nil {
		return err
	}
	if _, err := embed.ParseProvider(c.Embeddings.Provider); err != nil {
		return invalid("embeddings.provider", err.Error())
	}
	if c.Embeddings.BatchSize <= 0 {
		return invalid("embeddings.batch_size", "must be positive")
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions", "must not be negative")
	}
	if c.Embeddings.CacheSize < 0 {
		return invalid("embeddings.cache_size", "must not be negative")
	}
	if !slices.Contains([]string{"memory", "redis"}, c.Embeddings.CacheBackend) {
		return invalid("embeddings.cache_backend", "must be memory or redis")
	}
	if _, err := store.ParseBackend(c.Index.Backend); err != nil {
		return invalid("index.backend", err.Error())
	}
	if c.Index.CheckpointEvery <= 0 {
		return invalid("index.checkpoint_every", "must be positive")
	}
	if c.Retrieval.K <= 0 {
		return invalid("retrieval.k", "must be positive")
	}
	if c.Retrieval.Overfetch < 1 {
		return invalid("retrieval.overfetch", "must be at least 1")
	}
	backends := []string{generate.BackendOllama, generate.BackendOllamaCLI, generate.BackendOpenAI, generate.BackendGemini}
	if !slices.Contains(backends, strings.ToLower(c.Generation.Backend)) {
		return invalid("generation.backend", "must be one of "+strings.Join(backends, ", "))
	}
	if c.Generation.Timeout <= 0 {
		return invalid("generation.timeout", "must be positive")
	}
	if c.Generation.MaxConcurrent <= 0 {
		return invalid("generation.max_concurrent", "must be positive")
	}
	if c.Server.RateLimit < 0 {
		return invalid("server.rate_limit", "must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return invalid("server.rate_burst", "must be positive when rate_limit is set")
	}
	if c.Server.RequestTimeout <= 0 {
		return invalid("server.request_timeout", "must be positive")
	}
	return nil
}

func invalid(field, msg string) error {
	return awerrors.ConfigError(fmt.Sprintf("invalid configuration: %s %s", field, msg), nil).
		WithDetail("field", field)
}

// CorpusPath returns the ingest output path.
func (c *Config) CorpusPath() string {
	if c.Paths.Corpus != "" {
		return c.Paths.Corpus
	}
	return filepath.Join(c.Paths.DataDir, "corpus.jsonl")
}

// TelemetryEnabled reports whether events are recorded.
func (c *Config) TelemetryEnabled() bool {
	return c.Telemetry.Enabled == nil || *c.Telemetry.Enabled
}

// TelemetryPath returns the telemetry database path.
func (c *Config) TelemetryPath() string {
	if c.Telemetry.Path != "" {
		return c.Telemetry.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(c.Paths.DataDir, "telemetry.db")
	}
	return filepath.Join(home, ".autowriter", "telemetry.db")
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
