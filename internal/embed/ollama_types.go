package embed

import "time"

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is multilingual, so Arabic brochure pages and English
	// queries share one vector space.
	DefaultOllamaModel = "bge-m3"

	// OllamaPoolSize for the connection pool.
	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order if the configured model is not pulled.
var FallbackOllamaModels = []string{
	"paraphrase-multilingual",
	"nomic-embed-text",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use (default: bge-m3).
	Model string

	// FallbackModels are tried in order if Model is unavailable.
	FallbackModels []string

	// Dimensions overrides auto-detection (0 = detect from a probe embedding).
	Dimensions int

	// BatchSize caps texts per /api/embed request.
	BatchSize int

	// Timeout for one request once the model is warm.
	Timeout time.Duration

	// MaxRetries for transient transport failures.
	MaxRetries int

	// PoolSize for the HTTP connection pool.
	PoolSize int

	// SkipHealthCheck skips model discovery and dimension probing.
	SkipHealthCheck bool
}

// OllamaEmbedRequest is the /api/embed request body.
type OllamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

// OllamaEmbedResponse is the /api/embed response body.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelInfo describes one pulled model from /api/tags.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// OllamaModelListResponse is the /api/tags response body.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}
