package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes words and character trigrams into a fixed-width
// vector. It needs no model or network and is deterministic, which makes it
// the offline and test embedder. Similarity reflects shared vocabulary only.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

const (
	wordWeight    = 0.7
	trigramWeight = 0.3
)

// stopWords are dropped before hashing; they carry no vehicle information.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"are": true, "at": true, "by": true, "from": true, "as": true, "it": true,
	"this": true, "that": true, "be": true, "your": true, "you": true,
}

// NewStaticEmbedder creates a hashing embedder of the given width
// (DefaultStaticDimensions when dims <= 0).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed hashes text into a normalized vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	v := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		if stopWords[tok] {
			continue
		}
		v[bucket(tok, e.dims)] += wordWeight
		runes := []rune(tok)
		for i := 0; i+3 <= len(runes); i++ {
			v[bucket("#"+string(runes[i:i+3]), e.dims)] += trigramWeight
		}
	}
	return Normalize(v), nil
}

// EmbedBatch embeds each text.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the vector width.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName identifies the hashing scheme and width.
func (e *StaticEmbedder) ModelName() string { return fmt.Sprintf("static-hash-%d", e.dims) }

// Available reports whether the embedder is open.
func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. Arabic letters count as letters.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bucket(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}
