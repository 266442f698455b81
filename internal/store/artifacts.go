package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// Artifact file names inside a data directory.
const (
	IndexFile    = "index.vec"
	ChunksFile   = "chunks.jsonl"
	ManifestFile = "manifest.json"
	LockFile     = ".build.lock"
)

// Paths locates the artifacts of one data directory.
type Paths struct {
	Dir string
}

func (p Paths) Index() string    { return filepath.Join(p.Dir, IndexFile) }
func (p Paths) Graph() string    { return GraphPath(p.Index()) }
func (p Paths) Chunks() string   { return filepath.Join(p.Dir, ChunksFile) }
func (p Paths) Manifest() string { return filepath.Join(p.Dir, ManifestFile) }
func (p Paths) Lock() string     { return filepath.Join(p.Dir, LockFile) }

// Exists reports whether both artifacts are present.
func (p Paths) Exists() bool {
	return fileExists(p.Index()) && fileExists(p.Chunks())
}

// Manifest describes a build. It is rewritten at every checkpoint.
type Manifest struct {
	EmbedModel string    `json:"embed_model"`
	Dimensions int       `json:"dimensions"`
	Backend    Backend   `json:"backend"`
	Vectors    int       `json:"vectors"`
	Chunks     int       `json:"chunks"`
	BatchSize  int       `json:"batch_size"`
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReadManifest reads the manifest at path. A missing file returns an error
// matching os.ErrNotExist.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest writes m atomically.
func WriteManifest(path string, m *Manifest) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// Artifacts is a loaded, read-only build: the index plus the chunk records
// it points at.
type Artifacts struct {
	Index    VectorIndex
	Chunks   []chunk.Chunk
	Manifest *Manifest // nil for builds that predate manifests
}

// OpenArtifacts loads the index and chunk store from p and checks that they
// have the same cardinality. The backend recorded in the manifest wins over
// cfg.Backend.
func OpenArtifacts(p Paths, cfg IndexConfig) (*Artifacts, error) {
	if !fileExists(p.Index()) {
		return nil, awerrors.IndexUnavailable(fmt.Sprintf("vector index not found at %s", p.Index()), nil)
	}
	if !fileExists(p.Chunks()) {
		return nil, awerrors.IndexUnavailable(fmt.Sprintf("chunk store not found at %s", p.Chunks()), nil)
	}

	manifest, err := ReadManifest(p.Manifest())
	switch {
	case err == nil:
		cfg.Backend = manifest.Backend
	case errors.Is(err, os.ErrNotExist):
		manifest = nil
	default:
		return nil, awerrors.CorruptIndex("cannot read build manifest", err)
	}

	index, err := NewIndex(cfg)
	if err != nil {
		return nil, awerrors.ConfigError(err.Error(), err)
	}
	if err := index.Load(p.Index()); err != nil {
		return nil, awerrors.CorruptIndex("cannot read vector index", err)
	}

	chunks, err := LoadChunks(p.Chunks())
	if err != nil {
		return nil, awerrors.CorruptIndex("cannot read chunk store", err)
	}

	if index.Count() != len(chunks) {
		return nil, awerrors.CorruptIndex(
			fmt.Sprintf("index has %d vectors but chunk store has %d records", index.Count(), len(chunks)), nil).
			WithDetail("vectors", fmt.Sprint(index.Count())).
			WithDetail("chunks", fmt.Sprint(len(chunks)))
	}

	return &Artifacts{Index: index, Chunks: chunks, Manifest: manifest}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
