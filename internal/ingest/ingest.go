// Package ingest turns a folder of vehicle brochures into chunk records.
//
// Documents are discovered with include/exclude globs, split into pages by
// a PageExtractor chosen by extension, tagged with metadata inferred from
// their path, and chunked into overlapping word windows. The records are
// written to a JSONL file that the index builder consumes.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
)

// CorpusFile is the default name of the ingested chunk-record file.
const CorpusFile = "corpus.jsonl"

// DefaultInclude matches the supported brochure formats.
var DefaultInclude = []string{"**/*.pdf", "**/*.txt", "**/*.html", "**/*.htm"}

// Config wires an Ingester.
type Config struct {
	// Source is the brochure root directory (required).
	Source string

	// Include and Exclude are doublestar globs over slash-separated paths
	// relative to Source. Include matching ignores case.
	Include []string
	Exclude []string

	// MaxWords and Overlap size the chunk windows. A zero MaxWords selects
	// the defaults for both.
	MaxWords int
	Overlap  int

	// Catalog recognizes make and model directories (optional).
	Catalog *autowriter.Catalog

	// Extractors by lowercase extension; defaults to DefaultExtractors.
	Extractors map[string]PageExtractor
}

// Result summarizes an ingest run.
type Result struct {
	Path      string        `json:"path"`
	Documents int           `json:"documents"`
	Skipped   int           `json:"skipped"`
	Pages     int           `json:"pages"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
}

// Ingester converts brochures into chunk records.
type Ingester struct {
	cfg Config
}

// New validates cfg and creates an Ingester.
func New(cfg Config) (*Ingester, error) {
	if cfg.Source == "" {
		return nil, awerrors.ConfigError("ingest requires a source directory", nil)
	}
	info, err := os.Stat(cfg.Source)
	if err != nil {
		return nil, awerrors.New(awerrors.ErrCodeFileNotFound,
			fmt.Sprintf("source directory %s not found", cfg.Source), err)
	}
	if !info.IsDir() {
		return nil, awerrors.ConfigError(fmt.Sprintf("source %s is not a directory", cfg.Source), nil)
	}
	if cfg.MaxWords == 0 {
		cfg.MaxWords, cfg.Overlap = chunk.DefaultMaxWords, chunk.DefaultOverlap
	}
	if err := chunk.ValidateWindow(cfg.MaxWords, cfg.Overlap); err != nil {
		return nil, err
	}
	if len(cfg.Include) == 0 {
		cfg.Include = DefaultInclude
	}
	for _, p := range slices.Concat(cfg.Include, cfg.Exclude) {
		if !doublestar.ValidatePattern(p) {
			return nil, awerrors.ConfigError(fmt.Sprintf("invalid glob pattern %q", p), nil)
		}
	}
	if cfg.Extractors == nil {
		cfg.Extractors = DefaultExtractors()
	}
	return &Ingester{cfg: cfg}, nil
}

// Discover lists matching documents relative to the source, sorted so that
// chunk order is deterministic.
func (in *Ingester) Discover(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(in.cfg.Source, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Debug("ingest_walk_skipped", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		rel, err := filepath.Rel(in.cfg.Source, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if in.excluded(rel) || in.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || in.excluded(rel) || !in.included(rel) {
			return nil
		}
		if _, ok := in.cfg.Extractors[strings.ToLower(filepath.Ext(rel))]; !ok {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func (in *Ingester) included(rel string) bool {
	lower := strings.ToLower(rel)
	for _, p := range in.cfg.Include {
		if ok, _ := doublestar.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}

func (in *Ingester) excluded(rel string) bool {
	for _, p := range in.cfg.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Chunks yields the chunk records of files in order. Documents that fail
// to extract are logged and skipped; res counts what was produced.
func (in *Ingester) Chunks(ctx context.Context, files []string, res *Result) iter.Seq[chunk.Chunk] {
	return func(yield func(chunk.Chunk) bool) {
		for _, rel := range files {
			if ctx.Err() != nil {
				return
			}
			path := filepath.Join(in.cfg.Source, filepath.FromSlash(rel))
			extractor := in.cfg.Extractors[strings.ToLower(filepath.Ext(rel))]

			pages, err := extractor.Pages(ctx, path)
			if err != nil {
				res.Skipped++
				slog.Warn("ingest_document_skipped",
					slog.String("path", rel),
					slog.String("error", err.Error()))
				continue
			}

			docID := DocumentID(rel)
			// Window parameters were validated in New.
			seq, _ := chunk.Document(docID, pages, PathMetadata(rel, in.cfg.Catalog), in.cfg.MaxWords, in.cfg.Overlap)
			res.Documents++
			res.Pages += len(pages)
			n := 0
			for c := range seq {
				n++
				if !yield(c) {
					return
				}
			}
			slog.Debug("ingest_document",
				slog.String("path", rel),
				slog.String("brochure_id", docID),
				slog.Int("pages", len(pages)),
				slog.Int("chunks", n))
		}
	}
}

// Run discovers, extracts and chunks every document and writes the chunk
// records to out atomically. Nothing is written when ctx is cancelled or
// no chunks were produced.
func (in *Ingester) Run(ctx context.Context, out string) (*Result, error) {
	start := time.Now()
	files, err := in.Discover(ctx)
	if err != nil {
		return nil, awerrors.New(awerrors.ErrCodeIngestFailed, "scan source directory", err)
	}
	if len(files) == 0 {
		return nil, awerrors.EmptyCorpus().
			WithDetail("source", in.cfg.Source).
			WithSuggestion("check the source directory and the ingest include patterns")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, awerrors.New(awerrors.ErrCodeIngestFailed, "create output directory", err)
	}

	res := &Result{Path: out}
	tmp := out + ".ingest"
	count, err := store.WriteChunks(tmp, in.Chunks(ctx, files, res))
	if err != nil {
		_ = os.Remove(tmp)
		return nil, awerrors.New(awerrors.ErrCodeIngestFailed, "write chunk records", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if count == 0 {
		_ = os.Remove(tmp)
		return nil, awerrors.EmptyCorpus().WithDetail("skipped", fmt.Sprintf("%d", res.Skipped))
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return nil, awerrors.New(awerrors.ErrCodeIngestFailed, "replace chunk records", err)
	}

	res.Chunks = count
	res.Duration = time.Since(start)
	slog.Info("ingest_complete",
		slog.String("path", out),
		slog.Int("documents", res.Documents),
		slog.Int("skipped", res.Skipped),
		slog.Int("chunks", res.Chunks),
		slog.Duration("duration", res.Duration))
	return res, nil
}
