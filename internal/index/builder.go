// Package index builds the persisted vector index and chunk store from a
// stream of chunk records. Builds are batched, checkpointed and resumable.
package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/embed"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

const (
	// DefaultBatchSize is the number of chunks embedded per batch.
	DefaultBatchSize = 64

	// DefaultCheckpointEvery is the number of batches between checkpoints.
	DefaultCheckpointEvery = 10
)

// BuildOptions controls one build.
type BuildOptions struct {
	// BatchSize is the number of chunks embedded per request (default 64).
	BatchSize int

	// Resume continues a previous build instead of replacing it.
	Resume bool

	// CheckpointEvery persists artifacts every N batches (default 10).
	CheckpointEvery int

	// Total is the expected number of input chunks, for progress only.
	Total int
}

// BuildResult summarizes a finished build.
type BuildResult struct {
	// Chunks is the number of vectors (and records) in the artifacts.
	Chunks int

	// Embedded is the number of chunks embedded by this run.
	Embedded int

	// Skipped is the number of input chunks already present from a prior run.
	Skipped int

	// Checkpoints is the number of times artifacts were persisted.
	Checkpoints int

	Resumed  bool
	Duration time.Duration
	Manifest *store.Manifest
}

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	// Paths locates the output artifacts.
	Paths store.Paths

	// Index configures the vector index backend.
	Index store.IndexConfig

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Renderer displays progress (optional).
	Renderer ui.Renderer
}

// Builder is the single writer of a data directory.
type Builder struct {
	paths    store.Paths
	indexCfg store.IndexConfig
	embedder embed.Embedder
	renderer ui.Renderer
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Embedder == nil {
		return nil, awerrors.ConfigError("builder requires an embedder", nil)
	}
	if cfg.Paths.Dir == "" {
		return nil, awerrors.ConfigError("builder requires an output directory", nil)
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = store.BackendFlat
	}
	return &Builder{
		paths:    cfg.Paths,
		indexCfg: cfg.Index,
		embedder: cfg.Embedder,
		renderer: cfg.Renderer,
	}, nil
}

// BuildFromFile builds from a chunk-record JSONL file. The file must not be
// the chunk store being written.
func (b *Builder) BuildFromFile(ctx context.Context, path string, opts BuildOptions) (*BuildResult, error) {
	if samePath(path, b.paths.Chunks()) {
		return nil, awerrors.ConfigError(
			fmt.Sprintf("chunk source %s is the chunk store being built", path), nil).
			WithSuggestion("write ingested chunks to a separate file such as corpus.jsonl")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, awerrors.New(awerrors.ErrCodeFileNotFound, fmt.Sprintf("chunk source %s not readable", path), err)
	}
	if opts.Total == 0 {
		if n, err := countLines(path); err == nil {
			opts.Total = n
		}
	}
	return b.Build(ctx, store.ReadChunks(path), opts)
}

// buildState is the mutable state of one Build call.
type buildState struct {
	index       store.VectorIndex
	chunks      *store.ChunkStore
	manifest    *store.Manifest
	prior       int
	checkpoints int
	saveTime    time.Duration
}

// Build embeds chunks in batches and appends them to the index and chunk
// store, checkpointing every CheckpointEvery batches and after the last.
//
// With Resume and existing artifacts holding P vectors, the first P input
// chunks are skipped. Input must replay the same chunk order as the prior
// run for the offset mapping to hold.
func (b *Builder) Build(ctx context.Context, source iter.Seq2[chunk.Chunk, error], opts BuildOptions) (result *BuildResult, err error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}

	lock := NewFileLock(b.paths.Lock())
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			slog.Warn("build_lock_release_failed", slog.String("error", uerr.Error()))
		}
	}()

	start := time.Now()
	st := &buildState{}
	defer func() {
		if st.chunks != nil {
			if cerr := st.chunks.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close chunk store: %w", cerr)
			}
		}
	}()

	if opts.Resume {
		if err := b.openPrior(st); err != nil {
			return nil, err
		}
	}
	resumed := st.prior > 0

	b.startRenderer(ctx)
	defer b.stopRenderer()

	slog.Info("build_started",
		slog.String("dir", b.paths.Dir),
		slog.String("backend", string(b.indexCfg.Backend)),
		slog.String("embed_model", b.embedder.ModelName()),
		slog.Int("batch_size", opts.BatchSize),
		slog.Int("checkpoint_every", opts.CheckpointEvery),
		slog.Int("resume_from", st.prior))

	if resumed {
		b.progress(ui.ProgressEvent{Stage: ui.StageResuming, Current: 0, Total: st.prior,
			Message: fmt.Sprintf("skipping %d indexed chunks", st.prior)})
	}

	var (
		seen     int
		embedded int
		batches  int
		embedDur time.Duration
		batch    = make([]chunk.Chunk, 0, opts.BatchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if st.chunks == nil {
			if err := b.startFresh(st); err != nil {
				return err
			}
		}
		t := time.Now()
		if err := b.embedBatch(ctx, st, batch); err != nil {
			return err
		}
		embedDur += time.Since(t)
		embedded += len(batch)
		batch = batch[:0]
		batches++

		b.progress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: st.prior + embedded, Total: opts.Total})
		if batches%opts.CheckpointEvery == 0 {
			return b.checkpoint(st, opts, false)
		}
		return nil
	}

	// fail persists the completed batches before returning err, so a resume
	// starts after them.
	fail := func(err error) (*BuildResult, error) {
		if st.index != nil && st.chunks != nil {
			if cerr := b.checkpoint(st, opts, false); cerr != nil {
				slog.Error("build_checkpoint_failed", slog.String("error", cerr.Error()))
			}
		}
		b.reportError(err)
		return nil, err
	}

	for c, rerr := range source {
		if rerr != nil {
			return fail(awerrors.New(awerrors.ErrCodeInvalidInput, "cannot read chunk records", rerr))
		}
		seen++
		if seen <= st.prior {
			continue
		}
		if seen == st.prior+1 && resumed {
			b.progress(ui.ProgressEvent{Stage: ui.StageResuming, Current: st.prior, Total: st.prior})
		}

		batch = append(batch, c)
		if len(batch) < opts.BatchSize {
			continue
		}
		if err := flush(); err != nil {
			return fail(err)
		}
		if err := ctx.Err(); err != nil {
			slog.Info("build_cancelled", slog.Int("indexed", st.index.Count()))
			return fail(err)
		}
	}
	if err := flush(); err != nil {
		return fail(err)
	}

	switch {
	case seen == 0 && st.prior == 0:
		return nil, awerrors.EmptyCorpus()
	case seen < st.prior:
		err := awerrors.CorruptIndex(
			fmt.Sprintf("input has %d chunks but the index already holds %d", seen, st.prior), nil).
			WithDetail("input", fmt.Sprint(seen)).
			WithDetail("indexed", fmt.Sprint(st.prior))
		b.reportError(err)
		return nil, err
	}

	// A resume with nothing new still rewrites the manifest as complete.
	if st.chunks == nil && st.index == nil {
		return nil, awerrors.EmptyCorpus()
	}
	if err := b.checkpoint(st, opts, true); err != nil {
		b.reportError(err)
		return nil, err
	}

	result = &BuildResult{
		Chunks:      st.index.Count(),
		Embedded:    embedded,
		Skipped:     st.prior,
		Checkpoints: st.checkpoints,
		Resumed:     resumed,
		Duration:    time.Since(start),
		Manifest:    st.manifest,
	}

	if b.renderer != nil {
		b.renderer.Complete(ui.CompletionStats{
			Chunks:      result.Chunks,
			Embedded:    result.Embedded,
			Skipped:     result.Skipped,
			Checkpoints: result.Checkpoints,
			Duration:    result.Duration,
			Stages:      ui.StageTimings{Embed: embedDur, Save: st.saveTime},
			Embedder: ui.EmbedderInfo{
				Model:      b.embedder.ModelName(),
				Dimensions: st.index.Dimensions(),
			},
			Backend: string(st.index.Backend()),
		})
	}

	slog.Info("build_complete",
		slog.Int("chunks", result.Chunks),
		slog.Int("embedded", result.Embedded),
		slog.Int("skipped", result.Skipped),
		slog.Int("checkpoints", result.Checkpoints),
		slog.Bool("resumed", result.Resumed),
		slog.Int64("duration_embed_ms", embedDur.Milliseconds()),
		slog.Int64("duration_save_ms", st.saveTime.Milliseconds()),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()))

	return result, nil
}

// openPrior loads the artifacts of an earlier build for resuming. Missing
// artifacts leave st empty so the build starts fresh.
func (b *Builder) openPrior(st *buildState) error {
	if !fileExists(b.paths.Index()) {
		slog.Info("build_resume_no_prior", slog.String("dir", b.paths.Dir))
		return nil
	}

	cfg := b.indexCfg
	manifest, err := store.ReadManifest(b.paths.Manifest())
	switch {
	case err == nil:
		if manifest.EmbedModel != b.embedder.ModelName() {
			return awerrors.ConfigError(
				fmt.Sprintf("index was built with embedding model %q, not %q", manifest.EmbedModel, b.embedder.ModelName()), nil).
				WithSuggestion("use the original embedding model or rebuild with --force")
		}
		cfg.Backend = manifest.Backend
		cfg.Dimensions = manifest.Dimensions
	case errors.Is(err, os.ErrNotExist):
		manifest = nil
	default:
		return awerrors.CorruptIndex("cannot read build manifest", err)
	}

	index, err := store.NewIndex(cfg)
	if err != nil {
		return awerrors.ConfigError(err.Error(), err)
	}
	if err := index.Load(b.paths.Index()); err != nil {
		return awerrors.CorruptIndex("cannot read vector index", err)
	}
	if dims := b.embedder.Dimensions(); dims != 0 && index.Count() > 0 && dims != index.Dimensions() {
		return awerrors.ConfigError(
			fmt.Sprintf("index has %d dimensions but the embedder produces %d", index.Dimensions(), dims), nil).
			WithSuggestion("rebuild with --force")
	}

	prior := index.Count()
	chunks, err := store.OpenChunkStore(b.paths.Chunks())
	if err != nil {
		return awerrors.CorruptIndex("cannot open chunk store", err)
	}
	if chunks.Count() < prior {
		_ = chunks.Close()
		return awerrors.CorruptIndex(
			fmt.Sprintf("chunk store has %d records but the index has %d vectors", chunks.Count(), prior), nil)
	}
	if chunks.Count() > prior {
		slog.Warn("build_resume_truncating_chunks",
			slog.Int("records", chunks.Count()),
			slog.Int("vectors", prior))
		if err := chunks.Truncate(prior); err != nil {
			_ = chunks.Close()
			return awerrors.CorruptIndex("cannot truncate chunk store", err)
		}
	}

	if manifest == nil {
		manifest = &store.Manifest{StartedAt: time.Now().UTC()}
	}
	manifest.Complete = false

	st.index = index
	st.chunks = chunks
	st.manifest = manifest
	st.prior = prior
	slog.Info("build_resuming", slog.Int("indexed", prior))
	return nil
}

// startFresh replaces any existing artifacts. Called on the first batch so
// that an empty input leaves the directory untouched.
func (b *Builder) startFresh(st *buildState) error {
	for _, p := range []string{b.paths.Index(), b.paths.Graph(), b.paths.Manifest()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove old artifact: %w", err)
		}
	}
	chunks, err := store.CreateChunkStore(b.paths.Chunks())
	if err != nil {
		return err
	}
	st.chunks = chunks
	st.manifest = &store.Manifest{StartedAt: time.Now().UTC()}
	return nil
}

// embedBatch embeds one batch and appends it to index and chunk store. On
// error nothing from the batch is recorded.
func (b *Builder) embedBatch(ctx context.Context, st *buildState, batch []chunk.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	if err != nil {
		processed := 0
		if st.index != nil {
			processed = st.index.Count()
		}
		slog.Error("build_embedding_failed",
			slog.Int("indexed", processed),
			slog.Int("batch", len(batch)),
			slog.String("first_chunk", batch[0].ID),
			slog.String("error", err.Error()))
		return awerrors.EmbeddingFailure(processed, err)
	}
	for _, v := range vecs {
		embed.Normalize(v)
	}

	if st.index == nil {
		cfg := b.indexCfg
		cfg.Dimensions = len(vecs[0])
		index, err := store.NewIndex(cfg)
		if err != nil {
			return awerrors.ConfigError(err.Error(), err)
		}
		st.index = index
	}

	if err := st.index.Add(vecs); err != nil {
		var dm store.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return awerrors.EmbeddingFailure(st.index.Count(), err)
		}
		return err
	}
	return st.chunks.Append(batch...)
}

// checkpoint makes the artifacts durable: chunk store first, then index,
// then manifest. A crash between the first two leaves extra records, which
// a resume truncates.
func (b *Builder) checkpoint(st *buildState, opts BuildOptions, complete bool) error {
	t := time.Now()
	b.progress(ui.ProgressEvent{Stage: ui.StageCheckpoint, Current: st.index.Count(), Total: opts.Total,
		Message: "saving checkpoint"})

	if err := st.chunks.Sync(); err != nil {
		return err
	}
	if err := st.index.Save(b.paths.Index()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if st.index.Count() != st.chunks.Count() {
		return awerrors.CorruptIndex(
			fmt.Sprintf("index has %d vectors but chunk store has %d records", st.index.Count(), st.chunks.Count()), nil)
	}

	m := st.manifest
	m.EmbedModel = b.embedder.ModelName()
	m.Dimensions = st.index.Dimensions()
	m.Backend = st.index.Backend()
	m.Vectors = st.index.Count()
	m.Chunks = st.chunks.Count()
	m.BatchSize = opts.BatchSize
	m.Complete = complete
	m.UpdatedAt = time.Now().UTC()
	if err := store.WriteManifest(b.paths.Manifest(), m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	st.checkpoints++
	st.saveTime += time.Since(t)
	slog.Info("build_checkpoint",
		slog.Int("vectors", m.Vectors),
		slog.Bool("complete", complete),
		slog.Int64("duration_ms", time.Since(t).Milliseconds()))
	return nil
}

func (b *Builder) startRenderer(ctx context.Context) {
	if b.renderer == nil {
		return
	}
	if err := b.renderer.Start(ctx); err != nil {
		slog.Warn("renderer_start_failed", slog.String("error", err.Error()))
	}
}

func (b *Builder) stopRenderer() {
	if b.renderer == nil {
		return
	}
	if err := b.renderer.Stop(); err != nil {
		slog.Debug("renderer_stop_failed", slog.String("error", err.Error()))
	}
}

func (b *Builder) progress(event ui.ProgressEvent) {
	if b.renderer != nil {
		b.renderer.UpdateProgress(event)
	}
}

func (b *Builder) reportError(err error) {
	if b.renderer != nil {
		b.renderer.AddError(ui.ErrorEvent{Err: err})
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// countLines counts non-blank lines for progress totals.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
