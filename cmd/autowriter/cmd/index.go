package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/index"
	"github.com/Aman-CERP/autowriter/internal/ingest"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

// buildOptions holds the flags shared by index and ingest.
type buildOptions struct {
	chunks    string
	out       string
	batchSize int
	resume    bool
	force     bool
	noTUI     bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed a chunk-record file into a vector index",
		Long: `Embed every record of a chunk-record JSONL file and write the vector
index, chunk store and manifest to the data directory.

Builds checkpoint as they go. An interrupted build continues with --resume;
an existing index is replaced only with --force.

Examples:
  autowriter index
  autowriter index --chunks data/corpus.jsonl --out data --batch-size 32
  autowriter index --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.chunks == "" {
				opts.chunks = root.cfg.CorpusPath()
			}
			_, err := runBuild(ctx, cmd, root, opts)
			return err
		},
	}

	addBuildFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.chunks, "chunks", "", "Chunk-record JSONL file (default paths.corpus)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Replace an existing index")
	cmd.MarkFlagsMutuallyExclusive("resume", "force")

	return cmd
}

func addBuildFlags(cmd *cobra.Command, opts *buildOptions) {
	cmd.Flags().StringVar(&opts.out, "out", "", "Output data directory (default paths.data_dir)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Chunks per embedding request (default embeddings.batch_size)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Continue an interrupted build")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output")
}

// runBuild embeds opts.chunks into the output directory.
func runBuild(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts buildOptions) (*index.BuildResult, error) {
	cfg := root.cfg
	if opts.out == "" {
		opts.out = cfg.Paths.DataDir
	}
	if opts.batchSize <= 0 {
		opts.batchSize = cfg.Embeddings.BatchSize
	}
	paths := store.Paths{Dir: opts.out}

	if _, err := os.Stat(opts.chunks); err != nil {
		return nil, awerrors.New(awerrors.ErrCodeFileNotFound,
			fmt.Sprintf("chunk-record file %s not found", opts.chunks), err).
			WithSuggestion("Run 'autowriter ingest --source DIR' first")
	}
	if paths.Exists() && !opts.resume && !opts.force {
		if m, err := store.ReadManifest(paths.Manifest()); err == nil && m.Complete {
			return nil, awerrors.ValidationError(fmt.Sprintf("an index already exists in %s", opts.out), nil).
				WithSuggestion("Use --force to rebuild it or --resume to add new records")
		}
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	idxCfg, err := indexConfig(cfg)
	if err != nil {
		return nil, err
	}

	abs, _ := filepath.Abs(opts.out)
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(abs)))

	builder, err := index.NewBuilder(index.BuilderConfig{
		Paths:    paths,
		Index:    idxCfg,
		Embedder: embedder,
		Renderer: renderer,
	})
	if err != nil {
		return nil, err
	}

	res, err := builder.BuildFromFile(ctx, opts.chunks, index.BuildOptions{
		BatchSize:       opts.batchSize,
		Resume:          opts.resume,
		CheckpointEvery: cfg.Index.CheckpointEvery,
	})
	if err != nil {
		if ctx.Err() != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Build interrupted; continue with --resume")
		}
		return nil, err
	}
	slog.Info("index_command_complete", slog.String("dir", opts.out), slog.Int("chunks", res.Chunks))
	return res, nil
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		source   string
		noIndex  bool
		maxWords int
		overlap  int
		opts     buildOptions
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract brochures into chunk records and build the index",
		Long: `Walk a brochure directory (PDF, text and HTML), split every page into
overlapping word windows and write the chunk records to corpus.jsonl in the
output directory. Make, model and year are taken from directory names such
as brochures/toyota/land-cruiser/2024/.

The index is built afterwards unless --no-index is given.

Examples:
  autowriter ingest --source brochures/
  autowriter ingest --source brochures/ --max-words 200 --overlap 40 --no-index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, cmd, root, source, noIndex, maxWords, overlap, opts)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Brochure directory")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Only write chunk records")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "Words per chunk (default chunking.max_words)")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "Words shared by consecutive chunks (default chunking.overlap)")
	addBuildFlags(cmd, &opts)
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, root *rootOptions, source string, noIndex bool, maxWords, overlap int, opts buildOptions) error {
	cfg := root.cfg
	if maxWords <= 0 {
		maxWords = cfg.Chunking.MaxWords
	}
	if overlap < 0 {
		overlap = cfg.Chunking.Overlap
	}

	corpus := cfg.CorpusPath()
	if opts.out != "" {
		corpus = filepath.Join(opts.out, ingest.CorpusFile)
	}

	catalog, err := autowriter.DefaultCatalog()
	if err != nil {
		return err
	}
	in, err := ingest.New(ingest.Config{
		Source:   source,
		Include:  cfg.Ingest.Include,
		Exclude:  cfg.Ingest.Exclude,
		MaxWords: maxWords,
		Overlap:  overlap,
		Catalog:  catalog,
	})
	if err != nil {
		return err
	}

	res, err := in.Run(ctx, corpus)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents (%d skipped), %d pages, %d chunks -> %s\n",
		res.Documents, res.Skipped, res.Pages, res.Chunks, res.Path)

	if noIndex {
		return nil
	}
	opts.chunks = corpus
	// Re-ingesting replaces the records, so the index is rebuilt unless
	// resuming.
	opts.force = !opts.resume
	_, err = runBuild(ctx, cmd, root, opts)
	return err
}
