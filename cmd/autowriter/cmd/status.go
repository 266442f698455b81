package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/config"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the index in the data directory:
  - chunk and vector counts, backend and embedding model
  - whether the last build completed
  - storage sizes
  - generation backend availability
  - usage over the last 7 days (when telemetry is enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, root.cfg, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, jsonOutput bool) error {
	paths := store.Paths{Dir: cfg.Paths.DataDir}
	if !paths.Exists() {
		return fmt.Errorf("no index found in %s\nRun 'autowriter ingest --source DIR' to create one", paths.Dir)
	}

	info := collectStatus(ctx, cfg, paths)

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config, paths store.Paths) ui.StatusInfo {
	info := ui.StatusInfo{
		DataDir:    paths.Dir,
		IndexSize:  fileSize(paths.Index()) + fileSize(paths.Graph()),
		ChunksSize: fileSize(paths.Chunks()),
	}
	info.TotalSize = info.IndexSize + info.ChunksSize + fileSize(paths.Manifest())

	if m, err := store.ReadManifest(paths.Manifest()); err == nil {
		info.Vectors = m.Vectors
		info.Chunks = m.Chunks
		info.Backend = string(m.Backend)
		info.EmbedModel = m.EmbedModel
		info.Dimensions = m.Dimensions
		info.Complete = m.Complete
		info.LastBuilt = m.UpdatedAt
	} else if chunks, err := store.LoadChunks(paths.Chunks()); err == nil {
		// Builds without a manifest are complete by construction.
		info.Chunks = len(chunks)
		info.Vectors = len(chunks)
		info.Complete = true
	}

	info.Generator = cfg.Generation.Backend + "/" + cfg.Generation.Model
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if backend, err := newTextBackend(probeCtx, cfg); err != nil {
		info.GeneratorStatus = "error"
	} else {
		info.GeneratorStatus = generate.Status(probeCtx, backend)
	}

	if cfg.TelemetryEnabled() && fileSize(cfg.TelemetryPath()) > 0 {
		if ts, err := telemetry.Open(cfg.TelemetryPath()); err == nil {
			defer func() { _ = ts.Close() }()
			if sum, err := ts.Summary(ctx, time.Now().AddDate(0, 0, -7)); err == nil {
				info.Usage = &ui.UsageInfo{
					Retrievals:         sum.Retrievals,
					Fallbacks:          sum.Fallbacks,
					AvgRetrievalMs:     sum.AvgRetrievalMs,
					Generations:        sum.Generations,
					GenerationFailures: sum.GenerationFailures,
					FallbackListings:   sum.Listings[telemetry.SourceFallback],
				}
			}
		}
	}
	return info
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
