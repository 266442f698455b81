package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOutput, verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the data directory and backends are usable",
		Long: `Run preflight checks:
  - write access and free space in the data directory
  - the open-file limit
  - an embedding probe against the configured embedder
  - generation backend reachability (optional)
  - index completeness and embedding model match

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := root.cfg

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			targets := preflight.Targets{
				DataDir:       cfg.Paths.DataDir,
				GeneratorName: cfg.Generation.Backend + "/" + cfg.Generation.Model,
			}

			embedder, err := newEmbedder(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()
			targets.Embedder = embedder

			if backend, err := newTextBackend(ctx, cfg); err == nil {
				if a, ok := backend.(generate.Availability); ok {
					targets.Generator = a
				}
			}

			results := checker.RunAll(ctx, targets)
			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}
