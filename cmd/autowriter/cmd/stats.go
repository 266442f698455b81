package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/config"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show retrieval and generation telemetry",
		Long: `Display recorded usage:
  - retrievals, filter fallbacks and average latency
  - generations and failures by error code
  - listings by source (generated, fallback, direct)
  - retrieval latency distribution
  - recent queries whose filters matched too few chunks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, root.cfg, days, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include (0 for all)")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, cfg *config.Config, days int, jsonOutput bool) error {
	if !cfg.TelemetryEnabled() {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Telemetry is disabled (telemetry.enabled: false)")
		return err
	}

	ts, err := telemetry.Open(cfg.TelemetryPath())
	if err != nil {
		return fmt.Errorf("failed to open telemetry store: %w", err)
	}
	defer func() { _ = ts.Close() }()

	var since time.Time
	if days > 0 {
		since = time.Now().AddDate(0, 0, -days)
	}
	sum, err := ts.Summary(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to read telemetry: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sum)
	}
	printStats(cmd.OutOrStdout(), sum, days, ui.GetStyles(ui.DetectNoColor()))
	return nil
}

func printStats(w io.Writer, sum *telemetry.Summary, days int, styles ui.Styles) {
	period := "all time"
	if days > 0 {
		period = fmt.Sprintf("last %d days", days)
	}
	_, _ = fmt.Fprintf(w, "%s\n\n", styles.Header.Render("Telemetry ("+period+")"))

	label := lipgloss.NewStyle().Width(22)
	row := func(name, value string) {
		_, _ = fmt.Fprintf(w, "  %s%s\n", label.Render(name), value)
	}

	row("Retrievals", fmt.Sprint(sum.Retrievals))
	fallback := fmt.Sprintf("%d (%.1f%%)", sum.Fallbacks, sum.FallbackRate())
	if sum.FallbackRate() > 20 {
		fallback = styles.Warning.Render(fallback)
	}
	row("Filter fallbacks", fallback)
	row("Avg retrieval", fmt.Sprintf("%.1f ms", sum.AvgRetrievalMs))
	row("Generations", fmt.Sprint(sum.Generations))

	if len(sum.GenerationFailures) > 0 {
		_, _ = fmt.Fprintln(w, "\n  Generation failures:")
		for _, code := range sortedKeys(sum.GenerationFailures) {
			_, _ = fmt.Fprintf(w, "    %s %d\n", styles.Error.Render(label.Render(code)), sum.GenerationFailures[code])
		}
	}

	if len(sum.Listings) > 0 {
		_, _ = fmt.Fprintln(w, "\n  Listings by source:")
		for _, src := range []telemetry.Source{telemetry.SourceGenerated, telemetry.SourceFallback, telemetry.SourceDirect} {
			if n, ok := sum.Listings[src]; ok {
				_, _ = fmt.Fprintf(w, "    %s%d\n", label.Render(string(src)), n)
			}
		}
	}

	if len(sum.LatencyDistribution) > 0 {
		_, _ = fmt.Fprintln(w, "\n  Retrieval latency:")
		for _, b := range []telemetry.LatencyBucket{
			telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100,
			telemetry.BucketP500, telemetry.BucketP1000,
		} {
			if n, ok := sum.LatencyDistribution[b]; ok {
				_, _ = fmt.Fprintf(w, "    %s%d\n", label.Render(string(b)), n)
			}
		}
	}

	if len(sum.RecentFallbacks) > 0 {
		_, _ = fmt.Fprintln(w, "\n  Recent fallback queries:")
		for _, q := range sum.RecentFallbacks {
			_, _ = fmt.Fprintf(w, "    %s\n", styles.Dim.Render(q))
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
