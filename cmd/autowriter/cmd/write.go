package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/mcp"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

type listingOptions struct {
	highlights string
	fields     []string
	k          int
	json       bool
}

func newWriteCmd(root *rootOptions) *cobra.Command {
	var opts listingOptions

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a validated listing from seller highlights",
		Long: `Run the full pipeline: detect make, model, year and other fields in the
highlights, retrieve matching brochure passages, generate the listing and
validate it. When retrieval or generation fails, or the generated copy is
rejected, a rule-based listing built from the highlights alone is returned.

Fields given with --field override detected values.

Examples:
  autowriter write --highlights "2022 Toyota Land Cruiser GXR, 45,000 km, automatic"
  autowriter write --highlights "one owner, panoramic roof" --field make=Nissan --field model=Patrol --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWrite(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.highlights, "highlights", "", "Seller highlights")
	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "Known field key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("highlights")

	return cmd
}

func runWrite(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts listingOptions) error {
	fields, err := parseFields(opts.fields)
	if err != nil {
		return err
	}

	s, err := buildStack(ctx, root.cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.writer.Write(ctx, opts.highlights, fields)
	if err != nil {
		return err
	}
	if opts.json {
		return printJSON(cmd.OutOrStdout(), res)
	}
	return renderMarkdown(cmd.OutOrStdout(), mcp.FormatListing(&res.Output, string(res.Source), res.Reason))
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var opts listingOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Retrieve evidence and print the raw generated listing",
		Long: `Retrieve brochure passages for the highlights and ask the generation
backend for a listing. Unlike write, the output is neither validated nor
replaced by the rule-based fallback, and backend errors are reported.

Examples:
  autowriter generate --highlights "2023 Patrol LE Platinum, 12,000 km"
  autowriter generate --highlights "diesel, 7 seats" --field make=Toyota --k 4 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.highlights, "highlights", "", "Seller highlights")
	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "Known field key=value (repeatable)")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of evidence chunks (default retrieval.k)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("highlights")

	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts listingOptions) error {
	highlights := strings.TrimSpace(opts.highlights)
	if highlights == "" {
		return awerrors.ValidationError("highlights must not be empty", nil)
	}
	fields, err := parseFields(opts.fields)
	if err != nil {
		return err
	}
	k := opts.k
	if k <= 0 {
		k = root.cfg.Retrieval.K
	}

	s, err := buildStack(ctx, root.cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	if s.generator == nil {
		return awerrors.GenerationUnavailable("no generation backend is configured", nil).
			WithSuggestion("Check generation.backend in autowriter.yaml")
	}

	entities := s.writer.Entities(highlights, fields)
	evidence, err := s.retriever.Retrieve(ctx, highlights, autowriter.Filters(entities), k)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := s.generator.Generate(ctx, generate.Request{
		Highlights: highlights,
		Fields:     fields,
		Evidence:   evidence,
		Tone:       generate.DefaultTone,
		Languages:  generate.DefaultLanguages,
	})
	s.recorder.GenerationCompleted(ctx, s.generator.Event(start, err, telemetry.SourceDirect))
	if err != nil {
		return err
	}

	if opts.json {
		return printJSON(cmd.OutOrStdout(), out)
	}
	return renderMarkdown(cmd.OutOrStdout(), mcp.FormatListing(out, string(telemetry.SourceDirect), ""))
}
