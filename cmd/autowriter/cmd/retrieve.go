package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/mcp"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
)

type retrieveOptions struct {
	k       int
	filters []string
	json    bool
}

func newRetrieveCmd(root *rootOptions) *cobra.Command {
	var opts retrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Find brochure passages for a query",
		Long: `Embed the query and return the closest brochure chunks. Filters keep
only chunks whose metadata matches exactly; when fewer than k chunks match,
the best unfiltered chunks are returned instead.

Examples:
  autowriter retrieve "towing capacity"
  autowriter retrieve "safety features" --filter make=Toyota --filter year=2024 --k 3
  autowriter retrieve "V8 engine" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of chunks (default retrieval.k)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runRetrieve(ctx context.Context, cmd *cobra.Command, root *rootOptions, query string, opts retrieveOptions) error {
	filters, err := parseFilters(opts.filters)
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

	evidence, err := s.retriever.Retrieve(ctx, query, filters, k)
	if err != nil {
		return err
	}
	if opts.json {
		if evidence == nil {
			evidence = []retrieve.Evidence{}
		}
		return printJSON(cmd.OutOrStdout(), evidence)
	}
	return renderMarkdown(cmd.OutOrStdout(), mcp.FormatEvidence(query, evidence))
}
