package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scholarkit/citematch/internal/output"
	"github.com/scholarkit/citematch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	yearMin   int
	yearMax   int
	format    string // "text", "json"
	noExpand  bool
	lambda    float64
	lambdaSet bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the literature library",
		Long: `Search the literature library using hybrid retrieval.

Vector similarity, keyword matching, and citation-graph signals are
fused into one candidate set, reranked by the cross-encoder when one is
configured, and diversified so near-duplicate papers do not crowd the
top of the list.

Examples:
  citematch search "nitrogen use efficiency in maize"
  citematch search "soil carbon sequestration" --limit 5 --year-min 2018
  citematch search "cover crops" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			opts.lambdaSet = cmd.Flags().Changed("lambda")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.yearMin, "year-min", 0, "Earliest publication year")
	cmd.Flags().IntVar(&opts.yearMax, "year-max", 0, "Latest publication year")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noExpand, "no-expand", false, "Skip query expansion")
	cmd.Flags().Float64Var(&opts.lambda, "lambda", 0, "Diversity trade-off override (0-1, unset = config default)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp(ctx, appOptions{loadVectors: true})
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	searchOpts := search.Options{
		TopK:    opts.limit,
		YearMin: opts.yearMin,
		YearMax: opts.yearMax,
	}
	if opts.lambdaSet {
		searchOpts.Lambda = &opts.lambda
	}
	if opts.noExpand {
		searchOpts.MaxExpansions = -1
	}

	results, err := a.engine.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := output.New(cmd.OutOrStdout())
	deref := make([]search.RerankedCandidate, len(results))
	for i, r := range results {
		deref[i] = *r
	}
	out.RenderSearchResults(deref)
	return nil
}
