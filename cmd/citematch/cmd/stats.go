package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scholarkit/citematch/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show literature library statistics",
		Long: `Show summary statistics for the literature library: paper count,
year coverage, journal distribution, most-cited papers, and index
status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(ctx, appOptions{staticEmbedder: true, loadVectors: true})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.papers.Statistics(ctx)
	if err != nil {
		return err
	}
	keywordCount, err := a.keywords.Count(ctx)
	if err != nil {
		keywordCount = 0
	}

	if jsonOutput {
		payload := struct {
			Library      any  `json:"library"`
			KeywordCount int  `json:"keyword_indexed"`
			VectorCount  int  `json:"vector_indexed"`
			VectorReady  bool `json:"vector_ready"`
		}{stats, keywordCount, a.retriever.Count(), a.retriever.Available()}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Library")
	out.Statusf("📚", "%d papers (%d-%d)", stats.TotalPapers, stats.YearMin, stats.YearMax)
	out.Statusf("🔤", "%d papers in keyword index (%s)", keywordCount, a.cfg.Search.KeywordBackend)
	if a.retriever.Available() {
		out.Statusf("🧮", "%d papers in vector index", a.retriever.Count())
	} else {
		out.Warning("Vector index not built; run 'citematch index'")
	}

	if len(stats.TopJournals) > 0 {
		out.Newline()
		out.Header("Top journals")
		for _, jc := range stats.TopJournals {
			out.Status("", fmt.Sprintf("%4d  %s", jc.Count, jc.Journal))
		}
	}
	if len(stats.TopCited) > 0 {
		out.Newline()
		out.Header("Most cited")
		for _, cp := range stats.TopCited {
			out.Status("", fmt.Sprintf("%5d  %s", cp.CitedBy, cp.Title))
		}
	}
	return nil
}
