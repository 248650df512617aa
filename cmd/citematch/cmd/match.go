package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholarkit/citematch/internal/draft"
	"github.com/scholarkit/citematch/internal/match"
	"github.com/scholarkit/citematch/internal/output"
)

// matchOptions holds CLI flags for match.
type matchOptions struct {
	yearRange    int
	concurrency  int
	format       string // "text", "json"
	style        string // "author-year", "numbered"
	bibStyle     string // "apa", "nature", "vancouver", "ieee"
	annotatedOut string
	bibOut       string
	skipContext  bool
}

func newMatchCmd() *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match <draft-file>",
		Short: "Recommend citations for a manuscript draft",
		Long: `Analyze a plain-text or Markdown draft and recommend citations for
each sentence that needs one.

Sentences with existing citations are skipped. For the rest, hybrid
retrieval proposes candidates, the relevance oracle scores them against
the sentence, and a recency/impact composite picks the final few.

Requires the oracle API key (set the variable named by
oracle.api_key_env, default CITEMATCH_API_KEY).

Examples:
  citematch match draft.md
  citematch match draft.md --annotated out.md --bibliography refs.md
  citematch match draft.md --style numbered --bib-style nature
  citematch match draft.md --format json > matches.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.yearRange, "year-range", 0, "Restrict candidates to the last N years (0 = config default)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", match.DefaultBatchConcurrency, "Sentences matched in parallel")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.style, "style", string(match.StyleAuthorYear), "In-text citation style: author-year, numbered")
	cmd.Flags().StringVar(&opts.bibStyle, "bib-style", string(match.BibAPA), "Bibliography style: apa, nature, vancouver, ieee")
	cmd.Flags().StringVar(&opts.annotatedOut, "annotated", "", "Write the draft with citations inserted to this file")
	cmd.Flags().StringVar(&opts.bibOut, "bibliography", "", "Write the reference list to this file")
	cmd.Flags().BoolVar(&opts.skipContext, "skip-context", false, "Skip the research-context analysis pass")

	return cmd
}

func runMatch(ctx context.Context, cmd *cobra.Command, draftPath string, opts matchOptions) error {
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	analysis, err := draft.AnalyzeFile(draftPath)
	if err != nil {
		return err
	}
	targets := analysis.NeedingCitation()
	out.Statusf("📄", "%d paragraphs, %d sentences, %d need citations",
		len(analysis.Paragraphs), len(analysis.Sentences), len(targets))
	if len(targets) == 0 {
		out.Success("Every sentence already carries a citation")
		return nil
	}

	a, err := openApp(ctx, appOptions{loadVectors: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.provider == nil {
		out.Warningf("Oracle API key not set (%s); relevance scoring is disabled", a.cfg.Oracle.APIKeyEnv)
	} else if !opts.skipContext {
		analyzer := draft.NewContextAnalyzer(a.provider, slog.Default())
		if rctx := analyzer.Analyze(ctx, analysis.FullText); rctx != nil {
			a.matcher.SetResearchContext(rctx)
			out.Statusf("🔬", "Research context: %s", rctx.Field)
		}
	}
	a.matcher.SetConcurrency(opts.concurrency)

	yearRange := opts.yearRange
	if yearRange == 0 {
		yearRange = a.cfg.Search.YearRange
	}

	result, err := a.matcher.BatchMatch(ctx, targets, yearRange, func(completed, total int) {
		out.Progress(completed, total, "Matching sentences")
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out.Newline()
	for _, sm := range result.Sentences {
		deref := make([]match.CompositeMatch, len(sm.Citations))
		for i, c := range sm.Citations {
			deref[i] = *c
		}
		out.RenderMatches(sm.Sentence.Text, deref)
	}

	matched := len(result.Sentences) - result.ZeroCoverage
	out.Successf("Matched %d/%d sentences in %s",
		matched, len(result.Sentences), time.Since(start).Round(time.Second))
	if result.ZeroCoverage > 0 {
		out.Warningf("%d sentences received no recommendations", result.ZeroCoverage)
	}

	if opts.annotatedOut != "" {
		if err := writeAnnotatedDraft(opts.annotatedOut, analysis, result, match.CitationStyle(opts.style)); err != nil {
			return err
		}
		out.Successf("Annotated draft written to %s", opts.annotatedOut)
	}
	if opts.bibOut != "" {
		bib := match.GenerateBibliography(result.Sentences, match.BibliographyStyle(opts.bibStyle))
		if err := os.WriteFile(opts.bibOut, []byte(bib), 0o644); err != nil {
			return fmt.Errorf("write bibliography: %w", err)
		}
		out.Successf("Bibliography written to %s", opts.bibOut)
	}

	return nil
}

// writeAnnotatedDraft reassembles the draft with recommended citations
// inserted into their sentences. Paragraph boundaries are preserved;
// within a paragraph, sentences are joined with single spaces.
func writeAnnotatedDraft(path string, analysis *draft.Analysis, result *match.BatchResult, style match.CitationStyle) error {
	annotated := make(map[int]string, len(result.Sentences))
	for _, sm := range result.Sentences {
		if len(sm.Citations) > 0 {
			annotated[sm.Sentence.Index] = match.InsertCitations(sm.Sentence, sm.Citations, style)
		}
	}

	var paragraphs []string
	var current []string
	lastPara := -1
	for _, s := range analysis.Sentences {
		if s.ParagraphIndex != lastPara && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
		lastPara = s.ParagraphIndex
		if text, ok := annotated[s.Index]; ok {
			current = append(current, text)
		} else {
			current = append(current, s.Text)
		}
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}

	return os.WriteFile(path, []byte(strings.Join(paragraphs, "\n\n")+"\n"), 0o644)
}
