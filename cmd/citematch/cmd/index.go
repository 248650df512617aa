package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholarkit/citematch/internal/output"
	"github.com/scholarkit/citematch/internal/store"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	wosFiles []string
	offline  bool
	rebuild  bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Import papers and build the search indexes",
		Long: `Import papers into the literature library and build the keyword and
vector indexes.

Papers are imported from Web of Science "Plain Text" export files
(savedrecs.txt). Re-importing the same file is safe; records are
deduplicated on their WoS accession number or DOI.

Examples:
  citematch index --wos savedrecs.txt
  citematch index --wos batch1.txt --wos batch2.txt
  citematch index --rebuild            # re-embed the existing library
  citematch index --wos recs.txt --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.wosFiles, "wos", nil, "Web of Science plain-text export to import (repeatable)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (skip Ollama)")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Rebuild indexes from the stored library without importing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	if len(opts.wosFiles) == 0 && !opts.rebuild {
		return fmt.Errorf("nothing to do: pass --wos <file> to import or --rebuild to re-index")
	}

	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	a, err := openApp(ctx, appOptions{staticEmbedder: opts.offline})
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range opts.wosFiles {
		papers, parseErrs := store.ParseWosExport(path)
		for _, perr := range parseErrs {
			out.Warningf("%s: %v", path, perr)
		}
		if len(papers) == 0 {
			out.Warningf("%s: no importable records", path)
			continue
		}
		if err := a.papers.SavePapers(ctx, papers); err != nil {
			return err
		}
		out.Successf("Imported %d papers from %s", len(papers), path)
		slog.Info("papers_imported",
			slog.String("file", path),
			slog.Int("count", len(papers)),
			slog.Int("skipped", len(parseErrs)))
	}

	library, err := a.papers.GetAllPapers(ctx)
	if err != nil {
		return err
	}
	if len(library) == 0 {
		out.Warning("Library is empty; nothing to index")
		return nil
	}

	out.Statusf("🔤", "Building keyword index (%s)...", a.cfg.Search.KeywordBackend)
	if err := a.keywords.Index(ctx, library); err != nil {
		return err
	}

	out.Statusf("🧮", "Embedding %d papers with %s...", len(library), a.embedder.ModelName())
	if err := a.retriever.BuildIndex(ctx, library); err != nil {
		return err
	}

	out.Successf("Indexed %d papers in %s", len(library), time.Since(start).Round(time.Millisecond))
	return nil
}
