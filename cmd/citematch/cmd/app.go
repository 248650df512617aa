package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scholarkit/citematch/internal/config"
	"github.com/scholarkit/citematch/internal/embed"
	"github.com/scholarkit/citematch/internal/logging"
	"github.com/scholarkit/citematch/internal/match"
	"github.com/scholarkit/citematch/internal/oracle"
	"github.com/scholarkit/citematch/internal/search"
	"github.com/scholarkit/citematch/internal/store"
	"github.com/scholarkit/citematch/internal/vector"
)

// Data file names inside the data directory.
const (
	paperDBName     = "papers.db"
	vectorIndexName = "vectors.hnsw"
)

// app bundles the wired pipeline for a CLI invocation.
type app struct {
	cfg       *config.Config
	papers    *store.PaperStore
	keywords  store.KeywordIndex
	embedder  embed.Embedder
	retriever *vector.Retriever
	engine    *search.Engine
	provider  oracle.Provider
	matcher   *match.Matcher

	cleanups []func()
}

// appOptions tweak how much of the pipeline a command needs.
type appOptions struct {
	// staticEmbedder forces the deterministic hash embedder, skipping
	// any Ollama probe. Used by index --offline.
	staticEmbedder bool
	// loadVectors loads the vector index from disk. Commands that only
	// write it (index) skip the load.
	loadVectors bool
}

// openApp loads config, sets up logging, and wires stores, embedder,
// retriever, search engine, oracle, and matcher.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	// File logging for CLI observability. Debug mode already installed
	// its own logger in the persistent pre-run.
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		if cfg.Logging.FilePath != "" {
			logCfg.FilePath = cfg.Logging.FilePath
		}
		logCfg.WriteToStderr = false
		if cleanup, err := logging.SetupDefault(logCfg); err == nil {
			a.cleanups = append(a.cleanups, cleanup)
		}
	}

	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	papers, err := store.NewPaperStore(filepath.Join(dataDir, paperDBName))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.papers = papers
	a.cleanups = append(a.cleanups, func() { _ = papers.Close() })

	keywords, err := store.NewKeywordIndex(
		store.KeywordIndexPath(dataDir, cfg.Search.KeywordBackend),
		cfg.Search.KeywordBackend)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.keywords = keywords
	a.cleanups = append(a.cleanups, func() { _ = keywords.Close() })

	embCfg := *cfg
	if opts.staticEmbedder {
		embCfg.Embeddings.Provider = "static"
	}
	embedder, err := embed.NewFromConfig(ctx, &embCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder
	a.cleanups = append(a.cleanups, func() { _ = embedder.Close() })

	a.retriever = vector.NewRetriever(embedder, filepath.Join(dataDir, vectorIndexName))
	if opts.loadVectors {
		if err := a.retriever.Load(); err != nil {
			// Degraded retrieval is allowed; fusion falls back to
			// keyword and citation sources.
			slog.Warn("vector_index_unavailable", slog.String("error", err.Error()))
		}
	}
	a.cleanups = append(a.cleanups, func() { _ = a.retriever.Close() })

	if key := cfg.APIKey(); key != "" {
		a.provider = oracle.NewChatProvider(oracle.ChatConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  key,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout,
		})
	}

	expander := search.NewQueryExpander(a.provider, slog.Default())
	fuser := search.NewMultiSourceFuser(a.retriever, keywords, papers, cfg.Search, slog.Default())
	var pairScorer search.PairScorer
	if cfg.Reranker.Endpoint != "" {
		pairScorer = search.NewHTTPReranker(search.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout,
		})
	}
	reranker := search.NewCrossEncoderReranker(pairScorer, slog.Default())
	a.engine = search.NewEngine(expander, fuser, reranker, cfg.Search, slog.Default())

	var scorer *oracle.Scorer
	if a.provider != nil {
		scorer = oracle.NewScorer(a.provider, cfg.Oracle.BatchSize, slog.Default())
	}
	a.matcher = match.NewMatcher(a.engine, papers, scorer, cfg.Search, slog.Default())

	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
