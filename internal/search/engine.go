package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/scholarkit/citematch/internal/config"
)

// DefaultMaxExpansions is how many query variants supplement the
// original query.
const DefaultMaxExpansions = 2

// Options tunes one engine search call.
type Options struct {
	TopK    int
	YearMin int
	YearMax int
	// MaxExpansions is the number of query variants to add. Zero means
	// DefaultMaxExpansions; negative disables expansion.
	MaxExpansions int
	// Lambda overrides the configured diversity trade-off when non-nil.
	// Zero is a valid override and means maximum dispersion.
	Lambda *float64
}

// Engine orchestrates the hybrid retrieval pipeline: expand the query,
// fuse multi-source candidates, rerank, diversify. Stages within one
// call are strictly sequential; the engine itself is safe for
// concurrent calls once the underlying index is built.
type Engine struct {
	expander    *QueryExpander
	fuser       *MultiSourceFuser
	reranker    *CrossEncoderReranker
	diversifier *MMRDiversifier
	cfg         config.SearchConfig
	logger      *slog.Logger
}

// NewEngine wires the pipeline stages.
func NewEngine(expander *QueryExpander, fuser *MultiSourceFuser, reranker *CrossEncoderReranker, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		expander:    expander,
		fuser:       fuser,
		reranker:    reranker,
		diversifier: NewMMRDiversifier(),
		cfg:         cfg,
		logger:      logger,
	}
}

// Search runs the full pipeline for one query. Degradations inside the
// stages (vector index down, reranker down) reduce quality, not
// availability; an error here means even keyword retrieval failed.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*RerankedCandidate, error) {
	start := time.Now()
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	switch {
	case opts.MaxExpansions == 0:
		opts.MaxExpansions = DefaultMaxExpansions
	case opts.MaxExpansions < 0:
		opts.MaxExpansions = 0
	}
	lambda := e.cfg.MMRLambda
	if opts.Lambda != nil {
		lambda = *opts.Lambda
	}

	queries := e.expander.Expand(ctx, query, opts.MaxExpansions)

	// Over-fetch before rerank and diversification so both stages have
	// real choices to make.
	fuseK := opts.TopK * 3
	candidates, err := e.fuser.Retrieve(ctx, queries, fuseK, opts.YearMin, opts.YearMax)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []*RerankedCandidate{}, nil
	}

	reranked := e.reranker.Rerank(ctx, query, candidates, opts.TopK*2)
	final := e.diversifier.Diversify(reranked, opts.TopK, lambda)

	e.logger.Debug("search_complete",
		slog.String("query", query),
		slog.Int("variants", len(queries)),
		slog.Int("fused", len(candidates)),
		slog.Int("final", len(final)),
		slog.Duration("elapsed", time.Since(start)))
	return final, nil
}

// SearchForSentence retrieves candidates for a draft sentence,
// restricting to the last yearRange years when positive.
func (e *Engine) SearchForSentence(ctx context.Context, sentence string, topK, yearRange int) ([]*RerankedCandidate, error) {
	opts := Options{
		TopK:          topK,
		MaxExpansions: DefaultMaxExpansions,
	}
	if yearRange > 0 {
		opts.YearMin = time.Now().Year() - yearRange
	}
	return e.Search(ctx, sentence, opts)
}
