package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scholarkit/citematch/internal/config"
	"github.com/scholarkit/citematch/internal/draft"
	"github.com/scholarkit/citematch/internal/oracle"
	"github.com/scholarkit/citematch/internal/search"
	"github.com/scholarkit/citematch/internal/store"
)

// DefaultBatchConcurrency bounds parallel sentence pipelines. The
// oracle rate limit, not CPU, is the practical ceiling.
const DefaultBatchConcurrency = 4

// maxCandidatesPerSentence caps how many candidates go to the oracle.
const maxCandidatesPerSentence = 20

// SentenceMatches pairs a sentence with its recommendations.
type SentenceMatches struct {
	Sentence  draft.Sentence
	Citations []*CompositeMatch
}

// BatchResult is the outcome of a batch run, including zero-coverage
// accounting for reporting.
type BatchResult struct {
	Sentences []SentenceMatches
	// ZeroCoverage counts sentences that ended with no citations,
	// typically from oracle failures or empty retrieval.
	ZeroCoverage int
}

// ProgressFunc receives (completed, total). Calls are strictly
// increasing in completed, even under concurrency.
type ProgressFunc func(completed, total int)

// KeywordSearcher is the store-side fallback retrieval contract.
type KeywordSearcher interface {
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*store.Paper, error)
	Search(ctx context.Context, f store.SearchFilter) ([]*store.Paper, error)
}

// Matcher runs the per-sentence pipeline: retrieve candidates, score
// them through the oracle, rank with the composite policy.
type Matcher struct {
	engine      *search.Engine
	fallback    KeywordSearcher
	scorer      *oracle.Scorer
	ranker      *CompositeRanker
	cfg         config.SearchConfig
	rctx        *oracle.ResearchContext
	concurrency int
	logger      *slog.Logger
}

// NewMatcher wires the matching pipeline. engine may be nil; the
// keyword fallback then supplies all candidates.
func NewMatcher(engine *search.Engine, fallback KeywordSearcher, scorer *oracle.Scorer, cfg config.SearchConfig, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		engine:      engine,
		fallback:    fallback,
		scorer:      scorer,
		ranker:      NewCompositeRanker(cfg),
		cfg:         cfg,
		concurrency: DefaultBatchConcurrency,
		logger:      logger,
	}
}

// SetResearchContext attaches the draft-level context to all
// subsequent oracle calls.
func (m *Matcher) SetResearchContext(rctx *oracle.ResearchContext) {
	m.rctx = rctx
}

// SetConcurrency overrides the batch parallelism. Values below 1 force
// sequential processing.
func (m *Matcher) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	m.concurrency = n
}

// MatchSentence runs the full pipeline for one sentence. Failures
// degrade to fewer or zero citations; the error return is reserved for
// context cancellation.
func (m *Matcher) MatchSentence(ctx context.Context, sentence draft.Sentence, yearRange int) ([]*CompositeMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := m.candidates(ctx, sentence, yearRange)
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > maxCandidatesPerSentence {
		candidates = candidates[:maxCandidatesPerSentence]
	}

	if m.scorer == nil {
		m.logger.Warn("oracle_not_configured",
			slog.Int("sentence", sentence.Index))
		return nil, nil
	}

	needType := string(draft.ClassifyNeed(sentence.Text))
	judgments := m.scorer.ScoreAll(ctx, sentence.Text, needType, candidates, m.rctx)
	if len(judgments) == 0 {
		m.logger.Warn("sentence_zero_oracle_coverage",
			slog.Int("sentence", sentence.Index),
			slog.Int("candidates", len(candidates)))
		return nil, nil
	}

	return m.ranker.Rank(candidates, judgments, time.Now().Year()), nil
}

// candidates retrieves per-sentence candidates, preferring the hybrid
// engine and falling back to keyword-only retrieval.
func (m *Matcher) candidates(ctx context.Context, sentence draft.Sentence, yearRange int) []*store.Paper {
	if m.engine != nil {
		reranked, err := m.engine.SearchForSentence(ctx, sentence.Text, maxCandidatesPerSentence, yearRange)
		if err == nil && len(reranked) > 0 {
			papers := make([]*store.Paper, len(reranked))
			for i, rc := range reranked {
				papers[i] = rc.Paper
			}
			return papers
		}
		if err != nil {
			m.logger.Warn("hybrid_retrieval_failed_using_fallback",
				slog.Int("sentence", sentence.Index),
				slog.String("error", err.Error()))
		}
	}
	return m.traditionalCandidates(ctx, sentence, yearRange)
}

// traditionalCandidates is the keyword-only fallback: a recent-half
// (last 5 years) plus older-half split, deduplicated, recency first.
func (m *Matcher) traditionalCandidates(ctx context.Context, sentence draft.Sentence, yearRange int) []*store.Paper {
	if m.fallback == nil {
		return nil
	}

	keywords := sentence.Keywords
	if len(keywords) == 0 {
		keywords = draft.ExtractKeywords(sentence.Text, 5)
	}

	currentYear := time.Now().Year()
	yearMin := 0
	if yearRange > 0 {
		yearMin = currentYear - yearRange
	}

	if len(keywords) == 0 {
		papers, err := m.fallback.Search(ctx, store.SearchFilter{
			YearMin: yearMin,
			OrderBy: "cited_by",
			Limit:   maxCandidatesPerSentence,
		})
		if err != nil {
			return nil
		}
		return papers
	}

	recentMin := max(yearMin, currentYear-5)
	recent, err := m.fallback.SearchByKeywords(ctx, keywords, maxCandidatesPerSentence/2)
	if err != nil {
		recent = nil
	}
	recent = filterByYear(recent, recentMin, 0)

	older, err := m.fallback.SearchByKeywords(ctx, keywords, maxCandidatesPerSentence-len(recent))
	if err != nil {
		older = nil
	}
	older = filterByYear(older, yearMin, recentMin-1)

	seen := make(map[int64]bool, len(recent)+len(older))
	var unique []*store.Paper
	for _, p := range append(recent, older...) {
		if !seen[p.ID] {
			seen[p.ID] = true
			unique = append(unique, p)
		}
	}
	if len(unique) > maxCandidatesPerSentence {
		unique = unique[:maxCandidatesPerSentence]
	}
	return unique
}

func filterByYear(papers []*store.Paper, yearMin, yearMax int) []*store.Paper {
	var out []*store.Paper
	for _, p := range papers {
		if yearMin > 0 && p.Year < yearMin {
			continue
		}
		if yearMax > 0 && p.Year > yearMax {
			continue
		}
		out = append(out, p)
	}
	return out
}

// BatchMatch matches all sentences with bounded parallelism. Each
// sentence keeps its input slot in the result. The progress callback
// observes a strictly increasing completed count; a mutex-guarded
// counter, not goroutine order, drives it.
func (m *Matcher) BatchMatch(ctx context.Context, sentences []draft.Sentence, yearRange int, progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{
		Sentences: make([]SentenceMatches, len(sentences)),
	}
	total := len(sentences)

	var mu sync.Mutex
	completed := 0
	zero := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, sentence := range sentences {
		g.Go(func() error {
			citations, err := m.MatchSentence(gctx, sentence, yearRange)
			if err != nil {
				return err
			}

			mu.Lock()
			result.Sentences[i] = SentenceMatches{Sentence: sentence, Citations: citations}
			if len(citations) == 0 {
				zero++
			}
			completed++
			// Invoked under the lock so observed counts never go
			// backwards across goroutines.
			if progress != nil {
				progress(completed, total)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.ZeroCoverage = zero
	return result, nil
}
