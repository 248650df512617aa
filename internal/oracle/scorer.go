package oracle

import (
	"context"
	"log/slog"

	"github.com/scholarkit/citematch/internal/store"
)

// DefaultBatchSize bounds candidates per oracle call, trading request
// payload size against round trips.
const DefaultBatchSize = 5

// Scorer batches candidates through a Provider and collects judgments.
type Scorer struct {
	provider  Provider
	batchSize int
	logger    *slog.Logger
}

// NewScorer creates a scorer. batchSize <= 0 uses the default.
func NewScorer(provider Provider, batchSize int, logger *slog.Logger) *Scorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{provider: provider, batchSize: batchSize, logger: logger}
}

// ScoreBatch scores one batch of candidates against the sentence.
// Judgments are best-effort: any failure (network, malformed JSON)
// yields an empty list for the batch, logged but not raised.
func (s *Scorer) ScoreBatch(ctx context.Context, sentence, needType string, candidates []*store.Paper, rctx *ResearchContext) []Judgment {
	if len(candidates) == 0 {
		return nil
	}

	messages := BuildScoringMessages(sentence, needType, candidates, rctx)
	response, err := s.provider.Call(ctx, messages)
	if err != nil {
		s.logger.Warn("oracle_call_failed",
			slog.Int("candidates", len(candidates)),
			slog.String("error", err.Error()))
		return nil
	}

	judgments, err := ParseJudgments(response, candidates)
	if err != nil {
		s.logger.Warn("oracle_response_unparseable",
			slog.Int("candidates", len(candidates)),
			slog.String("error", err.Error()))
		return nil
	}
	return judgments
}

// ScoreAll runs candidates through independent fixed-size batches and
// concatenates the judgments. A failed batch contributes nothing; the
// rest proceed.
func (s *Scorer) ScoreAll(ctx context.Context, sentence, needType string, candidates []*store.Paper, rctx *ResearchContext) []Judgment {
	var all []Judgment
	for start := 0; start < len(candidates); start += s.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+s.batchSize, len(candidates))
		all = append(all, s.ScoreBatch(ctx, sentence, needType, candidates[start:end], rctx)...)
	}
	return all
}
