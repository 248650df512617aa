// Package match produces final per-sentence citation recommendations:
// two-stage composite ranking, the per-sentence matching pipeline,
// concurrent batch matching, and citation formatting.
package match

import (
	"math"
	"sort"

	"github.com/scholarkit/citematch/internal/config"
	"github.com/scholarkit/citematch/internal/oracle"
	"github.com/scholarkit/citematch/internal/store"
)

// CompositeMatch is one final citation recommendation.
type CompositeMatch struct {
	Paper          *store.Paper
	RelevanceScore float64
	RecencyScore   float64
	CitationScore  float64
	CompositeScore float64
	Reason         string
}

// CompositeRanker applies the two-stage ranking policy: a semantic gate
// on oracle relevance, then a recency/impact weighted re-sort. The
// semantic score is excluded from stage 2 on purpose; it already gated
// admission.
type CompositeRanker struct {
	cfg config.SearchConfig
}

// NewCompositeRanker creates a ranker over an immutable config value.
func NewCompositeRanker(cfg config.SearchConfig) *CompositeRanker {
	return &CompositeRanker{cfg: cfg}
}

// Rank joins candidates with judgments by paper id, gates, re-sorts,
// and truncates to MaxCitations. Ordering is fully deterministic:
// composite desc, then relevance desc, then paper id asc.
func (r *CompositeRanker) Rank(candidates []*store.Paper, judgments []oracle.Judgment, currentYear int) []*CompositeMatch {
	byID := make(map[int64]oracle.Judgment, len(judgments))
	for _, j := range judgments {
		byID[j.PaperID] = j
	}

	// Stage 1: semantic gate. Candidates without a judgment or below
	// the relevance floor are dropped.
	survivors := make([]*CompositeMatch, 0, len(candidates))
	for _, p := range candidates {
		j, ok := byID[p.ID]
		if !ok || j.RelevanceScore < r.cfg.MinRelevance {
			continue
		}
		survivors = append(survivors, &CompositeMatch{
			Paper:          p,
			RelevanceScore: j.RelevanceScore,
			Reason:         j.Reason,
		})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].RelevanceScore != survivors[j].RelevanceScore {
			return survivors[i].RelevanceScore > survivors[j].RelevanceScore
		}
		return survivors[i].Paper.ID < survivors[j].Paper.ID
	})
	if len(survivors) > r.cfg.TopKSemantic {
		survivors = survivors[:r.cfg.TopKSemantic]
	}

	// Stage 2: recency/impact weighted re-sort. Weights are percents
	// divided by 100 verbatim, per the caller contract.
	wRecency := float64(r.cfg.WeightRecency) / 100
	wCitation := float64(r.cfg.WeightCitation) / 100
	for _, m := range survivors {
		m.RecencyScore = RecencyScore(m.Paper.Year, currentYear)
		m.CitationScore = CitationScore(m.Paper.CitedBy)
		m.CompositeScore = m.RecencyScore*wRecency + m.CitationScore*wCitation
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].CompositeScore != survivors[j].CompositeScore {
			return survivors[i].CompositeScore > survivors[j].CompositeScore
		}
		if survivors[i].RelevanceScore != survivors[j].RelevanceScore {
			return survivors[i].RelevanceScore > survivors[j].RelevanceScore
		}
		return survivors[i].Paper.ID < survivors[j].Paper.ID
	})
	if len(survivors) > r.cfg.MaxCitations {
		survivors = survivors[:r.cfg.MaxCitations]
	}
	return survivors
}

// RecencyScore is a step function of paper age. Classic papers keep a
// floor of 0.1; an unknown year scores 0.
func RecencyScore(year, currentYear int) float64 {
	if year <= 0 {
		return 0.0
	}
	switch age := currentYear - year; {
	case age <= 2:
		return 1.0
	case age <= 5:
		return 0.8
	case age <= 10:
		return 0.6
	case age <= 15:
		return 0.4
	case age <= 20:
		return 0.2
	default:
		return 0.1
	}
}

// CitationScore is log10-scaled citation impact in [0,1]. The divisor
// puts 100 citations near 0.5 and 10,000 at the cap, so a few
// mega-cited papers cannot dominate.
func CitationScore(citedBy int) float64 {
	if citedBy <= 0 {
		return 0.0
	}
	return math.Min(1.0, math.Log10(math.Max(float64(citedBy), 1))/4)
}
