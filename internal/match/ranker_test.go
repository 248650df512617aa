package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/config"
	"github.com/scholarkit/citematch/internal/oracle"
	"github.com/scholarkit/citematch/internal/store"
)

func rankerConfig() config.SearchConfig {
	cfg := config.New().Search
	cfg.MinRelevance = 0.6
	cfg.TopKSemantic = 50
	cfg.WeightRecency = 50
	cfg.WeightCitation = 50
	cfg.MaxCitations = 3
	return cfg
}

func TestRank_SemanticGate_DropsBelowThreshold(t *testing.T) {
	// Given: four candidates with relevance 0.9, 0.8, 0.5, 0.3
	candidates := []*store.Paper{
		{ID: 1, Year: 2024, CitedBy: 10},
		{ID: 2, Year: 2024, CitedBy: 10},
		{ID: 3, Year: 2024, CitedBy: 10},
		{ID: 4, Year: 2024, CitedBy: 10},
	}
	judgments := []oracle.Judgment{
		{PaperID: 1, RelevanceScore: 0.9},
		{PaperID: 2, RelevanceScore: 0.8},
		{PaperID: 3, RelevanceScore: 0.5},
		{PaperID: 4, RelevanceScore: 0.3},
	}

	ranked := NewCompositeRanker(rankerConfig()).Rank(candidates, judgments, 2025)

	// Then: only the two candidates at or above 0.6 survive
	require.Len(t, ranked, 2)
	ids := []int64{ranked[0].Paper.ID, ranked[1].Paper.ID}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestRank_MissingJudgment_IsDropped(t *testing.T) {
	candidates := []*store.Paper{
		{ID: 1, Year: 2024},
		{ID: 2, Year: 2024},
	}
	judgments := []oracle.Judgment{
		{PaperID: 1, RelevanceScore: 0.9},
	}

	ranked := NewCompositeRanker(rankerConfig()).Rank(candidates, judgments, 2025)

	require.Len(t, ranked, 1)
	assert.Equal(t, int64(1), ranked[0].Paper.ID)
}

func TestRank_CompositeOrder_RecencyBeatsImpactAt70_30(t *testing.T) {
	// Given: weights 70/30, a recent low-impact paper, an old
	// high-impact paper, and an irrelevant paper
	cfg := rankerConfig()
	cfg.WeightRecency = 70
	cfg.WeightCitation = 30
	cfg.MaxCitations = 2

	candidates := []*store.Paper{
		{ID: 1, Year: 2024, CitedBy: 10},   // recent, low impact
		{ID: 2, Year: 2008, CitedBy: 5000}, // old, high impact
		{ID: 3, Year: 2024, CitedBy: 9999}, // fails the gate
	}
	judgments := []oracle.Judgment{
		{PaperID: 1, RelevanceScore: 0.95},
		{PaperID: 2, RelevanceScore: 0.85},
		{PaperID: 3, RelevanceScore: 0.2},
	}

	ranked := NewCompositeRanker(cfg).Rank(candidates, judgments, 2025)

	// Then: recency dominates, so paper 1 leads; paper 3 never appears
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].Paper.ID)
	assert.Equal(t, int64(2), ranked[1].Paper.ID)
	assert.Greater(t, ranked[0].CompositeScore, ranked[1].CompositeScore)
}

func TestRank_TopKSemantic_CapsStageOne(t *testing.T) {
	cfg := rankerConfig()
	cfg.TopKSemantic = 2
	cfg.MaxCitations = 10

	candidates := []*store.Paper{
		{ID: 1, Year: 2024}, {ID: 2, Year: 2024}, {ID: 3, Year: 2024},
	}
	judgments := []oracle.Judgment{
		{PaperID: 1, RelevanceScore: 0.7},
		{PaperID: 2, RelevanceScore: 0.9},
		{PaperID: 3, RelevanceScore: 0.8},
	}

	ranked := NewCompositeRanker(cfg).Rank(candidates, judgments, 2025)

	// Only the two most relevant survive the gate
	require.Len(t, ranked, 2)
	ids := []int64{ranked[0].Paper.ID, ranked[1].Paper.ID}
	assert.ElementsMatch(t, []int64{2, 3}, ids)
}

func TestRank_MaxCitations_TruncatesFinalList(t *testing.T) {
	cfg := rankerConfig()
	cfg.MaxCitations = 1

	candidates := []*store.Paper{
		{ID: 1, Year: 2024, CitedBy: 100},
		{ID: 2, Year: 2024, CitedBy: 100},
	}
	judgments := []oracle.Judgment{
		{PaperID: 1, RelevanceScore: 0.9},
		{PaperID: 2, RelevanceScore: 0.8},
	}

	ranked := NewCompositeRanker(cfg).Rank(candidates, judgments, 2025)

	// Equal composite scores; relevance breaks the tie
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(1), ranked[0].Paper.ID)
}

func TestRank_Deterministic(t *testing.T) {
	cfg := rankerConfig()
	candidates := []*store.Paper{
		{ID: 5, Year: 2020, CitedBy: 300},
		{ID: 1, Year: 2020, CitedBy: 300},
		{ID: 3, Year: 2023, CitedBy: 50},
	}
	judgments := []oracle.Judgment{
		{PaperID: 5, RelevanceScore: 0.8},
		{PaperID: 1, RelevanceScore: 0.8},
		{PaperID: 3, RelevanceScore: 0.8},
	}

	first := NewCompositeRanker(cfg).Rank(candidates, judgments, 2025)
	for i := 0; i < 10; i++ {
		again := NewCompositeRanker(cfg).Rank(candidates, judgments, 2025)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Paper.ID, again[j].Paper.ID)
		}
	}
	// Identical composite and relevance: paper id ascending
	require.Len(t, first, 3)
	assert.Equal(t, int64(1), first[1].Paper.ID)
	assert.Equal(t, int64(5), first[2].Paper.ID)
}

func TestRecencyScore_StepsDownWithAge(t *testing.T) {
	tests := []struct {
		year int
		want float64
	}{
		{2025, 1.0},
		{2023, 1.0},
		{2022, 0.8},
		{2020, 0.8},
		{2019, 0.6},
		{2015, 0.6},
		{2014, 0.4},
		{2010, 0.4},
		{2009, 0.2},
		{2005, 0.2},
		{2004, 0.1},
		{1980, 0.1},
		{0, 0.0},
		{-1, 0.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, RecencyScore(tt.year, 2025), 1e-9, "year %d", tt.year)
	}
}

func TestRecencyScore_MonotoneNonIncreasing(t *testing.T) {
	prev := RecencyScore(2025, 2025)
	for year := 2024; year >= 1950; year-- {
		cur := RecencyScore(year, 2025)
		assert.LessOrEqual(t, cur, prev, "year %d", year)
		prev = cur
	}
}

func TestCitationScore_BoundedAndNonDecreasing(t *testing.T) {
	counts := []int{0, 1, 10, 100, 10000, 10000000}
	prev := -1.0
	for _, c := range counts {
		s := CitationScore(c)
		assert.GreaterOrEqual(t, s, 0.0, "cited_by %d", c)
		assert.LessOrEqual(t, s, 1.0, "cited_by %d", c)
		assert.GreaterOrEqual(t, s, prev, "cited_by %d", c)
		prev = s
	}

	assert.InDelta(t, 0.0, CitationScore(0), 1e-9)
	assert.InDelta(t, 0.0, CitationScore(1), 1e-9)
	assert.InDelta(t, 0.5, CitationScore(100), 1e-9)
	assert.InDelta(t, 1.0, CitationScore(10000), 1e-9)
	assert.InDelta(t, 1.0, CitationScore(10000000), 1e-9)
}
