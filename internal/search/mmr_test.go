package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/store"
)

func reranked(id int64, score float64, title, abstract string) *RerankedCandidate {
	return &RerankedCandidate{
		Paper:      &store.Paper{ID: id, Title: title, Abstract: abstract},
		FinalScore: score,
	}
}

func TestDiversify_NoOpWhenInputFits(t *testing.T) {
	d := NewMMRDiversifier()
	input := []*RerankedCandidate{
		reranked(1, 0.9, "First paper", ""),
		reranked(2, 0.5, "Second paper", ""),
		reranked(3, 0.7, "Third paper", ""),
		reranked(4, 0.2, "Fourth paper", ""),
		reranked(5, 0.6, "Fifth paper", ""),
	}

	got := d.Diversify(input, 10, 0.6)

	// Order and content untouched, including the unsorted scores
	require.Len(t, got, 5)
	for i := range input {
		assert.Same(t, input[i], got[i])
	}
}

func TestDiversify_FirstPickIsHighestScore(t *testing.T) {
	d := NewMMRDiversifier()
	input := []*RerankedCandidate{
		reranked(1, 0.4, "Soil nitrogen mineralization rates", ""),
		reranked(2, 0.95, "Maize yield response to fertilizer", ""),
		reranked(3, 0.6, "Irrigation scheduling methods", ""),
	}

	got := d.Diversify(input, 2, 0.6)

	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Paper.ID)
	assert.Zero(t, got[0].DiversityPenalty)
}

func TestDiversify_PrefersDistinctOverNearDuplicate(t *testing.T) {
	// Given: three near-identical papers and one distinct paper with a
	// lower score, and a lambda that values diversity
	d := NewMMRDiversifier()
	dup := "nitrous oxide emissions from fertilized maize fields in the north china plain"
	input := []*RerankedCandidate{
		reranked(1, 0.90, dup, dup),
		reranked(2, 0.89, dup+" study", dup),
		reranked(3, 0.88, dup+" analysis", dup),
		reranked(4, 0.50, "earthworm burrowing alters macropore flow in clay subsoils", "completely different topic with its own vocabulary"),
	}

	got := d.Diversify(input, 2, 0.3)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Paper.ID)
	assert.Equal(t, int64(4), got[1].Paper.ID, "the distinct paper should displace the duplicates")
	assert.Less(t, got[1].DiversityPenalty, 0.2)
}

func TestDiversify_LambdaOne_IsRelevanceOrder(t *testing.T) {
	d := NewMMRDiversifier()
	same := "identical overlapping words everywhere in the title"
	input := []*RerankedCandidate{
		reranked(1, 0.7, same, ""),
		reranked(2, 0.9, same, ""),
		reranked(3, 0.8, same, ""),
		reranked(4, 0.1, same, ""),
	}

	got := d.Diversify(input, 3, 1.0)

	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].Paper.ID)
	assert.Equal(t, int64(3), got[1].Paper.ID)
	assert.Equal(t, int64(1), got[2].Paper.ID)
}

func TestDiversify_RecordsPenaltyOfChosenItem(t *testing.T) {
	d := NewMMRDiversifier()
	input := []*RerankedCandidate{
		reranked(1, 0.9, "shared words about nitrogen cycling", ""),
		reranked(2, 0.8, "shared words about nitrogen cycling", ""),
		reranked(3, 0.2, "unrelated topic", ""),
	}

	got := d.Diversify(input, 2, 0.9)

	require.Len(t, got, 2)
	if got[1].Paper.ID == 2 {
		assert.Greater(t, got[1].DiversityPenalty, 0.9)
	}
}

func TestJaccard(t *testing.T) {
	a := overlapWords("soil carbon storage", "")
	b := overlapWords("soil carbon dynamics", "")
	empty := overlapWords("", "")

	// |{soil, carbon}| / |{soil, carbon, storage, dynamics}|
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.Zero(t, jaccard(a, empty))
}
