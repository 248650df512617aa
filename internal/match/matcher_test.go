package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/draft"
	"github.com/scholarkit/citematch/internal/oracle"
	"github.com/scholarkit/citematch/internal/store"
)

// fakeLibrary serves a fixed paper set for fallback retrieval.
type fakeLibrary struct {
	papers []*store.Paper
}

func (f *fakeLibrary) SearchByKeywords(_ context.Context, _ []string, limit int) ([]*store.Paper, error) {
	out := f.papers
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLibrary) Search(_ context.Context, filter store.SearchFilter) ([]*store.Paper, error) {
	out := f.papers
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// scriptedProvider returns a fixed oracle response for every call.
type scriptedProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (p *scriptedProvider) Call(_ context.Context, _ []oracle.Message) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func acceptFirstTwo() string {
	return `{"evaluations": [
		{"paper_id": 1, "relevance_score": 0.92, "confidence": "high", "reason": "direct match"},
		{"paper_id": 2, "relevance_score": 0.75, "confidence": "medium", "reason": "related"}
	]}`
}

func testPapers(n int) []*store.Paper {
	year := time.Now().Year()
	papers := make([]*store.Paper, n)
	for i := range papers {
		papers[i] = &store.Paper{
			ID:      int64(i + 1),
			Title:   fmt.Sprintf("Paper %d on nitrogen cycling", i+1),
			Authors: fmt.Sprintf("Author%d, A.", i+1),
			Year:    year - i,
			CitedBy: 100 * (i + 1),
		}
	}
	return papers
}

func newTestMatcher(provider oracle.Provider, papers []*store.Paper) *Matcher {
	cfg := rankerConfig()
	var scorer *oracle.Scorer
	if provider != nil {
		scorer = oracle.NewScorer(provider, 5, nil)
	}
	return NewMatcher(nil, &fakeLibrary{papers: papers}, scorer, cfg, nil)
}

func matchSentence(text string) draft.Sentence {
	return draft.NewSentence(text, 0, 0)
}

func TestMatchSentence_RanksOracleSurvivors(t *testing.T) {
	provider := &scriptedProvider{response: acceptFirstTwo()}
	m := newTestMatcher(provider, testPapers(4))

	got, err := m.MatchSentence(context.Background(),
		matchSentence("Nitrogen fertilization increases nitrous oxide emissions from cropland soils."), 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []int64{got[0].Paper.ID, got[1].Paper.ID}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.RelevanceScore, 0.6)
		assert.NotEmpty(t, c.Reason)
	}
}

func TestMatchSentence_OracleFailure_YieldsNoCitations(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("upstream 503")}
	m := newTestMatcher(provider, testPapers(3))

	got, err := m.MatchSentence(context.Background(),
		matchSentence("Cover crops reduce nitrate leaching in maize rotation systems."), 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchSentence_NoScorer_YieldsNoCitations(t *testing.T) {
	m := newTestMatcher(nil, testPapers(3))

	got, err := m.MatchSentence(context.Background(),
		matchSentence("Cover crops reduce nitrate leaching in maize rotation systems."), 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchSentence_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestMatcher(&scriptedProvider{response: acceptFirstTwo()}, testPapers(3))

	_, err := m.MatchSentence(ctx, matchSentence("Anything with enough words to pass."), 10)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchMatch_SlotsMatchInputOrder(t *testing.T) {
	provider := &scriptedProvider{response: acceptFirstTwo()}
	m := newTestMatcher(provider, testPapers(4))
	m.SetConcurrency(3)

	sentences := []draft.Sentence{
		draft.NewSentence("Nitrogen rates alter soil microbial communities in wheat.", 0, 0),
		draft.NewSentence("Crop residue retention improves soil organic carbon stocks.", 1, 0),
		draft.NewSentence("Drip irrigation raises water use efficiency in arid systems.", 2, 1),
	}

	result, err := m.BatchMatch(context.Background(), sentences, 10, nil)

	require.NoError(t, err)
	require.Len(t, result.Sentences, 3)
	for i, sm := range result.Sentences {
		assert.Equal(t, i, sm.Sentence.Index)
		assert.NotEmpty(t, sm.Citations)
	}
	assert.Zero(t, result.ZeroCoverage)
}

func TestBatchMatch_ProgressStrictlyIncreasing(t *testing.T) {
	provider := &scriptedProvider{response: acceptFirstTwo()}
	m := newTestMatcher(provider, testPapers(4))
	m.SetConcurrency(4)

	sentences := make([]draft.Sentence, 12)
	for i := range sentences {
		sentences[i] = draft.NewSentence(
			fmt.Sprintf("Sentence number %d about crop nitrogen uptake dynamics.", i), i, 0)
	}

	var mu sync.Mutex
	var observed []int
	_, err := m.BatchMatch(context.Background(), sentences, 10, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, completed)
		assert.Equal(t, len(sentences), total)
	})

	require.NoError(t, err)
	require.Len(t, observed, len(sentences))
	for i, c := range observed {
		assert.Equal(t, i+1, c, "progress must be strictly increasing")
	}
}

func TestBatchMatch_CountsZeroCoverage(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("oracle down")}
	m := newTestMatcher(provider, testPapers(2))

	sentences := []draft.Sentence{
		draft.NewSentence("Tillage intensity changes earthworm abundance in loam soils.", 0, 0),
		draft.NewSentence("Biochar amendments raise soil pH in acidic field trials.", 1, 0),
	}

	result, err := m.BatchMatch(context.Background(), sentences, 10, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.ZeroCoverage)
}

func TestTraditionalCandidates_DedupesAndCaps(t *testing.T) {
	papers := testPapers(maxCandidatesPerSentence + 10)
	m := newTestMatcher(&scriptedProvider{response: acceptFirstTwo()}, papers)

	got := m.traditionalCandidates(context.Background(),
		matchSentence("Nitrogen cycling responds to long term fertilization regimes."), 0)

	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), maxCandidatesPerSentence)
	seen := map[int64]bool{}
	for _, p := range got {
		assert.False(t, seen[p.ID], "paper %d duplicated", p.ID)
		seen[p.ID] = true
	}
}

func TestFilterByYear(t *testing.T) {
	papers := []*store.Paper{
		{ID: 1, Year: 2010},
		{ID: 2, Year: 2018},
		{ID: 3, Year: 2024},
		{ID: 4, Year: 0},
	}

	got := filterByYear(papers, 2015, 2020)

	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	unbounded := filterByYear(papers, 0, 0)
	assert.Len(t, unbounded, 4)
}
