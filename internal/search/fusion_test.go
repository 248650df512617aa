package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/config"
	cerr "github.com/scholarkit/citematch/internal/errors"
	"github.com/scholarkit/citematch/internal/store"
	"github.com/scholarkit/citematch/internal/vector"
)

type stubVectors struct {
	hits      map[string][]vector.Hit
	available bool
}

func (s *stubVectors) Search(_ context.Context, query string, _ int) ([]vector.Hit, error) {
	return s.hits[query], nil
}

func (s *stubVectors) Available() bool { return s.available }

type stubKeywords struct {
	results map[string][]*store.KeywordResult
}

func (s *stubKeywords) Index(context.Context, []*store.Paper) error { return nil }
func (s *stubKeywords) Delete(context.Context, []int64) error       { return nil }
func (s *stubKeywords) Count(context.Context) (int, error)          { return 0, nil }
func (s *stubKeywords) Close() error                                { return nil }

func (s *stubKeywords) Search(_ context.Context, query string, _ int) ([]*store.KeywordResult, error) {
	return s.results[query], nil
}

type stubPapers struct {
	byID     map[int64]*store.Paper
	citation []*store.Paper
}

func (s *stubPapers) GetPapers(_ context.Context, ids []int64) ([]*store.Paper, error) {
	var out []*store.Paper
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPapers) Search(_ context.Context, f store.SearchFilter) ([]*store.Paper, error) {
	var out []*store.Paper
	for _, p := range s.citation {
		if f.CitedByMin > 0 && p.CitedBy < f.CitedByMin {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func fusionConfig() config.SearchConfig {
	cfg := config.New().Search
	cfg.VectorWeight = 0.4
	cfg.KeywordWeight = 0.3
	cfg.CitationWeight = 0.3
	cfg.MinCitedBy = 50
	return cfg
}

func libraryOf(papers ...*store.Paper) *stubPapers {
	byID := make(map[int64]*store.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID] = p
	}
	return &stubPapers{byID: byID}
}

func TestRetrieve_MaxScoreWins_NeverSums(t *testing.T) {
	// Given: paper 1 found by vector (0.9) and keyword (0.3 of max 1.0)
	p1 := &store.Paper{ID: 1, Title: "Alpha", Year: 2022}
	p2 := &store.Paper{ID: 2, Title: "Beta", Year: 2022}

	vectors := &stubVectors{available: true, hits: map[string][]vector.Hit{
		"q": {{PaperID: 1, Similarity: 0.9}},
	}}
	keywords := &stubKeywords{results: map[string][]*store.KeywordResult{
		"q": {{PaperID: 2, Score: 1.0}, {PaperID: 1, Score: 0.3}},
	}}

	fuser := NewMultiSourceFuser(vectors, keywords, libraryOf(p1, p2), fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[int64]*Candidate{}
	for _, c := range got {
		byID[c.Paper.ID] = c
	}
	// Vector 0.9*0.4 = 0.36 beats keyword 0.3*0.3 = 0.09; never 0.45
	assert.InDelta(t, 0.36, byID[1].Score, 1e-9)
	assert.Equal(t, SourceVector, byID[1].Source)
	// Paper 2 is the keyword list max: 1.0*0.3
	assert.InDelta(t, 0.30, byID[2].Score, 1e-9)
}

func TestRetrieve_KeywordScoresNormalizedByListMax(t *testing.T) {
	p1 := &store.Paper{ID: 1, Title: "Alpha", Year: 2022}
	p2 := &store.Paper{ID: 2, Title: "Beta", Year: 2022}

	// Raw BM25 scores far above 1; the best hit anchors the scale.
	keywords := &stubKeywords{results: map[string][]*store.KeywordResult{
		"q": {{PaperID: 1, Score: 12.0}, {PaperID: 2, Score: 6.0}},
	}}

	fuser := NewMultiSourceFuser(&stubVectors{}, keywords, libraryOf(p1, p2), fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.30, got[0].Score, 1e-9)
	assert.InDelta(t, 0.15, got[1].Score, 1e-9)
}

func TestRetrieve_CitationSource_CappedBase(t *testing.T) {
	heavy := &store.Paper{ID: 1, Title: "Classic", Year: 2000, CitedBy: 5000}
	medium := &store.Paper{ID: 2, Title: "Solid", Year: 2010, CitedBy: 250}

	papers := libraryOf(heavy, medium)
	papers.citation = []*store.Paper{heavy, medium}

	fuser := NewMultiSourceFuser(&stubVectors{}, &stubKeywords{}, papers, fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	// 5000/500 capped at 0.5, then * 0.3
	assert.InDelta(t, 0.15, got[0].Score, 1e-9)
	assert.Equal(t, SourceCitation, got[0].Source)
	// 250/500 = 0.5 exactly at the cap
	assert.InDelta(t, 0.15, got[1].Score, 1e-9)
}

func TestRetrieve_CitationSource_RespectsMinCitedBy(t *testing.T) {
	little := &store.Paper{ID: 1, Title: "Niche", Year: 2020, CitedBy: 10}
	papers := libraryOf(little)
	papers.citation = []*store.Paper{little}

	fuser := NewMultiSourceFuser(&stubVectors{}, &stubKeywords{}, papers, fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_YearFilterAppliedAfterFusion(t *testing.T) {
	old := &store.Paper{ID: 1, Title: "Old", Year: 2005}
	recent := &store.Paper{ID: 2, Title: "Recent", Year: 2021}

	vectors := &stubVectors{available: true, hits: map[string][]vector.Hit{
		"q": {{PaperID: 1, Similarity: 0.95}, {PaperID: 2, Similarity: 0.6}},
	}}

	fuser := NewMultiSourceFuser(vectors, &stubKeywords{}, libraryOf(old, recent), fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 2015, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Paper.ID)
}

func TestRetrieve_VectorUnavailable_DegradesToKeyword(t *testing.T) {
	p := &store.Paper{ID: 1, Title: "Alpha", Year: 2022}
	keywords := &stubKeywords{results: map[string][]*store.KeywordResult{
		"q": {{PaperID: 1, Score: 2.5}},
	}}

	fuser := NewMultiSourceFuser(&stubVectors{available: false}, keywords, libraryOf(p), fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, SourceKeyword, got[0].Source)
}

// failingVectors reports available but errors on every search, the
// shape of an embedder dying after the index loaded.
type failingVectors struct {
	code string
}

func (f *failingVectors) Search(context.Context, string, int) ([]vector.Hit, error) {
	return nil, cerr.New(f.code, "embed backend down", nil)
}

func (f *failingVectors) Available() bool { return true }

func TestRetrieve_EmbeddingFailureMidRun_KeepsKeywordAndCitation(t *testing.T) {
	kw := &store.Paper{ID: 1, Title: "Alpha", Year: 2022}
	classic := &store.Paper{ID: 2, Title: "Classic", Year: 2005, CitedBy: 400}
	keywords := &stubKeywords{results: map[string][]*store.KeywordResult{
		"q": {{PaperID: 1, Score: 2.5}},
	}}
	papers := libraryOf(kw, classic)
	papers.citation = []*store.Paper{classic}

	for _, code := range []string{cerr.ErrCodeEmbeddingFailed, cerr.ErrCodeEmbedderDown} {
		fuser := NewMultiSourceFuser(&failingVectors{code: code}, keywords, papers, fusionConfig(), nil)
		got, err := fuser.Retrieve(context.Background(), []string{"q"}, 10, 0, 0)

		require.NoError(t, err, code)
		require.Len(t, got, 2, code)
		sources := map[Source]bool{}
		for _, c := range got {
			sources[c.Source] = true
		}
		assert.True(t, sources[SourceKeyword], code)
		assert.True(t, sources[SourceCitation], code)
	}
}

func TestRetrieve_VariantsShareOneCandidateSet(t *testing.T) {
	p := &store.Paper{ID: 1, Title: "Alpha", Year: 2022}
	vectors := &stubVectors{available: true, hits: map[string][]vector.Hit{
		"q":  {{PaperID: 1, Similarity: 0.5}},
		"q2": {{PaperID: 1, Similarity: 0.9}},
	}}

	fuser := NewMultiSourceFuser(vectors, &stubKeywords{}, libraryOf(p), fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q", "q2"}, 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 1, "the same paper from two variants fuses to one candidate")
	assert.InDelta(t, 0.36, got[0].Score, 1e-9, "best variant wins")
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	var hits []vector.Hit
	lib := &stubPapers{byID: map[int64]*store.Paper{}}
	for i := int64(1); i <= 8; i++ {
		p := &store.Paper{ID: i, Title: "Paper", Year: 2022}
		lib.byID[i] = p
		hits = append(hits, vector.Hit{PaperID: i, Similarity: 1.0 - float64(i)*0.05})
	}
	vectors := &stubVectors{available: true, hits: map[string][]vector.Hit{"q": hits}}

	fuser := NewMultiSourceFuser(vectors, &stubKeywords{}, lib, fusionConfig(), nil)
	got, err := fuser.Retrieve(context.Background(), []string{"q"}, 3, 0, 0)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Score >= got[1].Score && got[1].Score >= got[2].Score)
}

func TestRetrieve_EmptyQueries(t *testing.T) {
	fuser := NewMultiSourceFuser(&stubVectors{}, &stubKeywords{}, &stubPapers{}, fusionConfig(), nil)

	got, err := fuser.Retrieve(context.Background(), nil, 10, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, got)
}
