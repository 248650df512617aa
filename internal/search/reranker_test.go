package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/store"
)

type stubPairScorer struct {
	scores    []float64
	err       error
	available bool
	calls     int
}

func (s *stubPairScorer) ScorePairs(_ context.Context, _ string, _ []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func (s *stubPairScorer) Available(context.Context) bool { return s.available }

func candidate(id int64, score float64) *Candidate {
	return &Candidate{
		Paper:  &store.Paper{ID: id, Title: fmt.Sprintf("Paper %d", id)},
		Score:  score,
		Source: SourceVector,
	}
}

func TestRerank_BlendsCrossEncoderWithOriginal(t *testing.T) {
	scorer := &stubPairScorer{available: true, scores: []float64{0.2, 0.9}}
	r := NewCrossEncoderReranker(scorer, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{
		candidate(1, 0.8),
		candidate(2, 0.1),
	}, 10)

	require.Len(t, got, 2)
	// Candidate 2: 0.9*0.7 + 0.1*0.3 = 0.66 beats candidate 1:
	// 0.2*0.7 + 0.8*0.3 = 0.38
	assert.Equal(t, int64(2), got[0].Paper.ID)
	assert.InDelta(t, 0.66, got[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.9, got[0].CrossEncoderScore, 1e-9)
	assert.InDelta(t, 0.1, got[0].OriginalScore, 1e-9)
	assert.InDelta(t, 0.38, got[1].FinalScore, 1e-9)
}

func TestRerank_Unavailable_PassThroughPreservesOrder(t *testing.T) {
	scorer := &stubPairScorer{available: false}
	r := NewCrossEncoderReranker(scorer, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{
		candidate(1, 0.8),
		candidate(2, 0.3),
	}, 10)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Paper.ID)
	assert.InDelta(t, 0.8, got[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.8, got[0].CrossEncoderScore, 1e-9, "pass-through mirrors the fused score")
	assert.Zero(t, scorer.calls, "unavailable scorer must not be called")
}

func TestRerank_NilScorer_PassThrough(t *testing.T) {
	r := NewCrossEncoderReranker(nil, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{candidate(1, 0.5)}, 10)

	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].FinalScore, 1e-9)
}

func TestRerank_ScorerError_DegradesForTheCall(t *testing.T) {
	scorer := &stubPairScorer{available: true, err: fmt.Errorf("service 500")}
	r := NewCrossEncoderReranker(scorer, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{
		candidate(1, 0.8),
		candidate(2, 0.3),
	}, 10)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Paper.ID)
	assert.InDelta(t, 0.8, got[0].FinalScore, 1e-9)
}

func TestRerank_MismatchedScoreCount_DegradesForTheCall(t *testing.T) {
	scorer := &stubPairScorer{available: true, scores: []float64{0.9}}
	r := NewCrossEncoderReranker(scorer, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{
		candidate(1, 0.8),
		candidate(2, 0.3),
	}, 10)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.8, got[0].FinalScore, 1e-9)
}

func TestRerank_TruncatesToTopK(t *testing.T) {
	r := NewCrossEncoderReranker(nil, nil)

	got := r.Rerank(context.Background(), "q", []*Candidate{
		candidate(1, 0.9), candidate(2, 0.8), candidate(3, 0.7),
	}, 2)

	assert.Len(t, got, 2)
}

func TestRerank_Empty(t *testing.T) {
	r := NewCrossEncoderReranker(nil, nil)

	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 10))
}

func TestPairDocument_TruncatesAbstract(t *testing.T) {
	long := make([]byte, rerankAbstractLimit+100)
	for i := range long {
		long[i] = 'a'
	}
	c := &Candidate{Paper: &store.Paper{Title: "Title", Abstract: string(long)}}

	doc := pairDocument(c)

	assert.Len(t, doc, len("Title. ")+rerankAbstractLimit)
}

func TestHTTPReranker_ScorePairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Documents, 2)

		// Results arrive out of order; scores map back by index
		_ = json.NewEncoder(w).Encode(rerankResponse{Results: []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		}{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.4}}})
	}))
	defer srv.Close()

	h := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	scores, err := h.ScorePairs(context.Background(), "q", []string{"doc a", "doc b"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.9}, scores)
}

func TestHTTPReranker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	_, err := h.ScorePairs(context.Background(), "q", []string{"doc"})

	assert.ErrorContains(t, err, "status 503")
}

func TestHTTPReranker_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	assert.True(t, h.Available(context.Background()))

	down := NewHTTPReranker(HTTPRerankerConfig{Endpoint: "http://127.0.0.1:1"})
	assert.False(t, down.Available(context.Background()))

	unset := NewHTTPReranker(HTTPRerankerConfig{})
	assert.False(t, unset.Available(context.Background()))
}
