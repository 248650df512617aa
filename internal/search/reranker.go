package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Blend weights for cross-encoder vs. fused retrieval score.
const (
	crossEncoderWeight = 0.7
	originalWeight     = 0.3

	// rerankAbstractLimit bounds the document text sent per candidate.
	rerankAbstractLimit = 400

	DefaultRerankerTimeout = 30 * time.Second
)

// PairScorer scores (query, document) pairs jointly. Implementations
// may be remote services; Available is probed lazily on first use.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error)
	Available(ctx context.Context) bool
}

// CrossEncoderReranker rescoring: each candidate's title+abstract
// prefix is scored jointly with the query, then blended with the fused
// retrieval score. When the scorer is unavailable the reranker degrades
// to pass-through, preserving fused ordering.
type CrossEncoderReranker struct {
	scorer PairScorer
	logger *slog.Logger

	// Availability is probed once, on the first Rerank call, so an
	// unused reranker costs nothing.
	probeOnce sync.Once
	usable    bool
}

// NewCrossEncoderReranker creates a reranker. scorer may be nil, which
// selects permanent pass-through.
func NewCrossEncoderReranker(scorer PairScorer, logger *slog.Logger) *CrossEncoderReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossEncoderReranker{scorer: scorer, logger: logger}
}

// Rerank scores candidates against the query and returns them sorted by
// blended final score, truncated to topK. Never fails: scorer errors
// degrade to pass-through for the call.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []*Candidate, topK int) []*RerankedCandidate {
	if len(candidates) == 0 {
		return []*RerankedCandidate{}
	}

	r.probeOnce.Do(func() {
		r.usable = r.scorer != nil && r.scorer.Available(ctx)
		if !r.usable {
			r.logger.Debug("reranker_unavailable", slog.String("mode", "pass_through"))
		}
	})

	var scores []float64
	if r.usable {
		documents := make([]string, len(candidates))
		for i, c := range candidates {
			documents[i] = pairDocument(c)
		}
		var err error
		scores, err = r.scorer.ScorePairs(ctx, query, documents)
		if err != nil || len(scores) != len(candidates) {
			if err != nil {
				r.logger.Debug("rerank_failed_pass_through", slog.String("error", err.Error()))
			}
			scores = nil
		}
	}

	reranked := make([]*RerankedCandidate, len(candidates))
	for i, c := range candidates {
		rc := &RerankedCandidate{
			Paper:         c.Paper,
			OriginalScore: c.Score,
			Source:        c.Source,
		}
		if scores != nil {
			rc.CrossEncoderScore = scores[i]
			rc.FinalScore = scores[i]*crossEncoderWeight + c.Score*originalWeight
		} else {
			rc.CrossEncoderScore = c.Score
			rc.FinalScore = c.Score
		}
		reranked[i] = rc
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].FinalScore != reranked[j].FinalScore {
			return reranked[i].FinalScore > reranked[j].FinalScore
		}
		return reranked[i].Paper.ID < reranked[j].Paper.ID
	})
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked
}

// pairDocument builds the "title. abstract_prefix" text scored against
// the query.
func pairDocument(c *Candidate) string {
	abstract := c.Paper.Abstract
	if len(abstract) > rerankAbstractLimit {
		abstract = abstract[:rerankAbstractLimit]
	}
	return c.Paper.Title + ". " + abstract
}

// HTTPRerankerConfig configures the remote cross-encoder service.
type HTTPRerankerConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// HTTPReranker implements PairScorer over a /rerank HTTP service.
type HTTPReranker struct {
	client *http.Client
	config HTTPRerankerConfig
}

var _ PairScorer = (*HTTPReranker)(nil)

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// NewHTTPReranker creates the HTTP pair scorer. No health check here;
// the reranker probes availability lazily.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}
	return &HTTPReranker{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
	}
}

// ScorePairs scores each document against the query, returning scores
// indexed like documents.
func (h *HTTPReranker) ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: h.config.Model})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cannot decode rerank response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, res := range parsed.Results {
		if res.Index >= 0 && res.Index < len(scores) {
			scores[res.Index] = res.Score
		}
	}
	return scores, nil
}

// Available probes the service's /health endpoint.
func (h *HTTPReranker) Available(ctx context.Context) bool {
	if h.config.Endpoint == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, h.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
