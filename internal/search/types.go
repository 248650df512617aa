// Package search implements the hybrid retrieval pipeline: query
// expansion, multi-source candidate fusion, cross-encoder reranking,
// and MMR diversification.
package search

import "github.com/scholarkit/citematch/internal/store"

// Source identifies which retrieval channel produced a candidate.
type Source string

const (
	SourceVector   Source = "vector"
	SourceKeyword  Source = "keyword"
	SourceCitation Source = "citation"
)

// Candidate is one fused retrieval result. Created per query, owned by
// the Fuser; a paper reachable from several sources keeps the maximum
// scaled score, not the sum.
type Candidate struct {
	Paper        *store.Paper
	Score        float64
	Source       Source
	OriginalRank int
}

// RerankedCandidate is a candidate after cross-encoder scoring,
// annotated by the diversifier. Immutable after diversification.
type RerankedCandidate struct {
	Paper             *store.Paper
	FinalScore        float64
	CrossEncoderScore float64
	OriginalScore     float64
	Source            Source
	DiversityPenalty  float64
}
