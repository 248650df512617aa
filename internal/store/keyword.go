package store

import (
	"context"
	"sort"
)

// KeywordResult is one keyword-index hit.
type KeywordResult struct {
	PaperID int64
	Score   float64
}

// KeywordIndex serves BM25-style keyword retrieval over the corpus.
// Implementations: BleveIndex (default) and FTSIndex (SQLite FTS5).
type KeywordIndex interface {
	// Index adds or updates papers in the index.
	Index(ctx context.Context, papers []*Paper) error

	// Search returns up to limit hits for query, best first.
	// An empty query returns no hits.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes papers by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []int64) error

	// Count returns the number of indexed papers.
	Count(ctx context.Context) (int, error)

	// Close releases index resources. Idempotent.
	Close() error
}

// indexText is the searchable text of a paper: title, abstract, and
// the author-supplied keyword list.
func indexText(p *Paper) string {
	return p.Title + "\n" + p.Abstract + "\n" + p.Keywords
}

func sortPapersByRelevance(papers []*Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		if papers[i].Relevance != papers[j].Relevance {
			return papers[i].Relevance > papers[j].Relevance
		}
		return papers[i].ID < papers[j].ID
	})
}
