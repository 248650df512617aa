package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scholarkit/citematch/internal/config"
	cerr "github.com/scholarkit/citematch/internal/errors"
	"github.com/scholarkit/citematch/internal/store"
	"github.com/scholarkit/citematch/internal/vector"
)

// citationScoreCap bounds the citation source's base score so raw
// citation counts cannot outrank textual relevance.
const (
	citationScoreCap     = 0.5
	citationScoreDivisor = 500.0
	defaultCitedByMin    = 50
)

// VectorSource is the nearest-neighbor retrieval channel.
type VectorSource interface {
	Search(ctx context.Context, query string, topK int) ([]vector.Hit, error)
	Available() bool
}

// PaperSource resolves candidate IDs to papers and serves the
// citation-graph slice.
type PaperSource interface {
	GetPapers(ctx context.Context, ids []int64) ([]*store.Paper, error)
	Search(ctx context.Context, f store.SearchFilter) ([]*store.Paper, error)
}

// MultiSourceFuser merges vector, keyword, and citation-graph
// candidates into one deduplicated, weighted set. A paper reached from
// several sources keeps the maximum scaled score across them; max, not
// sum, so multi-signal agreement is rewarded only implicitly.
type MultiSourceFuser struct {
	vectors  VectorSource
	keywords store.KeywordIndex
	papers   PaperSource
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewMultiSourceFuser wires the three sources. vectors may be nil or
// unavailable; fusion then proceeds keyword+citation only.
func NewMultiSourceFuser(vectors VectorSource, keywords store.KeywordIndex, papers PaperSource, cfg config.SearchConfig, logger *slog.Logger) *MultiSourceFuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSourceFuser{
		vectors:  vectors,
		keywords: keywords,
		papers:   papers,
		cfg:      cfg,
		logger:   logger,
	}
}

// sourceHit is a scored paper from one channel, pre-resolution.
type sourceHit struct {
	paperID int64
	paper   *store.Paper
	score   float64
	source  Source
	rank    int
}

// Retrieve runs every query variant through each source, fuses the
// hits, filters by year range after fusion (discovery cost is amortized
// across variants, so a paper may be found and then dropped), and
// truncates to topK by descending fused score.
func (f *MultiSourceFuser) Retrieve(ctx context.Context, queries []string, topK int, yearMin, yearMax int) ([]*Candidate, error) {
	if len(queries) == 0 || topK <= 0 {
		return []*Candidate{}, nil
	}
	primary := queries[0]

	var mu sync.Mutex
	var hits []sourceHit

	g, gctx := errgroup.WithContext(ctx)

	// Vector channel, all query variants. Unavailability degrades to
	// keyword+citation fusion with a warning, never an error.
	g.Go(func() error {
		if f.vectors == nil || !f.vectors.Available() {
			f.logger.Warn("vector_source_unavailable", slog.String("mode", "keyword_citation_only"))
			return nil
		}
		for _, q := range queries {
			results, err := f.vectors.Search(gctx, q, topK)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// The embedder dying mid-run degrades the same as a
				// missing index; keyword and citation hits still count.
				switch cerr.CodeOf(err) {
				case cerr.ErrCodeIndexUnavailable, cerr.ErrCodeEmbeddingFailed, cerr.ErrCodeEmbedderDown:
					f.logger.Warn("vector_search_degraded", slog.String("error", err.Error()))
					return nil
				}
				return err
			}
			mu.Lock()
			for rank, hit := range results {
				hits = append(hits, sourceHit{
					paperID: hit.PaperID,
					score:   hit.Similarity * f.cfg.VectorWeight,
					source:  SourceVector,
					rank:    rank + 1,
				})
			}
			mu.Unlock()
		}
		return nil
	})

	// Keyword channel, all query variants. BM25 scores are unbounded,
	// so each list is normalized by its best score before weighting.
	g.Go(func() error {
		if f.keywords == nil {
			return nil
		}
		for _, q := range queries {
			results, err := f.keywords.Search(gctx, q, topK)
			if err != nil {
				f.logger.Warn("keyword_search_degraded", slog.String("error", err.Error()))
				return nil
			}
			var maxScore float64
			for _, r := range results {
				if r.Score > maxScore {
					maxScore = r.Score
				}
			}
			mu.Lock()
			for rank, r := range results {
				score := r.Score
				if maxScore > 0 {
					score /= maxScore
				}
				hits = append(hits, sourceHit{
					paperID: r.PaperID,
					score:   score * f.cfg.KeywordWeight,
					source:  SourceKeyword,
					rank:    rank + 1,
				})
			}
			mu.Unlock()
		}
		return nil
	})

	// Citation channel: high-impact papers relevant to the primary
	// query only, ordered by citation count.
	g.Go(func() error {
		citedByMin := f.cfg.MinCitedBy
		if citedByMin <= 0 {
			citedByMin = defaultCitedByMin
		}
		papers, err := f.papers.Search(gctx, store.SearchFilter{
			Query:      primary,
			CitedByMin: citedByMin,
			OrderBy:    "cited_by",
			Limit:      topK,
		})
		if err != nil {
			f.logger.Warn("citation_search_degraded", slog.String("error", err.Error()))
			return nil
		}
		mu.Lock()
		for rank, p := range papers {
			base := float64(p.CitedBy) / citationScoreDivisor
			if base > citationScoreCap {
				base = citationScoreCap
			}
			hits = append(hits, sourceHit{
				paperID: p.ID,
				paper:   p,
				score:   base * f.cfg.CitationWeight,
				source:  SourceCitation,
				rank:    rank + 1,
			})
		}
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return f.fuse(ctx, hits, topK, yearMin, yearMax)
}

// fuse deduplicates hits by paper id with max-score-wins, resolves
// papers, applies the year filter, and truncates.
func (f *MultiSourceFuser) fuse(ctx context.Context, hits []sourceHit, topK, yearMin, yearMax int) ([]*Candidate, error) {
	best := make(map[int64]sourceHit, len(hits))
	for _, h := range hits {
		if existing, ok := best[h.paperID]; !ok || h.score > existing.score {
			// Keep a previously resolved paper when the better-scoring
			// hit carries only an id.
			if h.paper == nil && existing.paper != nil {
				h.paper = existing.paper
			}
			best[h.paperID] = h
		}
	}
	if len(best) == 0 {
		return []*Candidate{}, nil
	}

	var unresolved []int64
	for id, h := range best {
		if h.paper == nil {
			unresolved = append(unresolved, id)
		}
	}
	if len(unresolved) > 0 {
		papers, err := f.papers.GetPapers(ctx, unresolved)
		if err != nil {
			return nil, err
		}
		for _, p := range papers {
			h := best[p.ID]
			h.paper = p
			best[p.ID] = h
		}
	}

	candidates := make([]*Candidate, 0, len(best))
	for _, h := range best {
		if h.paper == nil {
			continue
		}
		if yearMin > 0 && h.paper.Year < yearMin {
			continue
		}
		if yearMax > 0 && h.paper.Year > yearMax {
			continue
		}
		candidates = append(candidates, &Candidate{
			Paper:        h.paper,
			Score:        h.score,
			Source:       h.source,
			OriginalRank: h.rank,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Paper.ID < candidates[j].Paper.ID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
