package store

import (
	"context"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// JournalCount is one row of the journal distribution.
type JournalCount struct {
	Journal string `json:"journal"`
	Count   int    `json:"count"`
}

// CitedPaper is one row of the most-cited list.
type CitedPaper struct {
	Title   string `json:"title"`
	CitedBy int    `json:"cited_by"`
}

// LibraryStats summarizes the corpus for the stats command.
type LibraryStats struct {
	TotalPapers int            `json:"total_papers"`
	YearMin     int            `json:"year_min"`
	YearMax     int            `json:"year_max"`
	TopJournals []JournalCount `json:"top_journals"`
	TopCited    []CitedPaper   `json:"top_cited"`
}

// Statistics computes corpus summary statistics.
func (s *PaperStore) Statistics(ctx context.Context) (*LibraryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}

	stats := &LibraryStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(MIN(CASE WHEN year > 0 THEN year END), 0),
		       COALESCE(MAX(year), 0)
		FROM papers`).Scan(&stats.TotalPapers, &stats.YearMin, &stats.YearMax)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot compute statistics", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT journal, COUNT(*) AS n FROM papers
		WHERE journal != ''
		GROUP BY journal ORDER BY n DESC, journal ASC LIMIT 10`)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot compute journal distribution", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var jc JournalCount
		if err := rows.Scan(&jc.Journal, &jc.Count); err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot scan journal row", err)
		}
		stats.TopJournals = append(stats.TopJournals, jc)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "journal distribution failed", err)
	}

	cited, err := s.db.QueryContext(ctx, `
		SELECT title, cited_by FROM papers
		ORDER BY cited_by DESC, id ASC LIMIT 5`)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot compute top cited", err)
	}
	defer func() { _ = cited.Close() }()
	for cited.Next() {
		var cp CitedPaper
		if err := cited.Scan(&cp.Title, &cp.CitedBy); err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot scan cited row", err)
		}
		stats.TopCited = append(stats.TopCited, cp)
	}
	if err := cited.Err(); err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "top cited failed", err)
	}

	return stats, nil
}
