package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// SearchFilter narrows structured corpus queries.
type SearchFilter struct {
	// Query matches against title, abstract, and keywords (LIKE, any term).
	Query string
	// YearMin/YearMax bound publication year when positive.
	YearMin int
	YearMax int
	// CitedByMin drops papers below this citation count when positive.
	CitedByMin int
	// OrderBy is "cited_by", "year", or "" (insertion order).
	OrderBy string
	// Limit caps the result count when positive.
	Limit int
}

// PaperStore persists the paper corpus in SQLite.
// A single writer connection with WAL mode lets readers in other
// processes proceed during indexing.
type PaperStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewPaperStore opens (or creates) the corpus database at path.
// An empty path opens an in-memory store for testing.
func NewPaperStore(path string) (*PaperStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot create data directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot open paper database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot set pragma", err)
		}
	}

	s := &PaperStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot initialize schema", err)
	}
	return s, nil
}

func (s *PaperStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS papers (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		wos_id        TEXT UNIQUE,
		title         TEXT NOT NULL,
		abstract      TEXT NOT NULL DEFAULT '',
		authors       TEXT NOT NULL DEFAULT '',
		journal       TEXT NOT NULL DEFAULT '',
		year          INTEGER NOT NULL DEFAULT 0,
		volume        TEXT NOT NULL DEFAULT '',
		issue         TEXT NOT NULL DEFAULT '',
		pages         TEXT NOT NULL DEFAULT '',
		doi           TEXT NOT NULL DEFAULT '',
		cited_by      INTEGER NOT NULL DEFAULT 0,
		research_area TEXT NOT NULL DEFAULT '',
		keywords      TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year);
	CREATE INDEX IF NOT EXISTS idx_papers_cited_by ON papers(cited_by);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

const paperColumns = `id, wos_id, title, abstract, authors, journal, year,
	volume, issue, pages, doi, cited_by, research_area, keywords`

func scanPaper(row interface{ Scan(...any) error }) (*Paper, error) {
	var p Paper
	var wosID sql.NullString
	err := row.Scan(&p.ID, &wosID, &p.Title, &p.Abstract, &p.Authors, &p.Journal,
		&p.Year, &p.Volume, &p.Issue, &p.Pages, &p.DOI, &p.CitedBy,
		&p.ResearchArea, &p.Keywords)
	if err != nil {
		return nil, err
	}
	p.WosID = wosID.String
	return &p, nil
}

// SavePapers inserts or updates papers in a single transaction.
// Papers with a WosID upsert on that key; others insert fresh rows.
// IDs are written back into the given slice.
func (s *PaperStore) SavePapers(ctx context.Context, papers []*Paper) error {
	if len(papers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO papers (wos_id, title, abstract, authors, journal, year,
			volume, issue, pages, doi, cited_by, research_area, keywords)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wos_id) DO UPDATE SET
			title = excluded.title,
			abstract = excluded.abstract,
			authors = excluded.authors,
			journal = excluded.journal,
			year = excluded.year,
			volume = excluded.volume,
			issue = excluded.issue,
			pages = excluded.pages,
			doi = excluded.doi,
			cited_by = excluded.cited_by,
			research_area = excluded.research_area,
			keywords = excluded.keywords
		RETURNING id`)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot prepare upsert", err)
	}
	defer upsert.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO papers (wos_id, title, abstract, authors, journal, year,
			volume, issue, pages, doi, cited_by, research_area, keywords)
		VALUES (NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot prepare insert", err)
	}
	defer insert.Close()

	for _, p := range papers {
		var row *sql.Row
		if p.WosID != "" {
			row = upsert.QueryRowContext(ctx, p.WosID, p.Title, p.Abstract,
				p.Authors, p.Journal, p.Year, p.Volume, p.Issue, p.Pages,
				p.DOI, p.CitedBy, p.ResearchArea, p.Keywords)
		} else {
			row = insert.QueryRowContext(ctx, p.Title, p.Abstract,
				p.Authors, p.Journal, p.Year, p.Volume, p.Issue, p.Pages,
				p.DOI, p.CitedBy, p.ResearchArea, p.Keywords)
		}
		if err := row.Scan(&p.ID); err != nil {
			return cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot save paper %q", p.Title), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot commit papers", err)
	}
	return nil
}

// GetPaper fetches one paper by ID.
func (s *PaperStore) GetPaper(ctx context.Context, id int64) (*Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM papers WHERE id = ?", paperColumns), id)
	p, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return nil, cerr.New(cerr.ErrCodePaperNotFound,
			fmt.Sprintf("paper %d not found", id), nil)
	}
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot read paper", err)
	}
	return p, nil
}

// GetPapers fetches papers by ID, skipping missing IDs.
// Results preserve the order of ids.
func (s *PaperStore) GetPapers(ctx context.Context, ids []int64) ([]*Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM papers WHERE id IN (%s)", paperColumns, placeholders),
		args...)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot read papers", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Paper, len(ids))
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot scan paper", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot iterate papers", err)
	}

	out := make([]*Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search runs a structured corpus query with the given filter.
func (s *PaperStore) Search(ctx context.Context, f SearchFilter) ([]*Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}

	var where []string
	var args []any

	if f.Query != "" {
		var terms []string
		for _, t := range strings.Fields(strings.ToLower(f.Query)) {
			terms = append(terms,
				"(lower(title) LIKE ? OR lower(abstract) LIKE ? OR lower(keywords) LIKE ?)")
			like := "%" + t + "%"
			args = append(args, like, like, like)
		}
		if len(terms) > 0 {
			where = append(where, "("+strings.Join(terms, " OR ")+")")
		}
	}
	if f.YearMin > 0 {
		where = append(where, "year >= ?")
		args = append(args, f.YearMin)
	}
	if f.YearMax > 0 {
		where = append(where, "year <= ?")
		args = append(args, f.YearMax)
	}
	if f.CitedByMin > 0 {
		where = append(where, "cited_by >= ?")
		args = append(args, f.CitedByMin)
	}

	query := fmt.Sprintf("SELECT %s FROM papers", paperColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.OrderBy {
	case "cited_by":
		query += " ORDER BY cited_by DESC, id ASC"
	case "year":
		query += " ORDER BY year DESC, id ASC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "search query failed", err)
	}
	defer rows.Close()

	var out []*Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot scan paper", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchByKeywords scores papers by keyword occurrence counts.
// Title hits count 3x, keyword-field hits 2x, abstract hits 1x; the raw
// count is normalized by 3*len(keywords) into Relevance. This is the
// oracle-free fallback path used when no judgments are available.
func (s *PaperStore) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]*Paper, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	papers, err := s.Search(ctx, SearchFilter{Query: strings.Join(keywords, " ")})
	if err != nil {
		return nil, err
	}

	denom := float64(3 * len(keywords))
	for _, p := range papers {
		title := strings.ToLower(p.Title)
		abstract := strings.ToLower(p.Abstract)
		kw := strings.ToLower(p.Keywords)
		var hits float64
		for _, k := range keywords {
			k = strings.ToLower(k)
			if strings.Contains(title, k) {
				hits += 3
			}
			if strings.Contains(kw, k) {
				hits += 2
			}
			if strings.Contains(abstract, k) {
				hits += 1
			}
		}
		p.Relevance = hits / denom
		if p.Relevance > 1 {
			p.Relevance = 1
		}
	}

	sortPapersByRelevance(papers)
	if limit > 0 && len(papers) > limit {
		papers = papers[:limit]
	}
	return papers, nil
}

// GetAllPapers streams the full corpus in ID order.
func (s *PaperStore) GetAllPapers(ctx context.Context) ([]*Paper, error) {
	return s.Search(ctx, SearchFilter{})
}

// Count returns the number of papers in the corpus.
func (s *PaperStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, cerr.New(cerr.ErrCodeStoreFailed, "store is closed", nil)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers").Scan(&n)
	if err != nil {
		return 0, cerr.New(cerr.ErrCodeStoreFailed, "cannot count papers", err)
	}
	return n, nil
}

// Close releases the database connection. Idempotent.
func (s *PaperStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
