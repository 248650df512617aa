package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// FTSIndex implements KeywordIndex on SQLite FTS5. It keeps its own
// database file so WAL writers never contend with the paper store.
type FTSIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ KeywordIndex = (*FTSIndex)(nil)

// NewFTSIndex opens (or creates) an FTS5 keyword index at path.
// An empty path opens an in-memory index for testing.
func NewFTSIndex(path string) (*FTSIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot create directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot open keyword index database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot set pragma", err)
		}
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_papers USING fts5(
		paper_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot initialize FTS schema", err)
	}

	return &FTSIndex{db: db, path: path}, nil
}

// Index adds or updates papers. FTS5 virtual tables have no REPLACE,
// so existing rows are deleted first.
func (f *FTSIndex) Index(ctx context.Context, papers []*Paper) error {
	if len(papers) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_papers WHERE paper_id = ?`)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot prepare delete", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_papers(paper_id, content) VALUES (?, ?)`)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot prepare insert", err)
	}
	defer ins.Close()

	for _, p := range papers {
		if _, err := del.ExecContext(ctx, p.ID); err != nil {
			return cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot replace paper %d", p.ID), err)
		}
		if _, err := ins.ExecContext(ctx, p.ID, indexText(p)); err != nil {
			return cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot index paper %d", p.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot commit index batch", err)
	}
	return nil
}

// Search returns up to limit BM25 hits for query.
// FTS5 bm25() is negative where lower is better; scores are negated so
// higher means better, matching the Bleve backend.
func (f *FTSIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []*KeywordResult{}, nil
	}
	// Quote terms so punctuation in queries cannot break MATCH syntax;
	// OR matching mirrors Bleve's default.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, "") + `"`
	}
	match := strings.Join(quoted, " OR ")

	rows, err := f.db.QueryContext(ctx, `
		SELECT paper_id, bm25(fts_papers) AS score
		FROM fts_papers
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordResult{}, nil
		}
		return nil, cerr.New(cerr.ErrCodeSearchFailed, "keyword search failed", err)
	}
	defer rows.Close()

	var out []*KeywordResult
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed, "cannot scan result", err)
		}
		out = append(out, &KeywordResult{PaperID: id, Score: -score})
	}
	return out, rows.Err()
}

// Delete removes papers by ID.
func (f *FTSIndex) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := f.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM fts_papers WHERE paper_id IN (%s)", placeholders), args...)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot delete papers from index", err)
	}
	return nil
}

// Count returns the number of indexed papers.
func (f *FTSIndex) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}
	var n int
	if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fts_papers").Scan(&n); err != nil {
		return 0, cerr.New(cerr.ErrCodeStoreFailed, "cannot count documents", err)
	}
	return n, nil
}

// Close releases the database connection. Idempotent.
func (f *FTSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.db.Close()
}
