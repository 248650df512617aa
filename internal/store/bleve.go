package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

const abstractAnalyzerName = "abstract_analyzer"

// BleveIndex serves BM25 keyword search over paper text via Bleve v2.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveIndex)(nil)

type bleveDoc struct {
	Content string `json:"content"`
}

// validateBleveIntegrity checks a Bleve index directory before opening.
// A missing index is fine (it will be created); a half-written one is not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex opens (or creates) a Bleve index at path.
// An empty path creates an in-memory index for testing.
// Corrupted on-disk indexes are cleared and recreated; the caller must
// reindex the corpus afterwards.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createPaperMapping()
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeIndexCorrupt, "cannot create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot create directory for %s", path), mkErr)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, cerr.New(cerr.ErrCodeIndexCorrupt,
					fmt.Sprintf("keyword index corrupted at %s and cannot remove", path), removeErr)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, cerr.New(cerr.ErrCodeIndexCorrupt,
					"keyword index corrupted, cannot clear", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeIndexCorrupt, "cannot create/open keyword index", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

// createPaperMapping builds the index mapping: unicode tokenizer,
// lowercase, english stop words.
func createPaperMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(abstractAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = abstractAnalyzerName

	return indexMapping, nil
}

// Index adds papers to the index in a single batch.
func (b *BleveIndex) Index(ctx context.Context, papers []*Paper) error {
	if len(papers) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, p := range papers {
		doc := bleveDoc{Content: indexText(p)}
		if err := batch.Index(strconv.FormatInt(p.ID, 10), doc); err != nil {
			return cerr.New(cerr.ErrCodeStoreFailed,
				fmt.Sprintf("cannot index paper %d", p.ID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot execute index batch", err)
	}
	return nil
}

// Search returns up to limit BM25 hits for query.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	if strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, cerr.New(cerr.ErrCodeSearchFailed, "keyword search failed", err)
	}

	hits := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, &KeywordResult{PaperID: id, Score: hit.Score})
	}
	return hits, nil
}

// Delete removes papers from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := b.index.Batch(batch); err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot delete papers from index", err)
	}
	return nil
}

// Count returns the number of indexed papers.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, cerr.New(cerr.ErrCodeIndexUnavailable, "keyword index is closed", nil)
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, cerr.New(cerr.ErrCodeStoreFailed, "cannot count documents", err)
	}
	return int(n), nil
}

// Close releases the index. Idempotent.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
