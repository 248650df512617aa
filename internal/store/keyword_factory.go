package store

import (
	"os"
	"path/filepath"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// KeywordBackend selects the keyword index implementation.
type KeywordBackend string

const (
	// KeywordBackendBleve uses Bleve v2 (default). Exclusive file locking
	// via BoltDB, so single process only.
	KeywordBackendBleve KeywordBackend = "bleve"

	// KeywordBackendFTS uses SQLite FTS5. WAL mode allows concurrent
	// multi-process readers.
	KeywordBackendFTS KeywordBackend = "fts5"
)

// NewKeywordIndex creates a KeywordIndex with the given backend.
// basePath is the path without extension; the backend appends its own
// (.bleve directory for Bleve, .db file for FTS5). An empty basePath
// creates an in-memory index for testing.
func NewKeywordIndex(basePath string, backend string) (KeywordIndex, error) {
	switch KeywordBackend(backend) {
	case KeywordBackendBleve, "":
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveIndex(path)

	case KeywordBackendFTS:
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewFTSIndex(path)

	default:
		return nil, cerr.New(cerr.ErrCodeConfigInvalid,
			"unknown keyword backend: "+backend+" (valid: bleve, fts5)", nil)
	}
}

// DetectKeywordBackend reports which backend an existing index uses,
// or "" when none exists.
func DetectKeywordBackend(basePath string) KeywordBackend {
	if info, err := os.Stat(basePath + ".bleve"); err == nil && info.IsDir() {
		return KeywordBackendBleve
	}
	if info, err := os.Stat(basePath + ".db"); err == nil && !info.IsDir() {
		return KeywordBackendFTS
	}
	return ""
}

// KeywordIndexPath returns the on-disk path for the given backend
// under dataDir.
func KeywordIndexPath(dataDir string, backend string) string {
	base := filepath.Join(dataDir, "keywords")
	if KeywordBackend(backend) == KeywordBackendFTS {
		return base + ".db"
	}
	return base + ".bleve"
}
