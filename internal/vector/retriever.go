package vector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scholarkit/citematch/internal/embed"
	cerr "github.com/scholarkit/citematch/internal/errors"
	"github.com/scholarkit/citematch/internal/store"
)

// Hit is one retrieval result.
type Hit struct {
	PaperID int64
	// Similarity is cosine similarity rescaled from [-1,1] into [0,1]
	// (1 - distance/2). The remap is monotone, so rankings and relative
	// comparisons match raw cosine; absolute thresholds do not.
	Similarity float64
}

// DefaultQueryCacheSize bounds the query-embedding cache.
const DefaultQueryCacheSize = 512

// Retriever serves nearest-neighbor retrieval over paper embeddings.
// BuildIndex is an exclusive single-writer operation; after it (or Load)
// completes, Search may run concurrently without locking beyond the
// store's own read locks.
type Retriever struct {
	embedder embed.Embedder
	store    *Store
	path     string
	lock     *IndexLock

	queryCache *lru.Cache[string, []float32]

	mu        sync.RWMutex
	available bool
}

// NewRetriever creates a retriever persisting its index at path.
// An empty path keeps the index in memory only.
func NewRetriever(embedder embed.Embedder, path string) *Retriever {
	cache, _ := lru.New[string, []float32](DefaultQueryCacheSize)
	r := &Retriever{
		embedder:   embedder,
		path:       path,
		queryCache: cache,
	}
	if path != "" {
		r.lock = NewIndexLock(filepath.Dir(path))
	}
	return r
}

// docText builds the embedded text for a paper. The title appears twice
// so it carries more weight than the abstract in the vector.
func docText(p *store.Paper) string {
	parts := []string{p.Title, p.Title, p.Abstract}
	if p.Keywords != "" {
		parts = append(parts, p.Keywords)
	}
	return strings.Join(parts, "\n")
}

// BuildIndex embeds all papers and rebuilds the index from scratch,
// holding the cross-process lock for the duration. An unavailable
// embedder yields an index-unavailable error that callers treat as
// degraded, not fatal.
func (r *Retriever) BuildIndex(ctx context.Context, papers []*store.Paper) error {
	if !r.embedder.Available(ctx) {
		r.setAvailable(false)
		return cerr.New(cerr.ErrCodeIndexUnavailable, "embedding backend unavailable", nil).
			WithSuggestion("start Ollama or switch embeddings.provider to static")
	}
	if len(papers) == 0 {
		r.setAvailable(false)
		return cerr.New(cerr.ErrCodeIndexUnavailable, "no papers to index", nil)
	}

	if r.lock != nil {
		if err := r.lock.Lock(); err != nil {
			return cerr.New(cerr.ErrCodeStoreFailed, "cannot lock index for build", err)
		}
		defer func() { _ = r.lock.Unlock() }()
	}

	texts := make([]string, len(papers))
	ids := make([]int64, len(papers))
	for i, p := range papers {
		texts[i] = docText(p)
		ids[i] = p.ID
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.setAvailable(false)
		return cerr.Wrap(cerr.ErrCodeEmbeddingFailed, err)
	}

	vstore, err := NewStore(Config{Dimensions: r.embedder.Dimensions()})
	if err != nil {
		return err
	}
	if err := vstore.Add(ctx, ids, vecs); err != nil {
		return err
	}

	if r.path != "" {
		if err := vstore.Save(r.path); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if r.store != nil {
		_ = r.store.Close()
	}
	r.store = vstore
	r.available = true
	r.mu.Unlock()

	slog.Info("vector_index_built",
		slog.Int("papers", len(papers)),
		slog.Int("dimensions", r.embedder.Dimensions()))
	return nil
}

// Load restores a persisted index, skipping the rebuild. Dimension
// drift between the stored index and the current embedder invalidates
// the index.
func (r *Retriever) Load() error {
	if r.path == "" {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "no index path configured", nil)
	}

	dims, err := ReadStoredDimensions(r.path)
	if err != nil {
		return err
	}
	if dims == 0 {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "no persisted index found", nil).
			WithSuggestion("run `citematch index`")
	}
	if want := r.embedder.Dimensions(); want != 0 && dims != want {
		return cerr.New(cerr.ErrCodeDimensionMismatch,
			fmt.Sprintf("stored index has %d dimensions, embedder produces %d", dims, want), nil).
			WithSuggestion("run `citematch index` to rebuild")
	}

	vstore, err := NewStore(Config{Dimensions: dims})
	if err != nil {
		return err
	}
	if err := vstore.Load(r.path); err != nil {
		return err
	}

	r.mu.Lock()
	if r.store != nil {
		_ = r.store.Close()
	}
	r.store = vstore
	r.available = true
	r.mu.Unlock()
	return nil
}

// Search returns up to topK nearest papers for query. When the index or
// embedder is unavailable it returns an index-unavailable error; callers
// degrade to keyword-only fusion.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	r.mu.RLock()
	vstore, available := r.store, r.available
	r.mu.RUnlock()

	if !available || vstore == nil {
		return nil, cerr.New(cerr.ErrCodeIndexUnavailable, "vector index not built", nil)
	}

	vec, ok := r.queryCache.Get(query)
	if !ok {
		var err error
		vec, err = r.embedder.Embed(ctx, query)
		if err != nil {
			return nil, cerr.Wrap(cerr.ErrCodeEmbeddingFailed, err)
		}
		// Losing a populate race is harmless; last write wins.
		r.queryCache.Add(query, vec)
	}

	results, err := vstore.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{PaperID: res.PaperID, Similarity: res.Score})
	}
	return hits, nil
}

// Available reports whether searches can serve results.
func (r *Retriever) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available && r.store != nil
}

// Count returns the number of indexed papers.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.store == nil {
		return 0
	}
	return r.store.Count()
}

func (r *Retriever) setAvailable(v bool) {
	r.mu.Lock()
	r.available = v
	r.mu.Unlock()
}

// Close releases the underlying store.
func (r *Retriever) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = false
	if r.store != nil {
		err := r.store.Close()
		r.store = nil
		return err
	}
	return nil
}
