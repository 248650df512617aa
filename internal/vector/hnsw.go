// Package vector stores paper embeddings in an HNSW graph and serves
// approximate nearest-neighbor retrieval.
//
// The graph is built once per indexing run under an exclusive file lock,
// persisted with its ID mappings, and then shared read-only by
// concurrent searches.
package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// Result is one nearest-neighbor hit.
type Result struct {
	PaperID  int64
	Distance float32
	// Score is cosine similarity rescaled into [0,1] as 1 - Distance/2.
	Score float64
}

// Config tunes the HNSW graph.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// Store is an HNSW-backed vector index keyed by paper ID.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	// Paper IDs map to internal graph keys. Deletion is lazy: the node
	// stays in the graph but loses its mapping, because coder/hnsw
	// misbehaves when the last node is removed.
	idMap   map[int64]uint64
	keyMap  map[uint64]int64
	nextKey uint64

	closed bool
}

type storeMetadata struct {
	IDMap   map[int64]uint64
	NextKey uint64
	Config  Config
}

// NewStore creates an empty HNSW store with cosine distance.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, cerr.New(cerr.ErrCodeDimensionMismatch, "dimensions must be positive", nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[int64]uint64),
		keyMap: make(map[uint64]int64),
	}, nil
}

// Add inserts vectors keyed by paper ID. Existing IDs are replaced.
// Vectors are normalized in place copies, so cosine distance reduces to
// dot product distance in the graph.
func (s *Store) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return cerr.New(cerr.ErrCodeInvalidInput,
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return cerr.New(cerr.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(v)), nil)
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search returns up to k nearest neighbors of query, best first.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeIndexUnavailable, "vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, cerr.New(cerr.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(query)), nil)
	}
	if s.graph.Len() == 0 {
		return []*Result{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := s.graph.Search(normalized, k)
	results := make([]*Result, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Lazy-deleted node still in the graph.
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &Result{
			PaperID:  id,
			Distance: distance,
			// Cosine distance ranges 0 (identical) to 2 (opposite).
			Score: 1.0 - float64(distance)/2.0,
		})
	}
	return results, nil
}

// Delete removes papers by ID. Lazy: mappings go, graph nodes stay.
func (s *Store) Delete(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "vector store is closed", nil)
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether a paper ID is indexed.
func (s *Store) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the configured vector size.
func (s *Store) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the graph and ID mappings atomically (temp + rename).
// Callers serialize writers with an IndexLock.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot create index file", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot export graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot close index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot rename index file", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot create metadata file", err)
	}

	meta := storeMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot encode metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot close metadata file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return cerr.New(cerr.ErrCodeStoreFailed, "cannot rename metadata file", err)
	}
	return nil
}

// Load restores a saved graph and its ID mappings.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "vector store is closed", nil)
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "cannot open index file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return cerr.New(cerr.ErrCodeIndexCorrupt, "cannot import graph", err).
			WithSuggestion("run `citematch index` to rebuild")
	}
	return nil
}

func (s *Store) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return cerr.New(cerr.ErrCodeIndexUnavailable, "cannot open metadata file", err)
	}
	defer func() { _ = file.Close() }()

	var meta storeMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return cerr.New(cerr.ErrCodeIndexCorrupt, "cannot decode metadata", err).
			WithSuggestion("run `citematch index` to rebuild")
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]int64, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadStoredDimensions reads the dimensions of a persisted store, or 0
// when none exists. Used to detect embedder/index dimension drift before
// loading the full graph.
func ReadStoredDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, cerr.New(cerr.ErrCodeIndexUnavailable, "cannot open metadata", err)
	}
	defer func() { _ = file.Close() }()

	var meta storeMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, cerr.New(cerr.ErrCodeIndexCorrupt, "cannot decode metadata", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
