package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	cerr "github.com/scholarkit/citematch/internal/errors"
)

// StaticEmbedder generates embeddings with a hash-based scheme: no
// network, no model download, deterministic output. Semantic quality is
// reduced, which is acceptable for tests and offline indexing.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// academicStopWords are high-frequency words with no topical signal in
// titles and abstracts.
var academicStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "and": true, "or": true,
	"with": true, "by": true, "is": true, "are": true, "was": true,
	"were": true, "this": true, "that": true, "these": true,
	"study": true, "paper": true, "results": true, "using": true,
	"based": true, "between": true, "from": true, "we": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a hash-based embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates a deterministic embedding for text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, cerr.New(cerr.ErrCodeEmbedderDown, "embedder is closed", nil)
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch embeds each text independently.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// generateVector mixes word hashes (weight 0.7) and character trigram
// hashes (weight 0.3) into a fixed-size vector.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if academicStopWords[w] {
			continue
		}
		vector[hashToIndex(w, StaticDimensions)] += tokenWeight
	}

	flat := strings.Join(wordRegex.FindAllString(strings.ToLower(text), -1), " ")
	for i := 0; i+ngramSize <= len(flat); i++ {
		vector[hashToIndex(flat[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}
	return vector
}

func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

// Available always reports true unless closed.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed. Idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
