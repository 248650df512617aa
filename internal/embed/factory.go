package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/scholarkit/citematch/internal/config"
	cerr "github.com/scholarkit/citematch/internal/errors"
)

// NewFromConfig builds the configured embedder wrapped in an LRU cache.
// When the Ollama provider is selected but unreachable, it falls back to
// the static embedder rather than failing, so offline indexing still
// works with degraded vector quality.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var inner Embedder

	switch cfg.Embeddings.Provider {
	case "static":
		inner = NewStaticEmbedder()

	case "ollama", "":
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    120 * time.Second,
		})
		if err != nil {
			slog.Warn("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			inner = NewStaticEmbedder()
		} else {
			inner = ollama
		}

	default:
		return nil, cerr.New(cerr.ErrCodeConfigInvalid,
			"unknown embeddings provider: "+cfg.Embeddings.Provider+" (valid: ollama, static)", nil)
	}

	return NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
}
