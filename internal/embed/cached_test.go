package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts calls reaching it.
type countingEmbedder struct {
	*StaticEmbedder
	mu         sync.Mutex
	embeds     int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.embeds++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batchTexts += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "soil organic carbon")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "soil organic carbon")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embeds)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "already cached")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"already cached", "new text one", "new text two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 2, inner.batchTexts)

	// All three now hit the cache.
	_, err = cached.EmbedBatch(ctx, []string{"already cached", "new text one", "new text two"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.batchTexts)
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	_, _ = cached.Embed(ctx, "alpha text")
	_, _ = cached.Embed(ctx, "bravo text")
	_, _ = cached.Embed(ctx, "charlie text")
	// "alpha text" was evicted, so it embeds again.
	_, _ = cached.Embed(ctx, "alpha text")

	assert.Equal(t, 4, inner.embeds)
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)
	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestCachedEmbedder_PassThrough(t *testing.T) {
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static-hash-v1", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	require.NoError(t, cached.Close())
	assert.False(t, cached.Available(context.Background()))
}
