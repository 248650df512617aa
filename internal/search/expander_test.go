package search

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/oracle"
)

type stubProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (p *stubProvider) Call(_ context.Context, _ []oracle.Message) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func TestExpand_OriginalQueryAlwaysFirst(t *testing.T) {
	e := NewQueryExpander(nil, nil)

	got := e.Expand(context.Background(), "nitrogen effect on yield", 2)

	require.NotEmpty(t, got)
	assert.Equal(t, "nitrogen effect on yield", got[0])
	assert.LessOrEqual(t, len(got), 3)
}

func TestExpand_SynonymFallback_OneSubstitutionPerTerm(t *testing.T) {
	e := NewQueryExpander(nil, nil)

	got := e.Expand(context.Background(), "fertilizer effect", 5)

	// "fertilizer" and "effect" are both recognized terms
	assert.Contains(t, got, "fertilizer effect")
	assert.Contains(t, got, "nutrient input effect")
	assert.Contains(t, got, "fertilizer impact")
}

func TestExpand_OracleVariants(t *testing.T) {
	provider := &stubProvider{
		response: `Here are the rephrasings: ["maize nitrogen uptake", "N acquisition in corn"]`,
	}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "nitrogen uptake in maize", 2)

	require.Len(t, got, 3)
	assert.Equal(t, "nitrogen uptake in maize", got[0])
	assert.Contains(t, got, "maize nitrogen uptake")
	assert.Contains(t, got, "N acquisition in corn")
}

func TestExpand_OracleFailure_FallsBackToSynonyms(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("timeout")}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "nitrogen effect", 3)

	assert.Equal(t, "nitrogen effect", got[0])
	assert.Greater(t, len(got), 1, "synonym fallback should add variants")
}

func TestExpand_UnparseableOracleResponse_FallsBack(t *testing.T) {
	provider := &stubProvider{response: "I cannot answer that."}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "soil carbon", 2)

	assert.Equal(t, "soil carbon", got[0])
}

func TestExpand_CachesByQuery(t *testing.T) {
	provider := &stubProvider{response: `["variant one", "variant two"]`}
	e := NewQueryExpander(provider, nil)

	first := e.Expand(context.Background(), "soil organic matter", 2)
	second := e.Expand(context.Background(), "soil organic matter", 2)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.calls, "second call must hit the cache")
}

func TestExpand_ZeroExpansions_ReturnsOriginalOnly(t *testing.T) {
	provider := &stubProvider{response: `["never used"]`}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "anything at all", 0)

	assert.Equal(t, []string{"anything at all"}, got)
	assert.Zero(t, provider.calls)
}

func TestExpand_DedupesCaseInsensitively(t *testing.T) {
	provider := &stubProvider{response: `["Soil Carbon", "soil carbon", "carbon in soil"]`}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "soil carbon", 5)

	assert.Equal(t, []string{"soil carbon", "carbon in soil"}, got)
}

func TestExpand_TruncatesToMaxPlusOriginal(t *testing.T) {
	provider := &stubProvider{response: `["a one", "b two", "c three", "d four"]`}
	e := NewQueryExpander(provider, nil)

	got := e.Expand(context.Background(), "base query", 2)

	assert.Len(t, got, 3)
	assert.Equal(t, "base query", got[0])
}

func TestParseStringArray(t *testing.T) {
	got, err := parseStringArray(`prefix ["x", "y"] suffix`)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	_, err = parseStringArray("no array here")
	assert.Error(t, err)

	_, err = parseStringArray(`["unterminated"`)
	assert.Error(t, err)
}
