package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/oracle"
)

type cannedProvider struct {
	response string
	err      error
	lastUser string
}

func (p *cannedProvider) Call(_ context.Context, messages []oracle.Message) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			p.lastUser = m.Content
		}
	}
	return p.response, p.err
}

func TestContextAnalyzer_Analyze(t *testing.T) {
	provider := &cannedProvider{response: `Here is the context:
{"research_field": "agronomy", "study_area": "North China Plain", "crops": ["winter wheat", "maize"], "treatments": ["N0", "N240"], "main_focus": "Nitrogen rate effects on leaching."}`}

	analyzer := NewContextAnalyzer(provider, nil)
	rctx := analyzer.Analyze(context.Background(), "A manuscript about nitrogen rates.")

	require.NotNil(t, rctx)
	assert.Equal(t, "agronomy", rctx.Field)
	assert.Equal(t, "North China Plain", rctx.Area)
	assert.Equal(t, []string{"winter wheat", "maize"}, rctx.Crops)
	assert.Equal(t, []string{"N0", "N240"}, rctx.Treatments)
	assert.Equal(t, "Nitrogen rate effects on leaching.", rctx.Summary)

	assert.Contains(t, provider.lastUser, "A manuscript about nitrogen rates.")
}

func TestContextAnalyzer_NilProvider(t *testing.T) {
	analyzer := NewContextAnalyzer(nil, nil)
	assert.Nil(t, analyzer.Analyze(context.Background(), "some text"))
}

func TestContextAnalyzer_EmptyText(t *testing.T) {
	provider := &cannedProvider{response: "{}"}
	analyzer := NewContextAnalyzer(provider, nil)
	assert.Nil(t, analyzer.Analyze(context.Background(), "   "))
	assert.Empty(t, provider.lastUser)
}

func TestContextAnalyzer_ProviderFailure(t *testing.T) {
	provider := &cannedProvider{err: errors.New("timeout")}
	analyzer := NewContextAnalyzer(provider, nil)
	assert.Nil(t, analyzer.Analyze(context.Background(), "some draft text"))
}

func TestContextAnalyzer_UnparseableResponse(t *testing.T) {
	provider := &cannedProvider{response: "I could not determine the context."}
	analyzer := NewContextAnalyzer(provider, nil)
	assert.Nil(t, analyzer.Analyze(context.Background(), "some draft text"))
}

func TestContextAnalyzer_TruncatesLongDrafts(t *testing.T) {
	provider := &cannedProvider{response: `{"research_field": "soil science"}`}
	analyzer := NewContextAnalyzer(provider, nil)

	long := strings.Repeat("soil ", contextTextLimit)
	rctx := analyzer.Analyze(context.Background(), long)
	require.NotNil(t, rctx)
	assert.Less(t, len(p(provider.lastUser)), contextTextLimit+200)
}

// p trims the fixed prompt framing around the draft excerpt.
func p(user string) string {
	const prefix = "Please analyze the following manuscript and extract contextual information:\n\n"
	const suffix = "\n\nExtract the research context in JSON format."
	user = strings.TrimPrefix(user, prefix)
	return strings.TrimSuffix(user, suffix)
}
