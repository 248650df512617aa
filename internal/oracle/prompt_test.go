package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarkit/citematch/internal/store"
)

func TestBuildScoringMessages_NumbersCandidates(t *testing.T) {
	candidates := []*store.Paper{
		{ID: 7, Title: "First paper", Authors: "Smith, J.", Year: 2020, Abstract: "Short abstract."},
		{ID: 9, Title: "Second paper", Authors: "Lee, K.", Year: 2021, Abstract: "Another abstract."},
	}

	messages := BuildScoringMessages("Cover crops reduce nitrate leaching.", "quantitative claim", candidates, nil)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)

	user := messages[1].Content
	assert.Contains(t, user, `"Cover crops reduce nitrate leaching."`)
	assert.Contains(t, user, "Inferred citation need: quantitative claim")
	assert.Contains(t, user, "[1] First paper")
	assert.Contains(t, user, "[2] Second paper")
	assert.Contains(t, user, `"paper_id": 2,`)
	assert.NotContains(t, user, "[3]")
}

func TestBuildScoringMessages_TruncatesLongAbstracts(t *testing.T) {
	long := strings.Repeat("x", abstractLimit+50)
	candidates := []*store.Paper{{ID: 1, Title: "Long one", Abstract: long}}

	messages := BuildScoringMessages("A sentence.", "", candidates, nil)
	user := messages[1].Content
	assert.Contains(t, user, strings.Repeat("x", abstractLimit)+"...")
	assert.NotContains(t, user, strings.Repeat("x", abstractLimit+1))
}

func TestBuildScoringMessages_ResearchContextBlock(t *testing.T) {
	rctx := &ResearchContext{
		Field: "Agronomy",
		Area:  "US Midwest",
		Crops: []string{"maize", "soybean"},
	}
	candidates := []*store.Paper{{ID: 1, Title: "Paper"}}

	user := BuildScoringMessages("A sentence.", "", candidates, rctx)[1].Content
	assert.Contains(t, user, "GLOBAL RESEARCH CONTEXT")
	assert.Contains(t, user, "Research Field: Agronomy")
	assert.Contains(t, user, "Study Area: US Midwest")
	assert.Contains(t, user, "Crops: maize, soybean")
	assert.Contains(t, user, "Treatments: N/A")
}

func TestBuildScoringMessages_NoContextNoBlock(t *testing.T) {
	candidates := []*store.Paper{{ID: 1, Title: "Paper"}}

	user := BuildScoringMessages("A sentence.", "", candidates, nil)[1].Content
	assert.NotContains(t, user, "GLOBAL RESEARCH CONTEXT")
	assert.NotContains(t, user, "Inferred citation need")
}
