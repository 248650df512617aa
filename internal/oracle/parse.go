package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/scholarkit/citematch/internal/store"
)

type evaluationEntry struct {
	PaperID        *int     `json:"paper_id"`
	RelevanceScore *float64 `json:"relevance_score"`
	SemanticScore  *float64 `json:"semantic_score"`
	Confidence     string   `json:"confidence"`
	Reason         string   `json:"reason"`
	Justification  string   `json:"justification"`
}

type evaluationPayload struct {
	Evaluations []evaluationEntry `json:"evaluations"`
}

// ParseJudgments extracts relevance judgments from the oracle's free
// text. The first brace-balanced JSON object containing an
// `evaluations` array wins; prose around it is tolerated. Entry
// paper_ids are 1-based positions in candidates and are mapped back to
// real paper IDs. Entries without a numeric relevance score are
// dropped, never defaulted; missing confidence defaults to medium.
func ParseJudgments(response string, candidates []*store.Paper) ([]Judgment, error) {
	raw, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var payload evaluationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("cannot parse evaluations: %w", err)
	}

	judgments := make([]Judgment, 0, len(payload.Evaluations))
	for _, e := range payload.Evaluations {
		if e.PaperID == nil {
			continue
		}
		idx := *e.PaperID - 1
		if idx < 0 || idx >= len(candidates) {
			continue
		}

		score := e.RelevanceScore
		if score == nil {
			score = e.SemanticScore
		}
		if score == nil {
			continue
		}

		reason := e.Reason
		if reason == "" {
			reason = e.Justification
		}

		judgments = append(judgments, Judgment{
			PaperID:        candidates[idx].ID,
			RelevanceScore: *score,
			Confidence:     normalizeConfidence(e.Confidence),
			Reason:         reason,
		})
	}
	return judgments, nil
}

// extractJSONObject returns the first brace-balanced object in text,
// skipping braces inside JSON strings.
func extractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", fmt.Errorf("no JSON object found in response")
}
