// Package oracle scores sentence-to-paper relevance through an external
// language-model service.
//
// The service is a black box behind the Provider interface: it accepts
// chat messages and returns text. The prompt builder and response parser
// are pure functions, so tests stub Provider and exercise everything
// else deterministically.
package oracle

import "context"

// Confidence is the oracle's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Judgment is one relevance verdict for a (sentence, paper) pair.
type Judgment struct {
	PaperID        int64
	RelevanceScore float64
	Confidence     Confidence
	Reason         string
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider sends chat messages to a language model and returns its text.
type Provider interface {
	Call(ctx context.Context, messages []Message) (string, error)
}

// ResearchContext biases relevance interpretation with draft-level
// information extracted once per manuscript.
type ResearchContext struct {
	Field      string
	Area       string
	Crops      []string
	Treatments []string
	Summary    string
}

// normalizeConfidence maps arbitrary oracle output onto the three
// levels, defaulting to medium.
func normalizeConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(s)
	default:
		return ConfidenceMedium
	}
}
