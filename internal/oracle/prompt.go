package oracle

import (
	"fmt"
	"strings"

	"github.com/scholarkit/citematch/internal/store"
)

// abstractLimit truncates candidate abstracts in the prompt to bound
// request payload size.
const abstractLimit = 300

const scoringSystemPrompt = `You are an expert scientific citation assistant.
You evaluate whether candidate papers properly support a draft-manuscript sentence.

IMPORTANT: These papers have already passed initial semantic screening. Your job is to (1) infer what the sentence truly needs from a citation, and (2) score each paper accordingly.

SENTENCE-DRIVEN EVALUATION

Step 1 - Understand the sentence's citation need. Identify the sentence function (background framing, regional statistic, quantitative claim, mechanistic explanation, management effect, trade-off claim, methodological justification) and what MUST be matched for proper support.

Step 2 - Evaluate each paper against the sentence's inferred needs. Weigh dimensions ONLY to the extent the sentence demands them: geographic relevance, crop/system relevance, mechanistic relevance, method/design relevance, quantitative compatibility.

Avoid keyword-matching bias: do not give a high score just because the paper contains similar terms.
Prefer papers that can be cited without extrapolation.

SCORING GUIDE
0.90-1.00: Direct, clean support with minimal extrapolation
0.75-0.89: Strong support; minor mismatch but still credible
0.60-0.74: Acceptable but indirect; some extrapolation needed
0.40-0.59: Weak support; better citations likely exist
0.00-0.39: Not suitable for this sentence

Confidence:
- high: clear direct support
- medium: plausible but indirect
- low: significant inference/extrapolation required

Return ONLY valid JSON. No extra text.`

// BuildScoringMessages builds the chat request for one scoring batch:
// optional research-context block, the sentence with its citation-need
// framing, and the numbered candidate list with truncated abstracts.
// Candidates are numbered 1..N; the parser maps numbers back to IDs.
func BuildScoringMessages(sentence string, needType string, candidates []*store.Paper, rctx *ResearchContext) []Message {
	var b strings.Builder

	if rctx != nil {
		divider := strings.Repeat("=", 60)
		b.WriteString(divider + "\n")
		b.WriteString("GLOBAL RESEARCH CONTEXT (Important for citation matching)\n")
		b.WriteString(divider + "\n")
		fmt.Fprintf(&b, "Research Field: %s\n", orNA(rctx.Field))
		fmt.Fprintf(&b, "Study Area: %s\n", orNA(rctx.Area))
		fmt.Fprintf(&b, "Crops: %s\n", orNA(strings.Join(rctx.Crops, ", ")))
		fmt.Fprintf(&b, "Treatments: %s\n", orNA(strings.Join(rctx.Treatments, ", ")))
		if rctx.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", rctx.Summary)
		}
		b.WriteString(divider + "\n\n")
	}

	b.WriteString("Draft Sentence:\n")
	fmt.Fprintf(&b, "%q\n\n", sentence)
	if needType != "" {
		fmt.Fprintf(&b, "Inferred citation need: %s\n\n", needType)
	}

	b.WriteString("Candidate Papers:\n\n")
	for i, p := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Title)
		fmt.Fprintf(&b, "    Authors: %s\n", p.Authors)
		fmt.Fprintf(&b, "    Year: %d\n", p.Year)
		abstract := p.Abstract
		if len(abstract) > abstractLimit {
			abstract = abstract[:abstractLimit] + "..."
		}
		fmt.Fprintf(&b, "    Abstract: %s\n\n", abstract)
	}

	b.WriteString("Evaluate the relevance of each paper to the draft sentence.\n\n")
	b.WriteString("Respond in this exact JSON format:\n")
	b.WriteString("{\n  \"evaluations\": [\n")
	for i := 1; i <= len(candidates); i++ {
		fmt.Fprintf(&b, "    {\n      \"paper_id\": %d,\n      \"relevance_score\": 0.85,\n      \"confidence\": \"high\",\n      \"reason\": \"Brief explanation of why this paper is or is not relevant\"\n    }", i)
		if i < len(candidates) {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}")

	return []Message{
		{Role: "system", Content: scoringSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
