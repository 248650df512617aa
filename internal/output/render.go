package output

import (
	"fmt"
	"strings"

	"github.com/scholarkit/citematch/internal/match"
	"github.com/scholarkit/citematch/internal/search"
)

// RenderSearchResults prints reranked search hits as a numbered list.
func (w *Writer) RenderSearchResults(results []search.RerankedCandidate) {
	if len(results) == 0 {
		w.Dim("No matching papers found.")
		return
	}
	for i, r := range results {
		title := w.styles.Title.Render(r.Paper.Title)
		score := w.styles.Score.Render(fmt.Sprintf("%.3f", r.FinalScore))
		_, _ = fmt.Fprintf(w.out, "%2d. %s  [%s]\n", i+1, title, score)

		meta := []string{}
		if r.Paper.Authors != "" {
			meta = append(meta, firstAuthors(r.Paper.Authors, 3))
		}
		if r.Paper.Year > 0 {
			meta = append(meta, fmt.Sprintf("%d", r.Paper.Year))
		}
		if r.Paper.Journal != "" {
			meta = append(meta, r.Paper.Journal)
		}
		meta = append(meta, fmt.Sprintf("cited by %d", r.Paper.CitedBy))
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Label.Render(strings.Join(meta, " · ")))

		if snippet := r.Paper.Snippet(160); snippet != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(snippet))
		}
	}
}

// RenderMatches prints per-sentence citation recommendations.
func (w *Writer) RenderMatches(sentence string, matches []match.CompositeMatch) {
	w.Header(truncateLine(sentence, 100))
	if len(matches) == 0 {
		w.Dim("    no citations recommended")
		w.Newline()
		return
	}
	for _, m := range matches {
		key := w.styles.Success.Render(m.Paper.CiteKey())
		_, _ = fmt.Fprintf(w.out, "  %s %s (%d)\n", key, m.Paper.Title, m.Paper.Year)
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Label.Render(fmt.Sprintf(
			"relevance %.2f · recency %.1f · citations %.2f · composite %.2f",
			m.RelevanceScore, m.RecencyScore, m.CitationScore, m.CompositeScore)))
		if m.Reason != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(truncateLine(m.Reason, 140)))
		}
	}
	w.Newline()
}

func firstAuthors(authors string, n int) string {
	parts := strings.Split(authors, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > n {
		return strings.Join(parts[:n], "; ") + " et al."
	}
	return strings.Join(parts, "; ")
}

func truncateLine(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
