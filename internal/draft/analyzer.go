package draft

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// minSentenceLen filters fragments left over from splitting, like
// stray figure labels or list bullets.
const minSentenceLen = 10

// Analysis is the parsed form of a manuscript draft.
type Analysis struct {
	Sentences  []Sentence
	Paragraphs []string
	Title      string
	FullText   string
}

// NeedingCitation returns the sentences that are citation candidates.
func (a *Analysis) NeedingCitation() []Sentence {
	var out []Sentence
	for _, s := range a.Sentences {
		if s.NeedsCitation() {
			out = append(out, s)
		}
	}
	return out
}

// Abbreviations and decimals that contain a period but do not end a
// sentence. Protected before splitting, restored after.
var protectedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\be\.g\.`),
	regexp.MustCompile(`(?i)\bi\.e\.`),
	regexp.MustCompile(`\bFig\.\s*\d*`),
	regexp.MustCompile(`\bTable\.?\s*\d+`),
	regexp.MustCompile(`(?i)\bet\s+al\.`),
	regexp.MustCompile(`(?i)\bvs\.`),
	regexp.MustCompile(`(?i)\bdr\.`),
	regexp.MustCompile(`(?i)\bmr\.`),
	regexp.MustCompile(`(?i)\bmrs\.`),
	regexp.MustCompile(`(?i)\bst\.`),
	regexp.MustCompile(`\d+\.\d+`),
}

// AnalyzeFile reads a plain-text or Markdown draft from disk.
func AnalyzeFile(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	return AnalyzeText(string(data)), nil
}

// AnalyzeText splits a draft into paragraphs and sentences, detecting
// existing citations and extracting keywords per sentence.
func AnalyzeText(text string) *Analysis {
	a := &Analysis{FullText: text}

	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			a.Paragraphs = append(a.Paragraphs, p)
		}
	}
	if len(a.Paragraphs) > 0 {
		a.Title = firstLine(a.Paragraphs[0])
	}

	idx := 0
	for paraIdx, paragraph := range a.Paragraphs {
		for _, sent := range SplitSentences(paragraph) {
			a.Sentences = append(a.Sentences, NewSentence(sent, idx, paraIdx))
			idx++
		}
	}
	return a
}

// SplitSentences breaks a paragraph into sentences. Common academic
// abbreviations and decimal numbers are protected so their periods do
// not split the text.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	protected := text
	restore := map[string]string{}
	n := 0
	for _, re := range protectedPatterns {
		protected = re.ReplaceAllStringFunc(protected, func(m string) string {
			key := fmt.Sprintf("\x00%d\x00", n)
			n++
			restore[key] = m
			return key
		})
	}

	var sentences []string
	var cur strings.Builder
	runes := []rune(protected)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Split only at terminator + whitespace + capital, the same
		// boundary a human reader uses.
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
			j++
		}
		if j > i+1 && j < len(runes) && runes[j] >= 'A' && runes[j] <= 'Z' {
			sentences = append(sentences, cur.String())
			cur.Reset()
			i = j - 1
		}
	}
	if cur.Len() > 0 {
		sentences = append(sentences, cur.String())
	}

	var cleaned []string
	for _, s := range sentences {
		for key, orig := range restore {
			s = strings.ReplaceAll(s, key, orig)
		}
		s = strings.TrimSpace(s)
		if len(s) >= minSentenceLen {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.TrimLeft(s, "# "))
}
