// Package draft models manuscript sentences: keyword extraction,
// citation detection, citation-need classification, and oracle-backed
// research-context extraction.
package draft

import (
	"regexp"
	"sort"
	"strings"
)

// Sentence is one draft-manuscript sentence.
type Sentence struct {
	Text           string
	Index          int
	ParagraphIndex int
	Keywords       []string
	HasCitation    bool
	CitationText   string
}

// NeedType classifies what kind of support a sentence requires from a
// citation. It frames the oracle's relevance evaluation.
type NeedType string

const (
	NeedBackground   NeedType = "background framing"
	NeedStatistic    NeedType = "regional or production statistic"
	NeedQuantitative NeedType = "specific quantitative claim"
	NeedMechanism    NeedType = "mechanistic explanation"
	NeedMethod       NeedType = "methodological justification"
	NeedComparison   NeedType = "management effect or intervention comparison"
)

var (
	// Existing citation formats: (Author, 2020), (Author et al., 2020),
	// [1], [1-3], [1, 2, 3].
	authorYearPattern = regexp.MustCompile(`\([A-Z][a-z]+(?:\s+et\s+al\.?)?,\s*\d{4}[a-z]?\)`)
	numberedPattern   = regexp.MustCompile(`\[\d+(?:\s*[,-]\s*\d+)*\]`)

	numericClaimPattern = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:%|kg|t/ha|mg|g|Tg|Mt|ppm|°C)`)
	wordPattern         = regexp.MustCompile(`[A-Za-z][A-Za-z0-9-]*`)
)

// sentenceStopwords filters words carrying no retrieval signal.
var sentenceStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "was": true, "are": true, "were": true,
	"been": true, "be": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"can": true, "this": true, "that": true, "these": true,
	"those": true, "we": true, "our": true, "us": true, "it": true,
	"its": true, "they": true, "their": true, "them": true,
	"study": true, "research": true, "paper": true, "work": true,
	"results": true, "shown": true, "showed": true, "found": true,
	"observed": true, "indicated": true, "suggested": true,
	"demonstrated": true,
}

// NewSentence builds a sentence with keywords and citation detection.
func NewSentence(text string, index, paragraphIndex int) Sentence {
	s := Sentence{
		Text:           text,
		Index:          index,
		ParagraphIndex: paragraphIndex,
		Keywords:       ExtractKeywords(text, 5),
	}
	s.HasCitation, s.CitationText = DetectCitation(text)
	return s
}

// DetectCitation reports whether text already carries a citation and
// returns the matched citation text.
func DetectCitation(text string) (bool, string) {
	for _, p := range []*regexp.Regexp{authorYearPattern, numberedPattern} {
		if m := p.FindString(text); m != "" {
			return true, m
		}
	}
	return false, ""
}

// ExtractKeywords returns up to maxKeywords frequent mid-length words
// after stopword filtering, most frequent first with first-appearance
// order breaking ties.
func ExtractKeywords(text string, maxKeywords int) []string {
	words := wordPattern.FindAllString(text, -1)

	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, w := range words {
		lower := strings.ToLower(w)
		if len(lower) < 4 || len(lower) > 20 || sentenceStopwords[lower] {
			continue
		}
		if _, ok := firstSeen[lower]; !ok {
			firstSeen[lower] = i
		}
		freq[lower]++
	}

	keywords := make([]string, 0, len(freq))
	for w := range freq {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return firstSeen[keywords[i]] < firstSeen[keywords[j]]
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// ClassifyNeed infers what kind of citation support a sentence needs.
// Heuristic, first match wins: quantitative claims, mechanism language,
// comparisons, methods, statistics, then background as the default.
func ClassifyNeed(text string) NeedType {
	lower := strings.ToLower(text)

	if numericClaimPattern.MatchString(text) {
		return NeedQuantitative
	}
	for _, marker := range []string{"mechanism", "pathway", "process", "nitrification", "denitrification", "mediated", "driven by"} {
		if strings.Contains(lower, marker) {
			return NeedMechanism
		}
	}
	for _, marker := range []string{"compared to", "compared with", "higher than", "lower than", "treatment", "application of", "practice"} {
		if strings.Contains(lower, marker) {
			return NeedComparison
		}
	}
	for _, marker := range []string{"measured", "method", "protocol", "analyzed using", "model", "simulation"} {
		if strings.Contains(lower, marker) {
			return NeedMethod
		}
	}
	for _, marker := range []string{"worldwide", "globally", "in china", "annually", "accounts for", "production of"} {
		if strings.Contains(lower, marker) {
			return NeedStatistic
		}
	}
	return NeedBackground
}

// NeedsCitation reports whether a sentence is worth matching: no
// existing citation and enough content words to search on.
func (s *Sentence) NeedsCitation() bool {
	return !s.HasCitation && len(s.Keywords) >= 2
}
