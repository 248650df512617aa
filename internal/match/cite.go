package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scholarkit/citematch/internal/draft"
	"github.com/scholarkit/citematch/internal/store"
)

// CitationStyle selects the in-text citation format.
type CitationStyle string

const (
	StyleAuthorYear CitationStyle = "author-year"
	StyleNumbered   CitationStyle = "numbered"
)

// BibliographyStyle selects the reference-list format.
type BibliographyStyle string

const (
	BibAPA       BibliographyStyle = "apa"
	BibNature    BibliographyStyle = "nature"
	BibVancouver BibliographyStyle = "vancouver"
	BibIEEE      BibliographyStyle = "ieee"
)

// FormatCitation renders one in-text citation. index is used by the
// numbered style; pass 0 to fall back to the paper id.
func FormatCitation(m *CompositeMatch, style CitationStyle, index int) string {
	p := m.Paper
	if style == StyleNumbered {
		if index > 0 {
			return fmt.Sprintf("[%d]", index)
		}
		return fmt.Sprintf("[%d]", p.ID)
	}

	author := p.FirstAuthorLastName()
	if p.Year > 0 {
		return fmt.Sprintf("(%s et al., %d)", author, p.Year)
	}
	return fmt.Sprintf("(%s et al.)", author)
}

// InsertCitations appends the combined citation group at the end of the
// sentence, before a trailing period when present.
func InsertCitations(sentence draft.Sentence, citations []*CompositeMatch, style CitationStyle) string {
	if len(citations) == 0 {
		return sentence.Text
	}

	parts := make([]string, len(citations))
	for i, c := range citations {
		parts[i] = strings.Trim(FormatCitation(c, style, i+1), "()[]")
	}

	var combined string
	if style == StyleNumbered {
		combined = "[" + strings.Join(parts, ", ") + "]"
	} else {
		combined = "(" + strings.Join(parts, "; ") + ")"
	}

	text := sentence.Text
	if strings.HasSuffix(text, ".") {
		return text[:len(text)-1] + " " + combined + "."
	}
	return text + " " + combined
}

// GenerateBibliography renders a deduplicated reference list for all
// cited papers, alphabetized by first-author last name.
func GenerateBibliography(results []SentenceMatches, style BibliographyStyle) string {
	used := make(map[int64]*store.Paper)
	for _, sm := range results {
		for _, c := range sm.Citations {
			if _, ok := used[c.Paper.ID]; !ok {
				used[c.Paper.ID] = c.Paper
			}
		}
	}
	if len(used) == 0 {
		return ""
	}

	papers := make([]*store.Paper, 0, len(used))
	for _, p := range used {
		papers = append(papers, p)
	}
	sort.Slice(papers, func(i, j int) bool {
		a := strings.ToLower(papers[i].FirstAuthorLastName())
		b := strings.ToLower(papers[j].FirstAuthorLastName())
		if a != b {
			return a < b
		}
		return papers[i].ID < papers[j].ID
	})

	refs := make([]string, 0, len(papers)+1)
	refs = append(refs, "# References\n")
	for _, p := range papers {
		refs = append(refs, FormatReference(p, style))
	}
	return strings.Join(refs, "\n\n")
}

// FormatReference renders one bibliography entry.
func FormatReference(p *store.Paper, style BibliographyStyle) string {
	authors := strings.ReplaceAll(p.Authors, ";", ", ")
	switch style {
	case BibAPA:
		return fmt.Sprintf("%s (%d). %s. %s, %s(%s), %s.",
			authors, p.Year, p.Title, p.Journal, p.Volume, p.Issue, p.Pages)
	case BibNature:
		return fmt.Sprintf("%s. %s. %s %d.", authors, p.Title, p.Journal, p.Year)
	case BibIEEE:
		return fmt.Sprintf("%s, %q %s, vol. %s, no. %s, pp. %s, %d.",
			authors, p.Title+",", p.Journal, p.Volume, p.Issue, p.Pages, p.Year)
	default:
		return fmt.Sprintf("%s. %s. %s. %d;%s:%s.",
			authors, p.Title, p.Journal, p.Year, p.Volume, p.Pages)
	}
}
