// Package store persists the paper corpus and serves keyword retrieval.
//
// The corpus lives in a single SQLite database. Keyword search is served
// by a pluggable KeywordIndex: a Bleve BM25 index (default) or SQLite
// FTS5 sharing the corpus database file.
package store

import (
	"fmt"
	"strings"
	"unicode"
)

// Paper is one bibliography entry in the corpus.
type Paper struct {
	ID           int64   `json:"id"`
	WosID        string  `json:"wos_id,omitempty"`
	Title        string  `json:"title"`
	Abstract     string  `json:"abstract"`
	Authors      string  `json:"authors"`
	Journal      string  `json:"journal,omitempty"`
	Year         int     `json:"year"`
	Volume       string  `json:"volume,omitempty"`
	Issue        string  `json:"issue,omitempty"`
	Pages        string  `json:"pages,omitempty"`
	DOI          string  `json:"doi,omitempty"`
	CitedBy      int     `json:"cited_by"`
	ResearchArea string  `json:"research_area,omitempty"`
	Keywords     string  `json:"keywords,omitempty"`
	Relevance    float64 `json:"-"`
}

// FirstAuthorLastName extracts the family name of the lead author.
// Authors is a "Last, First; Last, First" list; falls back to the first
// whitespace token when the field has no comma.
func (p *Paper) FirstAuthorLastName() string {
	authors := strings.TrimSpace(p.Authors)
	if authors == "" {
		return "Unknown"
	}
	first := authors
	if i := strings.IndexAny(authors, ";"); i >= 0 {
		first = authors[:i]
	}
	first = strings.TrimSpace(first)
	if i := strings.Index(first, ","); i >= 0 {
		return strings.TrimSpace(first[:i])
	}
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "Unknown"
	}
	return fields[len(fields)-1]
}

// CiteKey builds a stable citation key of the form AuthorYYYY,
// e.g. "Smith2021". Non-letter characters are dropped from the name part.
func (p *Paper) CiteKey() string {
	name := p.FirstAuthorLastName()
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if key == "" {
		key = "Unknown"
	}
	if p.Year > 0 {
		return fmt.Sprintf("%s%d", key, p.Year)
	}
	return key
}

// Snippet returns the first n runes of the abstract for display.
func (p *Paper) Snippet(n int) string {
	r := []rune(p.Abstract)
	if len(r) <= n {
		return p.Abstract
	}
	return string(r[:n]) + "..."
}
