package store

import (
	"crypto/md5"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Field value caps mirror the papers table column budget.
const (
	maxWosIDLen    = 100
	maxTitleLen    = 500
	maxAuthorsLen  = 1000
	maxJournalLen  = 200
	maxAbstractLen = 5000
	maxKeywordsLen = 500
)

var wsRun = regexp.MustCompile(`\s+`)

// ParseWosExport parses a Web of Science "Plain Text" export file into
// papers. Records are separated by ER lines; two-letter field tags (TI,
// AB, AU, PY, SO, TC, ...) carry the values. Malformed records are
// skipped and reported, not fatal.
func ParseWosExport(path string) ([]*Paper, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read export: %w", err)}
	}
	return parseWosRecords(string(data))
}

func parseWosRecords(content string) ([]*Paper, []error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var papers []*Paper
	var errs []error
	for _, record := range strings.Split(content, "\nER\n") {
		if strings.TrimSpace(record) == "" {
			continue
		}
		p, err := parseWosRecord(record)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		papers = append(papers, p)
	}
	return papers, errs
}

func parseWosRecord(record string) (*Paper, error) {
	title := wosField(record, "TI")
	if title == "" {
		return nil, fmt.Errorf("record without TI field")
	}

	year := 0
	if ys := wosField(record, "PY"); len(ys) >= 4 {
		year, _ = strconv.Atoi(ys[:4])
	}

	// Prefer full author names, fall back to the short form.
	authors := strings.Join(wosFields(record, "AF"), "; ")
	if authors == "" {
		authors = strings.Join(wosFields(record, "AU"), "; ")
	}

	doi := wosField(record, "DI")
	wosID := wosField(record, "UT")
	switch {
	case wosID != "":
		wosID = "wos:" + wosID
	case doi != "":
		wosID = "doi:" + doi
	default:
		// Stable synthetic ID so re-imports dedupe on the same row.
		wosID = fmt.Sprintf("hash:%x", md5.Sum([]byte(title+strconv.Itoa(year))))[:21]
	}

	pages := wosField(record, "BP")
	if ep := wosField(record, "EP"); pages != "" && ep != "" {
		pages = pages + "-" + ep
	}

	citedBy := 0
	if tc := wosField(record, "TC"); tc != "" {
		citedBy, _ = strconv.Atoi(tc)
	}

	return &Paper{
		WosID:        clip(wosID, maxWosIDLen),
		Title:        clip(title, maxTitleLen),
		Abstract:     clip(cleanAbstract(wosField(record, "AB")), maxAbstractLen),
		Authors:      clip(authors, maxAuthorsLen),
		Journal:      clip(wosField(record, "SO"), maxJournalLen),
		Year:         year,
		Volume:       clip(wosField(record, "VL"), 50),
		Issue:        clip(wosField(record, "IS"), 50),
		Pages:        clip(pages, 50),
		DOI:          clip(doi, maxWosIDLen),
		CitedBy:      citedBy,
		ResearchArea: clip(wosField(record, "SC"), maxWosIDLen),
		Keywords:     clip(wosField(record, "DE"), maxKeywordsLen),
	}, nil
}

// wosField extracts a single tag's value, including continuation lines,
// which WoS indents under the tag.
func wosField(record, tag string) string {
	vals := wosFields(record, tag)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func wosFields(record, tag string) []string {
	var vals []string
	lines := strings.Split(record, "\n")
	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], tag+" ") {
			continue
		}
		val := strings.TrimSpace(lines[i][len(tag)+1:])
		if tag == "AF" || tag == "AU" {
			// One author per line, lead author on the tag line itself.
			if val != "" {
				vals = append(vals, wsRun.ReplaceAllString(val, " "))
			}
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "   ") {
				i++
				vals = append(vals, strings.TrimSpace(lines[i]))
			}
			continue
		}
		for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "   ") {
			i++
			val += " " + strings.TrimSpace(lines[i])
		}
		if val != "" {
			vals = append(vals, wsRun.ReplaceAllString(val, " "))
		}
	}
	return vals
}

func cleanAbstract(abstract string) string {
	abstract = strings.ReplaceAll(abstract, "\n", " ")
	return strings.TrimSpace(wsRun.ReplaceAllString(abstract, " "))
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
