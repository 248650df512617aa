package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scholarkit/citematch/internal/oracle"
)

// DefaultExpansionCacheSize bounds the expansion cache. Queries are
// short sentences, so a small cache covers a whole matching run.
const DefaultExpansionCacheSize = 256

// QueryExpander turns one query into several semantically-equivalent
// variants. The oracle strategy asks the language model for alternate
// phrasings; without a provider (or on any failure) a static synonym
// table supplies at most one substituted variant per recognized term.
// Expansion never fails: the worst case is the original query alone.
type QueryExpander struct {
	provider oracle.Provider
	cache    *lru.Cache[string, []string]
	logger   *slog.Logger
}

// NewQueryExpander creates an expander. provider may be nil, which
// selects the synonym fallback.
func NewQueryExpander(provider oracle.Provider, logger *slog.Logger) *QueryExpander {
	cache, _ := lru.New[string, []string](DefaultExpansionCacheSize)
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryExpander{provider: provider, cache: cache, logger: logger}
}

// Expand returns the original query first, then up to maxExpansions
// variants, deduplicated. Results are cached by query hash.
func (e *QueryExpander) Expand(ctx context.Context, query string, maxExpansions int) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{""}
	}
	if maxExpansions <= 0 {
		return []string{query}
	}

	key := expansionKey(query, maxExpansions)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	var variants []string
	if e.provider != nil {
		variants = e.oracleVariants(ctx, query, maxExpansions)
	}
	if len(variants) == 0 {
		variants = synonymVariants(query)
	}

	results := dedupe(append([]string{query}, variants...))
	if len(results) > maxExpansions+1 {
		results = results[:maxExpansions+1]
	}
	e.cache.Add(key, results)
	return results
}

// oracleVariants asks the provider for alternate phrasings as a JSON
// array. Any failure yields nil so the caller falls back.
func (e *QueryExpander) oracleVariants(ctx context.Context, query string, n int) []string {
	prompt := fmt.Sprintf(
		"Rephrase the following scientific search query %d different ways, preserving its meaning. "+
			"Respond with ONLY a JSON array of strings.\n\nQuery: %q", n, query)
	messages := []oracle.Message{
		{Role: "system", Content: "You rephrase scientific literature search queries. Respond with only a JSON array of strings."},
		{Role: "user", Content: prompt},
	}

	response, err := e.provider.Call(ctx, messages)
	if err != nil {
		e.logger.Debug("expansion_oracle_failed", slog.String("error", err.Error()))
		return nil
	}

	variants, err := parseStringArray(response)
	if err != nil {
		e.logger.Debug("expansion_parse_failed", slog.String("error", err.Error()))
		return nil
	}
	return variants
}

// synonymVariants produces one substituted variant per recognized term.
func synonymVariants(query string) []string {
	words := strings.Fields(query)
	var variants []string
	for i, w := range words {
		syn, ok := domainSynonyms[strings.ToLower(strings.Trim(w, ".,;:"))]
		if !ok {
			continue
		}
		variant := make([]string, len(words))
		copy(variant, words)
		variant[i] = syn
		variants = append(variants, strings.Join(variant, " "))
	}
	return variants
}

// parseStringArray extracts the first bracket-balanced JSON array of
// strings from text.
func parseStringArray(text string) ([]string, error) {
	start := strings.Index(text, "[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON array in response")
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				var out []string
				if err := json.Unmarshal([]byte(text[start:i+1]), &out); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON array in response")
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		norm := strings.ToLower(strings.TrimSpace(item))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, item)
	}
	return out
}

func expansionKey(query string, n int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", n, query)))
	return hex.EncodeToString(hash[:])
}
