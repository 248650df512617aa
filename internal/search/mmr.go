package search

import (
	"strings"
	"unicode"
)

// mmrAbstractLimit is the abstract prefix length used for the word-set
// overlap measure. Text overlap, not embeddings, so diversification has
// no dependency on the vector retriever.
const mmrAbstractLimit = 200

// MMRDiversifier selects a final top-K balancing relevance against
// redundancy with greedy Maximal Marginal Relevance. Lambda near 1
// behaves like a plain relevance sort; near 0 it maximizes dispersion.
type MMRDiversifier struct{}

// NewMMRDiversifier creates a diversifier.
func NewMMRDiversifier() *MMRDiversifier {
	return &MMRDiversifier{}
}

// Diversify picks the highest-scored item first, then repeatedly the
// remaining item maximizing lambda*score - (1-lambda)*maxSimilarity to
// the already-selected set. The chosen item's max similarity is
// recorded as its DiversityPenalty. Inputs no larger than topK return
// unchanged, order and content.
func (d *MMRDiversifier) Diversify(results []*RerankedCandidate, topK int, lambda float64) []*RerankedCandidate {
	if len(results) <= topK {
		return results
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	wordSets := make([]map[string]struct{}, len(results))
	for i, r := range results {
		wordSets[i] = overlapWords(r.Paper.Title, r.Paper.Abstract)
	}

	// First pick: highest final score.
	bestIdx := 0
	for i, r := range results {
		if r.FinalScore > results[bestIdx].FinalScore {
			bestIdx = i
		}
	}

	selected := make([]*RerankedCandidate, 0, topK)
	selectedSets := make([]map[string]struct{}, 0, topK)
	remaining := make([]int, 0, len(results))
	for i := range results {
		if i != bestIdx {
			remaining = append(remaining, i)
		}
	}
	results[bestIdx].DiversityPenalty = 0
	selected = append(selected, results[bestIdx])
	selectedSets = append(selectedSets, wordSets[bestIdx])

	for len(selected) < topK && len(remaining) > 0 {
		bestPos := -1
		bestValue := 0.0
		bestPenalty := 0.0
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, s := range selectedSets {
				if sim := jaccard(wordSets[idx], s); sim > maxSim {
					maxSim = sim
				}
			}
			value := lambda*results[idx].FinalScore - (1-lambda)*maxSim
			if bestPos < 0 || value > bestValue {
				bestPos = pos
				bestValue = value
				bestPenalty = maxSim
			}
		}

		idx := remaining[bestPos]
		results[idx].DiversityPenalty = bestPenalty
		selected = append(selected, results[idx])
		selectedSets = append(selectedSets, wordSets[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

// overlapWords builds the word set of "title + abstract-prefix".
func overlapWords(title, abstract string) map[string]struct{} {
	if len(abstract) > mmrAbstractLimit {
		abstract = abstract[:mmrAbstractLimit]
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(title+" "+abstract), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = struct{}{}
	}
	return words
}

// jaccard is |a ∩ b| / |a ∪ b|; empty sets yield 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for w := range small {
		if _, ok := large[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
