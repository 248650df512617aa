package search

// domainSynonyms maps research-writing terms to common paraphrases.
// Used by the fallback expansion strategy: at most one substituted
// variant per recognized term.
var domainSynonyms = map[string]string{
	"effect":       "impact",
	"impact":       "effect",
	"increase":     "enhance",
	"decrease":     "reduce",
	"reduce":       "decrease",
	"emission":     "flux",
	"yield":        "productivity",
	"fertilizer":   "nutrient input",
	"nitrogen":     "N",
	"soil":         "edaphic",
	"crop":         "cropping system",
	"management":   "practice",
	"significant":  "substantial",
	"variability":  "variation",
	"assessment":   "evaluation",
	"mitigation":   "abatement",
	"application":  "addition",
	"concentration": "content",
}
