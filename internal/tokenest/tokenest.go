// Package tokenest estimates the embedding-model token cost of a
// string without invoking the model (spec.md §4.1, component C1).
package tokenest

import (
	"math"
	"strings"
	"unicode/utf8"
)

// modelLimits is the known model -> hard token limit table (spec.md §6).
var modelLimits = map[string]int{
	"BAAI/bge-small-en-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 512,
	"BAAI/bge-base-en-v1.5":                  512,
	"BAAI/bge-large-en-v1.5":                 512,
	"nomic-embed-text-v1":                    8192,
	"nomic-embed-text-v1.5":                  8192,
	"jina-embeddings-v2-base-code":           8192,
}

// DefaultModelLimit is used for any model_id not present in the table.
const DefaultModelLimit = 8192

// ModelLimit returns the hard token limit for a known model, or
// DefaultModelLimit if the model is unrecognised.
func ModelLimit(modelID string) int {
	if limit, ok := modelLimits[modelID]; ok {
		return limit
	}
	return DefaultModelLimit
}

// Estimate approximates the token count of text by classifying it as
// code-like or prose-like and applying an empirical chars-per-token
// ratio. The algorithm never invokes a real tokeniser; it must stay
// on the hot path of the chunker and the indexer.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	nChars := utf8.RuneCountInString(text)

	indicators, nonEmptyLines := countIndicators(text)
	density := float64(indicators) / float64(max(1, nonEmptyLines))

	var charsPerToken float64
	switch {
	case density >= 0.3:
		charsPerToken = 4.2
	case density >= 0.1:
		charsPerToken = 4.4
	default:
		charsPerToken = 4.8
	}

	return int(math.Ceil(float64(nChars) / charsPerToken))
}

// ExceedsLimit reports whether text's estimated token count exceeds limit.
func ExceedsLimit(text string, limit int) bool {
	return Estimate(text) > limit
}

// countIndicators counts, for each non-empty line, one indicator per
// category observed (spec.md §4.1 step 2), and returns the indicator
// total together with the number of non-empty lines.
func countIndicators(text string) (indicators int, nonEmptyLines int) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmptyLines++

		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.ContainsAny(trimmed, "{}") {
			indicators++
		}
		if strings.Contains(trimmed, ";") && !strings.HasSuffix(trimmed, ".") {
			indicators++
		}
		if strings.Contains(trimmed, "fn ") || strings.Contains(trimmed, "def ") ||
			strings.Contains(trimmed, "function ") || strings.Contains(trimmed, "func ") {
			indicators++
		}
		if strings.Contains(trimmed, "->") || strings.Contains(trimmed, "=>") || strings.Contains(trimmed, "::") {
			indicators++
		}
		if strings.HasPrefix(trimmed, "pub ") || strings.HasPrefix(trimmed, "private ") ||
			strings.HasPrefix(trimmed, "public ") {
			indicators++
		}
	}
	return indicators, nonEmptyLines
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
