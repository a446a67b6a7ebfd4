package utils

import (
	"regexp"
	"strings"
	"sync"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9' ]`)

	// Cache for shingle sets to avoid recomputation on hot dedup paths.
	shingleCache sync.Map
)

// NormalizeName lowercases text and collapses whitespace so equal names map
// to the same dedup key.
func NormalizeName(name string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(name), " ")
	return strings.TrimSpace(normalized)
}

// normalizeForFuzzy produces a fuzzier form that keeps alphanumerics and
// apostrophes for n-gram shingles.
func normalizeForFuzzy(name string) string {
	normalized := nonAlnumRe.ReplaceAllString(NormalizeName(name), " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(normalized, " "))
}

// shingles creates 3-gram character shingles from the normalized name.
func shingles(normalizedName string) []string {
	cleaned := strings.ReplaceAll(normalizedName, " ", "")
	if len(cleaned) < 3 {
		if cleaned == "" {
			return []string{}
		}
		return []string{cleaned}
	}

	shingleSet := make([]string, 0, len(cleaned)-2)
	for i := 0; i < len(cleaned)-2; i++ {
		shingleSet = append(shingleSet, cleaned[i:i+3])
	}
	return shingleSet
}

// CachedShingles caches shingle sets per raw name to avoid recomputation.
func CachedShingles(name string) []string {
	if cached, ok := shingleCache.Load(name); ok {
		return cached.([]string)
	}

	result := shingles(normalizeForFuzzy(name))
	shingleCache.Store(name, result)
	return result
}

// JaccardSimilarity returns the Jaccard similarity between two shingle sets.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}

	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// NameSimilarity compares two entity names: exact normalized match is 1.0,
// otherwise trigram Jaccard similarity on the fuzzy-normalized forms.
func NameSimilarity(a, b string) float64 {
	if NormalizeName(a) == NormalizeName(b) {
		return 1.0
	}
	return JaccardSimilarity(CachedShingles(a), CachedShingles(b))
}

// Tokenize splits normalized text into terms for seed resolution and the
// fallback classifier.
func Tokenize(text string) []string {
	return strings.Fields(normalizeForFuzzy(text))
}
