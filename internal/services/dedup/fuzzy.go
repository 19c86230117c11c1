package dedup

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultMinTokenLength: only tokens longer than this count toward the overlap
const DefaultMinTokenLength = 3

// FuzzyMatch reports whether candidateTitle overlaps historyText by at least
// threshold (fraction of the candidate's significant tokens found in the
// history text) and the two prices are numerically equal
func FuzzyMatch(candidateTitle, candidatePrice, historyText, historyPrice string, threshold float64) bool {
	return fuzzyMatch(candidateTitle, candidatePrice, historyText, historyPrice, threshold, DefaultMinTokenLength)
}

func fuzzyMatch(candidateTitle, candidatePrice, historyText, historyPrice string, threshold float64, minTokenLength int) bool {
	if !PricesEqual(candidatePrice, historyPrice) {
		return false
	}
	return TokenOverlap(candidateTitle, historyText, minTokenLength) >= threshold
}

// TokenOverlap returns the fraction of title tokens longer than minTokenLength
// that occur in text. A title without such tokens scores 0.
func TokenOverlap(title, text string, minTokenLength int) float64 {
	tokens := significantTokens(title, minTokenLength)
	if len(tokens) == 0 {
		return 0
	}

	haystack := strings.ToLower(text)
	found := 0
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			found++
		}
	}
	return float64(found) / float64(len(tokens))
}

func significantTokens(title string, minTokenLength int) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(title)) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if len([]rune(token)) > minTokenLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// PricesEqual compares two normalized prices by value; unparseable prices
// fall back to trimmed string equality
func PricesEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		diff := fa - fb
		return diff < 0.005 && diff > -0.005
	}
	return a == b
}
