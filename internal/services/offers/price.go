// Package offers holds helpers that read offer attributes out of free text.
package offers

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern    = regexp.MustCompile(`(?:R\$\s?)?(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)
	brlPricePattern = regexp.MustCompile(`R\$\s?(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)
)

// ExtractPrice returns the first price-like number of text with Brazilian
// separators normalized ("R$ 1.200,50" becomes "1200.50"), or "" when absent
func ExtractPrice(text string) string {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return normalizeBRL(m[1])
}

// ExtractBRLPrice returns the first value explicitly prefixed by "R$"
func ExtractBRLPrice(text string) (float64, bool) {
	m := brlPricePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(normalizeBRL(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func normalizeBRL(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
}
