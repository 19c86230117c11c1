package links

import (
	"regexp"
	"strings"
)

// urlPattern matches explicit http(s) URLs, www. hosts and known shortener or
// marketplace hosts written without a scheme. A scheme-less marketplace host
// keeps its subdomains. Quotes, brackets and angle brackets end a match so
// URLs inside HTML attributes come out clean.
var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\.|(?:[a-z0-9-]+\.)*(?:mercadolivre\.com|shopee\.com\.br|amzn\.to/|amzlink\.to/|amz\.run/|is\.gd/|bit\.ly/|tinyurl\.com/|cutt\.ly/))[^\s"'<>()\[\]{}]+`)

// trailingNoise is stripped from the end of every match
const trailingNoise = ".,!?;:*"

type urlMatch struct {
	start, end int // byte span in the source text
	url        string
}

// ExtractURLs returns the unique URLs of text in order of first appearance.
// Scheme-less URLs get an https:// prefix.
func ExtractURLs(text string) []string {
	matches := findURLs(text)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.url]; ok {
			continue
		}
		seen[m.url] = struct{}{}
		urls = append(urls, m.url)
	}
	return urls
}

func findURLs(text string) []urlMatch {
	spans := urlPattern.FindAllStringIndex(text, -1)
	matches := make([]urlMatch, 0, len(spans))
	for _, span := range spans {
		raw := strings.TrimRight(text[span[0]:span[1]], trailingNoise)
		if !hasHost(raw) {
			continue
		}
		matches = append(matches, urlMatch{
			start: span[0],
			end:   span[0] + len(raw),
			url:   ensureScheme(raw),
		})
	}
	return matches
}

func ensureScheme(raw string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + raw
}

// hasHost rejects matches that are only a scheme, such as "https://" followed by punctuation
func hasHost(raw string) bool {
	lower := strings.ToLower(raw)
	rest := strings.TrimPrefix(strings.TrimPrefix(lower, "https://"), "http://")
	return rest != "" && strings.Trim(rest, trailingNoise+"/") != ""
}
