package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/links"
)

var (
	strayPlaceholder = regexp.MustCompile(`\[LINK_\d+\]`)
	nonWordChars     = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// LinkButton is the HTML that replaces a resolved placeholder
func LinkButton(url string) string {
	return fmt.Sprintf("🛒 <a href='%s'>Pegar promoção</a>", url)
}

// Assemble puts the final links back into the rewritten text. Dropped links
// remove their placeholder, placeholders invented by the rewriter are removed,
// and the signature is appended after a blank line.
func Assemble(text string, resolved models.PlaceholderMap, signature string) string {
	// Longest first so [LINK_1] never matches inside [LINK_10]
	keys := make([]string, 0, len(resolved))
	for k := range resolved {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return len(keys[i]) > len(keys[j]) || (len(keys[i]) == len(keys[j]) && keys[i] < keys[j])
	})

	for _, placeholder := range keys {
		replacement := ""
		if url := resolved[placeholder]; url != nil {
			replacement = LinkButton(*url)
		}
		text = strings.ReplaceAll(text, placeholder, replacement)
	}

	text = strayPlaceholder.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if sig := strings.TrimSpace(signature); sig != "" {
		text += "\n\n" + sig
	}
	return text
}

// fallbackTitle builds a dedup title from the first line of a message without links
func fallbackTitle(text string) string {
	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	line = strings.ToLower(strings.TrimSpace(nonWordChars.ReplaceAllString(line, "")))
	if utf8.RuneCountInString(line) > 50 {
		line = string([]rune(line)[:50])
	}
	return line
}

// firstReference is the first link of text without its query string
func firstReference(text string) string {
	urls := links.ExtractURLs(text)
	if len(urls) == 0 {
		return ""
	}
	return strings.SplitN(urls[0], "?", 2)[0]
}
