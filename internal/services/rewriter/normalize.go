package rewriter

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// inlineMarkdown renders only emphasis and code spans. Lists, headings and
// links are left as typed, since Telegram HTML has no tags for them.
var inlineMarkdown = goldmark.New(
	goldmark.WithParser(parser.NewParser(
		parser.WithBlockParsers(util.Prioritized(parser.NewParagraphParser(), 1000)),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewCodeSpanParser(), 100),
			util.Prioritized(parser.NewEmphasisParser(), 200),
			util.Prioritized(parser.NewRawHTMLParser(), 300),
		),
	)),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var tagReplacer = strings.NewReplacer(
	"<strong>", "<b>", "</strong>", "</b>",
	"<em>", "<i>", "</em>", "</i>",
	"</p>\n", "\n\n", "</p>", "\n\n", "<p>", "",
)

var breakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)

// trailingCallToAction matches 🛒 🖱️ ⬇️ 👉 🔗 and whitespace at the end of the text
var trailingCallToAction = regexp.MustCompile(`[\x{1F6D2}\x{1F5B1}\x{2B07}\x{1F449}\x{1F517}\x{FE0F}\s]+$`)

// NormalizeHTML turns LLM output into Telegram-safe HTML: markdown emphasis
// becomes <b>/<i>, paragraphs and breaks become newlines.
func NormalizeHTML(text string) string {
	text = breakPattern.ReplaceAllString(text, "\n")

	if strings.ContainsAny(text, "*_`") {
		var buf bytes.Buffer
		if err := inlineMarkdown.Convert([]byte(text), &buf); err == nil {
			text = buf.String()
		}
	}

	text = tagReplacer.Replace(text)
	text = breakPattern.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// TrimTrailingCallToAction removes cart and arrow emoji the model tends to add at the end
func TrimTrailingCallToAction(text string) string {
	return strings.TrimSpace(trailingCallToAction.ReplaceAllString(strings.TrimRight(text, " \n\t"), ""))
}
