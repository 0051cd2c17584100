package ingest

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var htmlTagRe = regexp.MustCompile(`(?i)</?(html|body|div|p|h[1-6]|table|ul|ol|li|span|a|img|br)\b`)

// LooksLikeHTML is a cheap sniff for wiki payloads that arrive as HTML
// instead of Markdown.
func LooksLikeHTML(content string) bool {
	return htmlTagRe.MatchString(content)
}

// ToMarkdown converts an HTML payload to Markdown for chunking. Conversion
// failures fall back to the raw input stripped of tags rather than dropping
// the document.
func ToMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return stripTags(html)
	}
	return strings.TrimSpace(md)
}

var anyTagRe = regexp.MustCompile(`<[^>]+>`)

func stripTags(html string) string {
	return strings.TrimSpace(anyTagRe.ReplaceAllString(html, " "))
}
