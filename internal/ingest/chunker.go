package ingest

import (
	"regexp"
	"strings"

	"github.com/docsense/docsense-backend/internal/normalization"
)

// maxChunkChars bounds one chunk's text. Sections over the bound split at
// paragraph boundaries; paragraphs merge until the next one would overflow.
const maxChunkChars = 1600

// minChunkChars guards against noise chunks from stray fragments.
const minChunkChars = 40

// ChunkDraft is a chunk before IDs and embeddings are assigned. Ordinals
// are dense and deterministic for a given document text.
type ChunkDraft struct {
	Ordinal     int
	Text        string
	SectionPath []string
	TokenCount  int
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// ChunkMarkdown splits a Markdown document along its heading structure.
// Every chunk carries the path of headings above it, rooted at the document
// title.
func ChunkMarkdown(title, markdown string) []ChunkDraft {
	type section struct {
		path []string
		text string
	}

	root := []string{strings.TrimSpace(title)}
	// Heading level -> current path entry; level 1 replaces everything
	// under the root.
	stack := append([]string{}, root...)

	var sections []section
	var buf strings.Builder
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		path := make([]string, len(stack))
		copy(path, stack)
		sections = append(sections, section{path: path, text: text})
	}

	for _, line := range strings.Split(markdown, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			heading := strings.TrimSpace(m[2])
			// Depth in the stack: root occupies index 0, an h1 index 1.
			depth := level
			if depth > len(stack) {
				depth = len(stack)
			}
			stack = append(stack[:depth], heading)
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()

	var drafts []ChunkDraft
	for _, s := range sections {
		for _, text := range splitSection(s.text) {
			if len(text) < minChunkChars {
				continue
			}
			drafts = append(drafts, ChunkDraft{
				Ordinal:     len(drafts),
				Text:        text,
				SectionPath: s.path,
				TokenCount:  len(normalization.Tokenize(text)),
			})
		}
	}
	return drafts
}

// splitSection merges paragraphs greedily up to the char bound. An oversized
// single paragraph becomes its own chunk rather than splitting mid-sentence.
func splitSection(text string) []string {
	if len(text) <= maxChunkChars {
		return []string{text}
	}
	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(p) > maxChunkChars {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}
