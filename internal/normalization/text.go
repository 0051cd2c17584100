package normalization

import (
	"regexp"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "it": {}, "its": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "we": {}, "you": {}, "they": {}, "he": {}, "she": {}, "i": {},
	"do": {}, "does": {}, "did": {}, "has": {}, "have": {}, "had": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {}, "not": {},
	"no": {}, "so": {}, "if": {}, "then": {}, "than": {}, "about": {},
	"into": {}, "over": {}, "under": {}, "what": {}, "which": {}, "who": {},
	"whom": {}, "how": {}, "when": {}, "where": {}, "why": {}, "there": {},
	"their": {}, "our": {}, "your": {}, "my": {}, "me": {}, "us": {},
}

var wsRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace lowercases s and collapses runs of whitespace into one space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(strings.ToLower(s), " "))
}

// IsStopWord reports whether the lowercased token is a stop word.
func IsStopWord(tok string) bool {
	_, ok := stopWords[strings.ToLower(tok)]
	return ok
}

// Tokenize splits s into lowercased alphanumeric tokens.
func Tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// ContentTokens tokenizes s and strips stop words.
func ContentTokens(s string) []string {
	toks := Tokenize(s)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if IsStopWord(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NormalizeTerm prepares a candidate alias endpoint: lowercase, collapse
// whitespace, strip leading/trailing stop words.
func NormalizeTerm(s string) string {
	s = CollapseWhitespace(s)
	parts := strings.Fields(s)
	for len(parts) > 0 && IsStopWord(parts[0]) {
		parts = parts[1:]
	}
	for len(parts) > 0 && IsStopWord(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " ")
}

// IsAcronym reports whether s is a plausible acronym: letters only, 2-6 chars.
func IsAcronym(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ValidAliasTerm reports whether a normalized term qualifies as an alias
// endpoint: at least two tokens, or a known-shaped acronym, and not composed
// entirely of stop words.
func ValidAliasTerm(s string) bool {
	s = NormalizeTerm(s)
	if s == "" {
		return false
	}
	parts := strings.Fields(s)
	if len(parts) >= 2 {
		return true
	}
	return IsAcronym(parts[0])
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Emails extracts email addresses from s.
func Emails(s string) []string {
	return emailRe.FindAllString(s, -1)
}

var personNameRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t][A-Z][a-z]+){1,2}\b`)

// PersonNames extracts title-cased name candidates (two or three capitalized
// words) from s. Single capitalized words are too noisy to count.
func PersonNames(s string) []string {
	raw := personNameRe.FindAllString(s, -1)
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = wsRe.ReplaceAllString(n, " ")
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// NounPhrases extracts rough noun-phrase candidates from a query: maximal runs
// of non-stop-word tokens, plus each individual content token.
func NounPhrases(s string) []string {
	toks := Tokenize(s)
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	var run []string
	flush := func() {
		if len(run) == 0 {
			return
		}
		add(strings.Join(run, " "))
		run = nil
	}
	for _, t := range toks {
		if IsStopWord(t) {
			flush()
			continue
		}
		add(t)
		run = append(run, t)
	}
	flush()
	return out
}
