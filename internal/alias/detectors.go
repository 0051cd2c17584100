package alias

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/normalization"
)

// Candidate is one detector emission before storage canonicalization.
type Candidate struct {
	TermA      string
	TermB      string
	Kind       string
	Confidence float64
	DocID      uuid.UUID
}

const (
	baseParenthetical  = 0.70
	baseDash           = 0.55
	baseHeader         = 0.60
	baseEmailTeam      = 0.65
	baseCooccurrence   = 0.35
	baseConversational = 0.50
)

var sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)
var parenRe = regexp.MustCompile(`([^()]{2,80})\(([^()]{2,60})\)`)
var dashRe = regexp.MustCompile(`(?m)^(.{2,80}?)\s+(?:—|–|-)\s+(.{2,60})$`)
var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
var acronymRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b`)
var teamPhraseRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]+(?:[ \t][A-Z][A-Za-z0-9]+){0,3})[ \t][Tt]eam\b`)

// DetectDocument runs every textual detector over one document and returns a
// deterministic, deduplicated candidate list.
func DetectDocument(doc *domain.Document) []Candidate {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	var out []Candidate
	out = append(out, detectParenthetical(doc)...)
	out = append(out, detectDash(doc)...)
	out = append(out, detectHeaderContent(doc)...)
	out = append(out, detectEmailTeam(doc)...)
	out = append(out, detectCooccurrence(doc)...)
	return dedupeCandidates(out)
}

// ConversationalCandidates wraps intent-analyzer alias pairs in the
// conversational detector's base confidence.
func ConversationalCandidates(pairs []domain.AliasCandidate) []Candidate {
	var out []Candidate
	for _, p := range pairs {
		a := normalization.NormalizeTerm(p.TermA)
		b := normalization.NormalizeTerm(p.TermB)
		if !validPair(a, b) {
			continue
		}
		out = append(out, Candidate{
			TermA:      a,
			TermB:      b,
			Kind:       domain.AliasKindConversational,
			Confidence: baseConversational,
		})
	}
	return dedupeCandidates(out)
}

func detectParenthetical(doc *domain.Document) []Candidate {
	var out []Candidate
	for _, sentence := range sentenceSplitRe.Split(doc.Text, -1) {
		for _, m := range parenRe.FindAllStringSubmatch(sentence, -1) {
			left := trailingPhrase(m[1], 4)
			right := normalization.NormalizeTerm(m[2])
			if !validPair(left, right) {
				continue
			}
			out = append(out, Candidate{
				TermA: left, TermB: right,
				Kind: domain.AliasKindParenthetical, Confidence: baseParenthetical,
				DocID: doc.ID,
			})
		}
	}
	return out
}

func detectDash(doc *domain.Document) []Candidate {
	var out []Candidate
	for _, m := range dashRe.FindAllStringSubmatch(doc.Text, -1) {
		right := normalization.NormalizeTerm(m[2])
		// Short right-hand side only; long tails are sentence fragments.
		if len(strings.Fields(right)) > 4 {
			continue
		}
		left := trailingPhrase(m[1], 5)
		if !validPair(left, right) {
			continue
		}
		out = append(out, Candidate{
			TermA: left, TermB: right,
			Kind: domain.AliasKindDash, Confidence: baseDash,
			DocID: doc.ID,
		})
	}
	return out
}

// detectHeaderContent pairs a section heading with the term its body keeps
// coming back to (at least three mentions).
func detectHeaderContent(doc *domain.Document) []Candidate {
	sections := splitSections(doc.Text)
	var out []Candidate
	for _, sec := range sections {
		heading := normalization.NormalizeTerm(sec.heading)
		if !normalization.ValidAliasTerm(heading) {
			continue
		}
		term, count := dominantTerm(sec.body, heading)
		if count < 3 || !validPair(heading, term) {
			continue
		}
		out = append(out, Candidate{
			TermA: heading, TermB: term,
			Kind: domain.AliasKindHeaderContent, Confidence: baseHeader,
			DocID: doc.ID,
		})
	}
	return out
}

func detectEmailTeam(doc *domain.Document) []Candidate {
	emails := normalization.Emails(doc.Text)
	if len(emails) == 0 {
		return nil
	}
	teamNames := map[string]struct{}{}
	for _, m := range teamPhraseRe.FindAllStringSubmatch(doc.Text, -1) {
		teamNames[normalization.NormalizeTerm(m[1]+" team")] = struct{}{}
	}
	var out []Candidate
	for _, email := range emails {
		local := strings.ToLower(strings.SplitN(email, "@", 2)[0])
		localToks := normalization.Tokenize(local)
		for name := range teamNames {
			// The email side is exempt from the two-token rule; the team
			// name side still has to qualify.
			if !normalization.ValidAliasTerm(name) || !coMentioned(localToks, name) {
				continue
			}
			out = append(out, Candidate{
				TermA: strings.ToLower(email), TermB: name,
				Kind: domain.AliasKindEmailTeam, Confidence: baseEmailTeam,
				DocID: doc.ID,
			})
		}
	}
	return out
}

// detectCooccurrence slides a token window over the document and scores
// acronym/phrase pairs by normalized PMI.
func detectCooccurrence(doc *domain.Document) []Candidate {
	terms := cooccurrenceTerms(doc.Text)
	if len(terms) < 2 {
		return nil
	}
	windows := tokenWindows(doc.Text, 40, 20)
	if len(windows) < 2 {
		return nil
	}

	occur := map[string]int{}
	pair := map[[2]string]int{}
	for _, w := range windows {
		present := make([]string, 0, 4)
		for _, t := range terms {
			if strings.Contains(w, t) {
				present = append(present, t)
				occur[t]++
			}
		}
		sort.Strings(present)
		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				pair[[2]string{present[i], present[j]}]++
			}
		}
	}

	n := float64(len(windows))
	var out []Candidate
	for p, c := range pair {
		if c < 2 {
			continue
		}
		pxy := float64(c) / n
		px := float64(occur[p[0]]) / n
		py := float64(occur[p[1]]) / n
		if px <= 0 || py <= 0 || pxy >= 1 {
			continue
		}
		pmi := math.Log2(pxy / (px * py))
		npmi := pmi / -math.Log2(pxy)
		if npmi < 0.3 {
			continue
		}
		if npmi > 1 {
			npmi = 1
		}
		if !validPair(p[0], p[1]) {
			continue
		}
		out = append(out, Candidate{
			TermA: p[0], TermB: p[1],
			Kind:       domain.AliasKindCooccurrence,
			Confidence: baseCooccurrence + 0.1*npmi,
			DocID:      doc.ID,
		})
	}
	return out
}

type section struct {
	heading string
	body    string
}

func splitSections(text string) []section {
	idxs := headingRe.FindAllStringSubmatchIndex(text, -1)
	var out []section
	for i, loc := range idxs {
		heading := text[loc[2]:loc[3]]
		end := len(text)
		if i+1 < len(idxs) {
			end = idxs[i+1][0]
		}
		out = append(out, section{heading: heading, body: text[loc[1]:end]})
	}
	return out
}

// dominantTerm finds the most frequently repeated alias-shaped term in a
// section body, ignoring the heading itself.
func dominantTerm(body, heading string) (string, int) {
	counts := map[string]int{}
	lower := strings.ToLower(body)
	for _, ac := range acronymRe.FindAllString(body, -1) {
		t := strings.ToLower(ac)
		if t == heading || normalization.IsStopWord(t) {
			continue
		}
		counts[t] = strings.Count(lower, t)
	}
	for _, ph := range bodyPhrases(body) {
		if len(strings.Fields(ph)) < 2 || ph == heading {
			continue
		}
		counts[ph] = strings.Count(lower, ph)
	}
	best, bestCount := "", 0
	for t, c := range counts {
		if c > bestCount || (c == bestCount && t < best) {
			best, bestCount = t, c
		}
	}
	return best, bestCount
}

// bodyPhrases returns maximal content-token runs plus their interior bigrams,
// so a phrase repeated with varying tails ("release train runs", "release
// train slot") still counts as one recurring term.
func bodyPhrases(body string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, ph := range normalization.NounPhrases(body) {
		add(ph)
		toks := strings.Fields(ph)
		for i := 0; i+1 < len(toks); i++ {
			add(toks[i] + " " + toks[i+1])
		}
	}
	return out
}

func cooccurrenceTerms(text string) []string {
	seen := map[string]struct{}{}
	for _, ac := range acronymRe.FindAllString(text, -1) {
		seen[strings.ToLower(ac)] = struct{}{}
	}
	for _, ph := range normalization.NounPhrases(text) {
		if len(strings.Fields(ph)) >= 2 && len(ph) <= 40 {
			seen[ph] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		if normalization.ValidAliasTerm(t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	// Cap the candidate set so pathological documents stay cheap.
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func tokenWindows(text string, size, stride int) []string {
	toks := normalization.Tokenize(text)
	if len(toks) == 0 {
		return nil
	}
	var out []string
	for start := 0; start < len(toks); start += stride {
		end := start + size
		if end > len(toks) {
			end = len(toks)
		}
		out = append(out, strings.Join(toks[start:end], " "))
		if end == len(toks) {
			break
		}
	}
	return out
}

func trailingPhrase(s string, maxTokens int) string {
	norm := normalization.NormalizeTerm(s)
	parts := strings.Fields(norm)
	if len(parts) > maxTokens {
		parts = parts[len(parts)-maxTokens:]
	}
	return normalization.NormalizeTerm(strings.Join(parts, " "))
}

func validPair(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	return normalization.ValidAliasTerm(a) && normalization.ValidAliasTerm(b)
}

func coMentioned(localToks []string, teamName string) bool {
	nameToks := normalization.ContentTokens(teamName)
	for _, lt := range localToks {
		if lt == "team" {
			continue
		}
		for _, nt := range nameToks {
			if lt == nt {
				return true
			}
		}
	}
	return false
}

func dedupeCandidates(in []Candidate) []Candidate {
	type key struct{ a, b, kind string }
	seen := map[key]struct{}{}
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		a, b := domain.CanonicalPair(c.TermA, c.TermB)
		k := key{a, b, c.Kind}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		c.TermA, c.TermB = a, b
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TermA != out[j].TermA {
			return out[i].TermA < out[j].TermA
		}
		if out[i].TermB != out[j].TermB {
			return out[i].TermB < out[j].TermB
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
