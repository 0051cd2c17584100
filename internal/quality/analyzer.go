package quality

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/normalization"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

const (
	weightCoverage     = 0.30
	weightAuthority    = 0.20
	weightConflict     = 0.15
	weightComplexity   = 0.10
	weightCompleteness = 0.15
	weightCertainty    = 0.10

	// Pre-generation confidence is pro-rated over the first four factors.
	preGenerationWeight = weightCoverage + weightAuthority + weightConflict + weightComplexity
)

var teamInquiryMarkers = []string{"team", "members", "lead", "who is", "contact", "on-call", "oncall"}

// Analyzer scores a retrieval set for a query: cross-source conflicts,
// coverage, authority and a clamped confidence value.
type Analyzer struct {
	log *logger.Logger

	// Now is swappable for deterministic freshness windows in tests.
	Now func() time.Time
}

func NewAnalyzer(log *logger.Logger) *Analyzer {
	return &Analyzer{
		log: log.With("service", "QualityAnalyzer"),
		Now: time.Now,
	}
}

// IsTeamInquiry applies the heuristic marker set to the query.
func IsTeamInquiry(query string) bool {
	q := strings.ToLower(query)
	for _, m := range teamInquiryMarkers {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}

// Analyze produces the pre-generation quality report. The confidence here
// uses only the coverage, authority, conflict and complexity factors.
func (a *Analyzer) Analyze(query string, intentType string, results []domain.RetrievalResult) *domain.QualityReport {
	report := &domain.QualityReport{Conflicts: []domain.Conflict{}, Notes: []string{}}

	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	report.Coverage = coverage(query, top)
	report.MeanAuthority = meanAuthority(top)

	if intentType == domain.IntentTeamInquiry || IsTeamInquiry(query) {
		report.Conflicts = append(report.Conflicts, a.teamConflicts(query, results)...)
	}
	report.Conflicts = append(report.Conflicts, contradictionHeuristic(query, results)...)

	report.Confidence = a.preConfidence(query, report)
	return report
}

// Finalize folds the post-generation factors into the confidence: response
// completeness (heuristic) and the model's self-reported certainty.
func (a *Analyzer) Finalize(report *domain.QualityReport, query, response string, aiCertainty float64) float64 {
	if report == nil {
		return 0
	}
	completeness := responseCompleteness(query, response)
	conf := weightCoverage*report.Coverage +
		weightAuthority*report.MeanAuthority +
		weightConflict*conflictFactor(report.Conflicts) +
		weightComplexity*complexityFactor(query) +
		weightCompleteness*completeness +
		weightCertainty*clamp01(aiCertainty)
	report.Confidence = clamp01(conf)
	return report.Confidence
}

func (a *Analyzer) preConfidence(query string, report *domain.QualityReport) float64 {
	conf := weightCoverage*report.Coverage +
		weightAuthority*report.MeanAuthority +
		weightConflict*conflictFactor(report.Conflicts) +
		weightComplexity*complexityFactor(query)
	return clamp01(conf / preGenerationWeight)
}

// memberList is the per-source extraction for team inquiries.
type memberList struct {
	docID    uuid.UUID
	url      string
	title    string
	modified time.Time
	members  map[string]struct{}
}

// teamConflicts pairwise-compares extracted member sets across sources.
func (a *Analyzer) teamConflicts(query string, results []domain.RetrievalResult) []domain.Conflict {
	lists := extractMemberLists(results)
	if len(lists) == 0 {
		return nil
	}

	topic := teamTopic(query)
	var conflicts []domain.Conflict

	var withMembers []memberList
	for _, l := range lists {
		if len(l.members) > 0 {
			withMembers = append(withMembers, l)
		}
	}

	if len(withMembers) == 1 && len(lists) > 1 {
		conflicts = append(conflicts, domain.Conflict{
			Topic:      topic,
			Sources:    []string{withMembers[0].url},
			Kind:       domain.ConflictMissingInfo,
			Severity:   domain.SeverityLow,
			Suggestion: "Only one source lists members; verify against the owning team's page.",
		})
		return conflicts
	}

	for i := 0; i < len(withMembers); i++ {
		for j := i + 1; j < len(withMembers); j++ {
			newer, older := withMembers[i], withMembers[j]
			if older.modified.After(newer.modified) {
				newer, older = older, newer
			}
			missing := difference(newer.members, older.members)
			if len(missing) == 0 && len(difference(older.members, newer.members)) == 0 {
				continue
			}
			gap := newer.modified.Sub(older.modified)
			switch {
			// Directional: the stale source must omit members the newer
			// one lists. Extra names only on the older side do not make
			// the newer page outdated.
			case gap >= 90*24*time.Hour && len(missing) > 0:
				conflicts = append(conflicts, domain.Conflict{
					Topic:    topic,
					Sources:  []string{newer.url, older.url},
					Kind:     domain.ConflictOutdated,
					Severity: domain.SeverityMed,
					Suggestion: fmt.Sprintf(
						"%s was last updated %d days before %s and omits: %s.",
						older.title, int(gap.Hours()/24), newer.title, strings.Join(missing, ", ")),
				})
			case gap <= 30*24*time.Hour:
				conflicts = append(conflicts, domain.Conflict{
					Topic:      topic,
					Sources:    []string{newer.url, older.url},
					Kind:       domain.ConflictContradictory,
					Severity:   domain.SeverityHigh,
					Suggestion: "Both sources are recent but disagree; confirm with the team directly.",
				})
			}
		}
	}
	return conflicts
}

func extractMemberLists(results []domain.RetrievalResult) []memberList {
	byDoc := map[uuid.UUID]*memberList{}
	var order []uuid.UUID
	for _, r := range results {
		l, ok := byDoc[r.DocumentID]
		if !ok {
			l = &memberList{
				docID:    r.DocumentID,
				url:      r.URL,
				title:    r.Title,
				modified: r.LastModified,
				members:  map[string]struct{}{},
			}
			byDoc[r.DocumentID] = l
			order = append(order, r.DocumentID)
		}
		for _, name := range normalization.PersonNames(r.Excerpt) {
			l.members[strings.ToLower(name)] = struct{}{}
		}
		for _, email := range normalization.Emails(r.Excerpt) {
			l.members[strings.ToLower(email)] = struct{}{}
		}
	}
	out := make([]memberList, 0, len(order))
	for _, id := range order {
		out = append(out, *byDoc[id])
	}
	return out
}

// contradictionHeuristic flags top-3 sources that cover the same query terms
// but disagree on polarity (one negates what the other states).
func contradictionHeuristic(query string, results []domain.RetrievalResult) []domain.Conflict {
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) < 2 {
		return nil
	}
	qTerms := normalization.ContentTokens(query)
	if len(qTerms) == 0 {
		return nil
	}

	var conflicts []domain.Conflict
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			a, b := top[i], top[j]
			if a.DocumentID == b.DocumentID {
				continue
			}
			if termOverlap(qTerms, a.Excerpt) < 0.5 || termOverlap(qTerms, b.Excerpt) < 0.5 {
				continue
			}
			if negates(a.Excerpt) != negates(b.Excerpt) {
				conflicts = append(conflicts, domain.Conflict{
					Topic:      strings.Join(qTerms, " "),
					Sources:    []string{a.URL, b.URL},
					Kind:       domain.ConflictContradictory,
					Severity:   domain.SeverityLow,
					Suggestion: "Sources disagree on whether this still applies; prefer the fresher, higher-authority one.",
				})
			}
		}
	}
	return conflicts
}

var negationMarkers = []string{"no longer", "deprecated", "not ", "never ", "discontinued", "retired"}

func negates(text string) bool {
	t := strings.ToLower(text)
	for _, m := range negationMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

func termOverlap(qTerms []string, text string) float64 {
	if len(qTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hit := 0
	for _, t := range qTerms {
		if strings.Contains(lower, t) {
			hit++
		}
	}
	return float64(hit) / float64(len(qTerms))
}

// coverage is the fraction of query content terms present in the top chunks.
func coverage(query string, top []domain.RetrievalResult) float64 {
	qTerms := normalization.ContentTokens(query)
	if len(qTerms) == 0 || len(top) == 0 {
		return 0
	}
	var joined strings.Builder
	for _, r := range top {
		joined.WriteString(strings.ToLower(r.Excerpt))
		joined.WriteByte(' ')
		joined.WriteString(strings.ToLower(r.Title))
		joined.WriteByte(' ')
	}
	text := joined.String()
	hit := 0
	for _, t := range qTerms {
		if strings.Contains(text, t) {
			hit++
		}
	}
	return float64(hit) / float64(len(qTerms))
}

func meanAuthority(top []domain.RetrievalResult) float64 {
	if len(top) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range top {
		sum += r.Authority
	}
	return sum / float64(len(top))
}

func conflictFactor(conflicts []domain.Conflict) float64 {
	if len(conflicts) == 0 {
		return 1
	}
	penalty := 0.0
	for _, c := range conflicts {
		penalty += domain.SeverityWeight(c.Severity)
	}
	return clamp01(1 - penalty/float64(len(conflicts)))
}

func complexityFactor(query string) float64 {
	n := len(normalization.ContentTokens(query))
	if n <= 0 {
		return 1
	}
	return clamp01(1.0 / (1.0 + float64(n)/8.0))
}

// responseCompleteness is a cheap structural heuristic: did the answer engage
// with the query terms and say something of substance.
func responseCompleteness(query, response string) float64 {
	response = strings.TrimSpace(response)
	if response == "" {
		return 0
	}
	score := 0.4
	if len(response) > 200 {
		score += 0.2
	}
	score += 0.4 * termOverlap(normalization.ContentTokens(query), response)
	return clamp01(score)
}

func teamTopic(query string) string {
	terms := normalization.ContentTokens(query)
	sort.Strings(terms)
	if len(terms) == 0 {
		return "team membership"
	}
	return strings.Join(terms, " ")
}

func difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
