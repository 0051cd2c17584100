package alias

import (
	"sort"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/normalization"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// Expansion is one candidate query expansion with its backing confidence.
type Expansion struct {
	Term       string
	Confidence float64
}

type readView struct {
	// byTerm maps a normalized term to its neighbors, best first.
	byTerm map[string][]Expansion
}

// Registry serves query expansions from an atomically swapped in-memory view
// of the alias_edge table. Readers never take a lock; the maintenance worker
// rebuilds and swaps the view after every discovery or decay pass.
type Registry struct {
	log  *logger.Logger
	db   *gorm.DB
	repo repos.AliasEdgeRepo

	minConfidence float64
	expansionCap  int

	view atomic.Pointer[readView]
}

func NewRegistry(db *gorm.DB, log *logger.Logger, repo repos.AliasEdgeRepo, minConfidence float64, expansionCap int) *Registry {
	if minConfidence <= 0 {
		minConfidence = 0.30
	}
	if expansionCap <= 0 {
		expansionCap = 5
	}
	r := &Registry{
		log:           log.With("service", "AliasRegistry"),
		db:            db,
		repo:          repo,
		minConfidence: minConfidence,
		expansionCap:  expansionCap,
	}
	r.view.Store(&readView{byTerm: map[string][]Expansion{}})
	return r
}

// Rebuild reloads the read view from SQL. The view is a pure cache; dropping
// it loses nothing.
func (r *Registry) Rebuild(dbc dbctx.Context) error {
	edges, err := r.repo.ListActive(dbc, r.minConfidence)
	if err != nil {
		return err
	}
	byTerm := map[string][]Expansion{}
	for _, e := range edges {
		byTerm[e.TermA] = append(byTerm[e.TermA], Expansion{Term: e.TermB, Confidence: e.Confidence})
		byTerm[e.TermB] = append(byTerm[e.TermB], Expansion{Term: e.TermA, Confidence: e.Confidence})
	}
	for t := range byTerm {
		list := byTerm[t]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Confidence != list[j].Confidence {
				return list[i].Confidence > list[j].Confidence
			}
			return list[i].Term < list[j].Term
		})
		byTerm[t] = list
	}
	r.view.Store(&readView{byTerm: byTerm})
	r.log.Debug("Alias read view rebuilt", "terms", len(byTerm), "edges", len(edges))
	return nil
}

// Expand returns up to the configured cap of expansions for the query,
// highest edge confidence first. Expansions that restate a term already in
// the query are dropped.
func (r *Registry) Expand(query string) []string {
	v := r.view.Load()
	if v == nil || len(v.byTerm) == 0 {
		return nil
	}

	present := map[string]struct{}{}
	for _, t := range normalization.Tokenize(query) {
		present[t] = struct{}{}
	}
	lowerQuery := strings.ToLower(query)

	var candidates []Expansion
	seen := map[string]struct{}{}
	for _, phrase := range normalization.NounPhrases(query) {
		for _, exp := range v.byTerm[phrase] {
			if _, ok := seen[exp.Term]; ok {
				continue
			}
			seen[exp.Term] = struct{}{}
			if containsTerm(lowerQuery, present, exp.Term) {
				continue
			}
			candidates = append(candidates, exp)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Term < candidates[j].Term
	})
	if len(candidates) > r.expansionCap {
		candidates = candidates[:r.expansionCap]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Term)
	}
	return out
}

func containsTerm(lowerQuery string, queryTokens map[string]struct{}, term string) bool {
	if strings.Contains(lowerQuery, strings.ToLower(term)) {
		return true
	}
	if _, ok := queryTokens[strings.ToLower(term)]; ok {
		return true
	}
	return false
}
