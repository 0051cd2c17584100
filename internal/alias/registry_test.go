package alias

import (
	"context"
	"testing"
	"time"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type fakeAliasRepo struct {
	edges []*domain.AliasEdge
}

func (f *fakeAliasRepo) GetByPair(dbc dbctx.Context, termA, termB string) (*domain.AliasEdge, error) {
	a, b := domain.CanonicalPair(termA, termB)
	for _, e := range f.edges {
		if e.TermA == a && e.TermB == b {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeAliasRepo) Create(dbc dbctx.Context, edge *domain.AliasEdge) error {
	edge.TermA, edge.TermB = domain.CanonicalPair(edge.TermA, edge.TermB)
	f.edges = append(f.edges, edge)
	return nil
}

func (f *fakeAliasRepo) UpdateFields(dbc dbctx.Context, termA, termB string, updates map[string]interface{}) error {
	e, _ := f.GetByPair(dbc, termA, termB)
	if e == nil {
		return nil
	}
	if c, ok := updates["confidence"].(float64); ok {
		e.Confidence = c
	}
	if ls, ok := updates["last_seen"].(time.Time); ok {
		e.LastSeen = ls
	}
	return nil
}

func (f *fakeAliasRepo) ListActive(dbc dbctx.Context, minConfidence float64) ([]*domain.AliasEdge, error) {
	var out []*domain.AliasEdge
	for _, e := range f.edges {
		if e.Confidence >= minConfidence {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAliasRepo) ListAll(dbc dbctx.Context, limit int) ([]*domain.AliasEdge, error) {
	return f.edges, nil
}

func (f *fakeAliasRepo) DecayIdle(dbc dbctx.Context, factor float64, idleSince time.Time) (int64, error) {
	var n int64
	for _, e := range f.edges {
		if e.LastSeen.Before(idleSince) {
			e.Confidence *= factor
			n++
		}
	}
	return n, nil
}

func (f *fakeAliasRepo) SoftDeleteBelow(dbc dbctx.Context, floor float64) (int64, error) {
	kept := f.edges[:0]
	var n int64
	for _, e := range f.edges {
		if e.Confidence < floor {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.edges = kept
	return n, nil
}

func edge(a, b string, conf float64) *domain.AliasEdge {
	ca, cb := domain.CanonicalPair(a, b)
	return &domain.AliasEdge{TermA: ca, TermB: cb, Confidence: conf, LastSeen: time.Now().UTC()}
}

func newTestRegistry(t *testing.T, repo *fakeAliasRepo) *Registry {
	t.Helper()
	r := NewRegistry(nil, logger.NewNop(), repo, 0.30, 5)
	if err := r.Rebuild(dbctx.Context{Ctx: context.Background()}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	return r
}

func TestExpandReturnsHighestConfidenceFirst(t *testing.T) {
	repo := &fakeAliasRepo{edges: []*domain.AliasEdge{
		edge("stallions", "sre", 0.9),
		edge("stallions", "site reliability", 0.6),
	}}
	r := newTestRegistry(t, repo)

	got := r.Expand("Who manages Stallions?")
	if len(got) != 2 || got[0] != "sre" || got[1] != "site reliability" {
		t.Fatalf("unexpected expansions: %v", got)
	}
}

func TestExpandExcludesBelowFloor(t *testing.T) {
	repo := &fakeAliasRepo{edges: []*domain.AliasEdge{
		edge("stallions", "sre", 0.29),
	}}
	r := newTestRegistry(t, repo)
	if got := r.Expand("stallions oncall"); len(got) != 0 {
		t.Fatalf("below-floor edge must not expand, got %v", got)
	}
}

func TestExpandSkipsTermsAlreadyPresent(t *testing.T) {
	repo := &fakeAliasRepo{edges: []*domain.AliasEdge{
		edge("stallions", "sre", 0.9),
	}}
	r := newTestRegistry(t, repo)
	if got := r.Expand("Does SRE manage stallions?"); len(got) != 0 {
		t.Fatalf("expansion restating a query term must be dropped, got %v", got)
	}
}

func TestExpandCapsAtConfiguredLimit(t *testing.T) {
	repo := &fakeAliasRepo{edges: []*domain.AliasEdge{
		edge("stallions", "aa bb", 0.9),
		edge("stallions", "bb cc", 0.8),
		edge("stallions", "cc dd", 0.7),
		edge("stallions", "dd ee", 0.6),
		edge("stallions", "ee ff", 0.5),
		edge("stallions", "ff gg", 0.4),
	}}
	r := newTestRegistry(t, repo)
	got := r.Expand("stallions")
	if len(got) != 5 {
		t.Fatalf("expected expansion cap of 5, got %d: %v", len(got), got)
	}
	if got[0] != "aa bb" {
		t.Fatalf("expected best edge first, got %v", got)
	}
}

func TestDiscoveryReinforcesExistingEdges(t *testing.T) {
	repo := &fakeAliasRepo{edges: []*domain.AliasEdge{
		edge("stallions", "sre", 0.95),
	}}
	d := NewDiscovery(nil, logger.NewNop(), nil, repo)

	created, reinforced, err := d.Apply(context.Background(), []Candidate{
		{TermA: "sre", TermB: "stallions", Kind: domain.AliasKindParenthetical, Confidence: 0.70},
		{TermA: "release train", TermB: "deployment pipeline", Kind: domain.AliasKindDash, Confidence: 0.55},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if created != 1 || reinforced != 1 {
		t.Fatalf("expected 1 created / 1 reinforced, got %d / %d", created, reinforced)
	}
	e, _ := repo.GetByPair(dbctx.Context{}, "sre", "stallions")
	if e.Confidence != 1.0 {
		t.Fatalf("reinforcement must cap confidence at 1.0, got %v", e.Confidence)
	}
}
