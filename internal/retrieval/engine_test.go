package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeVec struct {
	matches []qdrant.Match
	err     error
	calls   int
}

func (f *fakeVec) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]qdrant.Match, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeExpander struct{ terms []string }

func (f *fakeExpander) Expand(query string) []string { return f.terms }

func match(id, docID uuid.UUID, score float64, kind, text string, modified time.Time, tags ...string) qdrant.Match {
	tagsAny := make([]any, 0, len(tags))
	for _, t := range tags {
		tagsAny = append(tagsAny, t)
	}
	return qdrant.Match{
		ID:    id.String(),
		Score: score,
		Payload: map[string]any{
			"document_id":   docID.String(),
			"title":         "Doc " + docID.String()[:4],
			"source_url":    "https://wiki.example/" + docID.String()[:4],
			"source_kind":   kind,
			"text":          text,
			"last_modified": modified.Format(time.RFC3339),
			"alias_tags":    tagsAny,
		},
	}
}

func newTestEngine(t *testing.T, emb *fakeEmbedder, vec *fakeVec, exp Expander, kw *KeywordIndex) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	e := NewEngine(logger.NewNop(), cfg, emb, vec, kw, exp, nil)
	e.Now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestRetrieveSortsByCombinedScoreWithStableTies(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	docA, docB := uuid.New(), uuid.New()
	idLow := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idHigh := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	vec := &fakeVec{matches: []qdrant.Match{
		match(idHigh, docB, 0.9, domain.SourceKindWiki, "deployment runbook steps", now),
		match(idLow, docA, 0.9, domain.SourceKindWiki, "deployment pipeline overview", now),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "deployment", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(set.Results))
	}
	// Identical component scores: chunk ID ascending breaks the tie.
	if set.Results[0].ChunkID != idLow || set.Results[1].ChunkID != idHigh {
		t.Fatalf("tie-break violated: %v then %v", set.Results[0].ChunkID, set.Results[1].ChunkID)
	}
	for i := 1; i < len(set.Results); i++ {
		if set.Results[i].CombinedScore > set.Results[i-1].CombinedScore {
			t.Fatalf("results not sorted desc at %d", i)
		}
	}
}

func TestRetrieveCombinedScoreFormula(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	id, docID := uuid.New(), uuid.New()
	vec := &fakeVec{matches: []qdrant.Match{
		match(id, docID, 0.8, domain.SourceKindConfluence, "release checklist", now.AddDate(0, 0, -90)),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "release checklist", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(set.Results))
	}
	r := set.Results[0]
	want := 0.50*r.ScoreVector + 0.20*r.ScoreKeyword + 0.15*0.8 + 0.10*0.5 + 0.05*r.ScoreAliasBoost
	if diff := r.CombinedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("combined score %v, want %v", r.CombinedScore, want)
	}
}

func TestRetrieveAliasBoostApplied(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	id, docID := uuid.New(), uuid.New()
	vec := &fakeVec{matches: []qdrant.Match{
		match(id, docID, 0.8, domain.SourceKindWiki, "sre on-call rotation", now, "sre"),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, &fakeExpander{terms: []string{"sre"}}, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "Who manages Stallions?", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Expansions) != 1 || set.Expansions[0] != "sre" {
		t.Fatalf("expected sre expansion, got %v", set.Expansions)
	}
	if len(set.Results) != 1 || set.Results[0].ScoreAliasBoost != 0.05 {
		t.Fatalf("expected alias boost 0.05, got %+v", set.Results)
	}
}

func TestRetrieveKeywordFallbackOnEmbedFailure(t *testing.T) {
	kw := NewKeywordIndex()
	docID := uuid.New()
	kw.Put(ChunkMeta{
		ChunkID:      uuid.New(),
		DocumentID:   docID,
		Title:        "Deploy",
		URL:          "https://wiki.example/deploy",
		SourceKind:   domain.SourceKindWiki,
		LastModified: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Text:         "deployment process requires approval from the release manager",
	})
	vec := &fakeVec{}
	e := newTestEngine(t, &fakeEmbedder{err: errors.New("model unavailable")}, vec, nil, kw)

	set, err := e.Retrieve(context.Background(), "deployment process", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if set.Mode != domain.RetrievalModeKeywordOnly {
		t.Fatalf("expected keyword-only mode, got %q", set.Mode)
	}
	if len(set.Results) != 1 {
		t.Fatalf("expected keyword hit, got %d results", len(set.Results))
	}
	if vec.calls != 0 {
		t.Fatalf("vector search must not run without embeddings")
	}
}

func TestRetrieveHardIndexFailure(t *testing.T) {
	vec := &fakeVec{err: &qdrant.OperationError{Code: qdrant.OperationErrorTransportFailed, Operation: "search"}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	_, err := e.Retrieve(context.Background(), "anything", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.CodeOf(err) != apperr.CodeRetrievalUnavailable {
		t.Fatalf("expected RetrievalUnavailable, got %v", err)
	}
}

func TestRetrieveMinVectorScoreGate(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	vec := &fakeVec{matches: []qdrant.Match{
		match(uuid.New(), uuid.New(), 0.1, domain.SourceKindWiki, "barely related text", now),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "unrelated", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 0 {
		t.Fatalf("vector score below 0.20 must be dropped, got %+v", set.Results)
	}
}

func TestRetrieveAtMostTwoChunksPerDocument(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	docID := uuid.New()
	var matches []qdrant.Match
	for i := 0; i < 4; i++ {
		matches = append(matches, match(uuid.New(), docID, 0.9-float64(i)*0.01, domain.SourceKindWiki,
			fmt.Sprintf("section %d has distinct wording about topic %d entirely", i, i), now))
	}
	vec := &fakeVec{matches: matches}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "topic", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 2 {
		t.Fatalf("expected 2 chunks for one document, got %d", len(set.Results))
	}
}

func TestRetrieveNearDuplicateDropped(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	text := "the deployment process requires a change ticket and approval from the release manager before rollout"
	vec := &fakeVec{matches: []qdrant.Match{
		match(uuid.New(), uuid.New(), 0.9, domain.SourceKindWiki, text, now),
		match(uuid.New(), uuid.New(), 0.85, domain.SourceKindWiki, text, now),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "deployment", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 1 {
		t.Fatalf("expected near-duplicate to be dropped, got %d results", len(set.Results))
	}
}

func TestRetrieveSharedPrefixChunksBothKept(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// Identical excerpt-length prefix, substantially different bodies.
	prefix := strings.Repeat("shared deployment policy baseline wording ", 12)
	var tailA, tailB strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&tailA, "rollback%d ", i)
		fmt.Fprintf(&tailB, "escalation%d ", i)
	}
	vec := &fakeVec{matches: []qdrant.Match{
		match(uuid.New(), uuid.New(), 0.9, domain.SourceKindWiki, prefix+tailA.String(), now),
		match(uuid.New(), uuid.New(), 0.85, domain.SourceKindWiki, prefix+tailB.String(), now),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "deployment", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(set.Results) != 2 {
		t.Fatalf("chunks diverging past the excerpt cap must both survive, got %d results", len(set.Results))
	}
	if set.Results[0].Excerpt != set.Results[1].Excerpt {
		t.Fatalf("test premise broken: excerpts should be identical")
	}
}

func TestRetrievePrecisionFloorsRelax(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// Wiki authority 0.9 and fresh docs: combined ≈ 0.5*vec + 0.235.
	vec := &fakeVec{matches: []qdrant.Match{
		match(uuid.New(), uuid.New(), 0.95, domain.SourceKindWiki, "alpha text one", now),
		match(uuid.New(), uuid.New(), 0.60, domain.SourceKindWiki, "beta text two", now),
		match(uuid.New(), uuid.New(), 0.58, domain.SourceKindWiki, "gamma text three", now),
	}}
	e := newTestEngine(t, &fakeEmbedder{}, vec, nil, NewKeywordIndex())

	set, err := e.Retrieve(context.Background(), "text", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	// Nothing clears 0.75, so the floor relaxes until three fit.
	if set.FloorUsed != 0.50 {
		t.Fatalf("expected relaxed floor 0.50, got %v", set.FloorUsed)
	}
	if len(set.Results) != 3 {
		t.Fatalf("expected 3 results after relaxation, got %d", len(set.Results))
	}
}

func TestRetrieveEmbeddingCacheReused(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	emb := &fakeEmbedder{}
	vec := &fakeVec{matches: []qdrant.Match{
		match(uuid.New(), uuid.New(), 0.9, domain.SourceKindWiki, "cached text", now),
	}}
	e := newTestEngine(t, emb, vec, nil, NewKeywordIndex())

	for i := 0; i < 3; i++ {
		if _, err := e.Retrieve(context.Background(), "same query", nil); err != nil {
			t.Fatalf("retrieve: %v", err)
		}
	}
	if emb.calls != 1 {
		t.Fatalf("expected a single embedding call for identical queries, got %d", emb.calls)
	}
}

func TestExpandedQuerySetCap(t *testing.T) {
	plan := &domain.IntentPlan{SearchFocus: []string{"f1", "f2", "f3", "f4", "f5"}}
	qs := expandedQuerySet("base", []string{"e1", "e2", "e3", "e4", "e5"}, plan, 8)
	if len(qs) != 8 {
		t.Fatalf("expected cap of 8 queries, got %d: %v", len(qs), qs)
	}
	if qs[0] != "base" {
		t.Fatalf("original query must come first, got %v", qs)
	}
}
