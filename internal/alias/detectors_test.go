package alias

import (
	"testing"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
)

func findCandidate(t *testing.T, cands []Candidate, kind, termA, termB string) *Candidate {
	t.Helper()
	a, b := domain.CanonicalPair(termA, termB)
	for i := range cands {
		if cands[i].Kind == kind && cands[i].TermA == a && cands[i].TermB == b {
			return &cands[i]
		}
	}
	return nil
}

func TestDetectParenthetical(t *testing.T) {
	doc := &domain.Document{
		ID:   uuid.New(),
		Text: "The Site Reliability Engineering (SRE) group owns production. Contact them on call.",
	}
	cands := DetectDocument(doc)
	c := findCandidate(t, cands, domain.AliasKindParenthetical, "site reliability engineering", "sre")
	if c == nil {
		t.Fatalf("expected parenthetical candidate, got %+v", cands)
	}
	if c.Confidence != 0.70 {
		t.Fatalf("expected base confidence 0.70, got %v", c.Confidence)
	}
}

func TestDetectDashShortRightOnly(t *testing.T) {
	doc := &domain.Document{
		ID: uuid.New(),
		Text: "Deployment Pipeline - release train\n" +
			"Build System - this right hand side is far too long to qualify as an alias endpoint here\n",
	}
	cands := DetectDocument(doc)
	if findCandidate(t, cands, domain.AliasKindDash, "deployment pipeline", "release train") == nil {
		t.Fatalf("expected dash candidate, got %+v", cands)
	}
	for _, c := range cands {
		if c.Kind == domain.AliasKindDash && (c.TermA == "build system" || c.TermB == "build system") {
			t.Fatalf("long right-hand side should be rejected: %+v", c)
		}
	}
}

func TestDetectEmailTeam(t *testing.T) {
	doc := &domain.Document{
		ID: uuid.New(),
		Text: "Reach the SRE Team at sre-oncall@corp.example for incidents.\n" +
			"The SRE Team handles paging.",
	}
	cands := DetectDocument(doc)
	c := findCandidate(t, cands, domain.AliasKindEmailTeam, "sre-oncall@corp.example", "sre team")
	if c == nil {
		t.Fatalf("expected email-team candidate, got %+v", cands)
	}
	if c.Confidence != 0.65 {
		t.Fatalf("expected base confidence 0.65, got %v", c.Confidence)
	}
}

func TestDetectHeaderContent(t *testing.T) {
	doc := &domain.Document{
		ID: uuid.New(),
		Text: "# Deployment Process\n" +
			"The release train runs weekly. Every release train entry needs sign-off. " +
			"Missing a release train slot means waiting a week.\n",
	}
	cands := DetectDocument(doc)
	if findCandidate(t, cands, domain.AliasKindHeaderContent, "deployment process", "release train") == nil {
		t.Fatalf("expected header-content candidate, got %+v", cands)
	}
}

func TestDetectDocumentDeterministic(t *testing.T) {
	doc := &domain.Document{
		ID: uuid.New(),
		Text: "The Site Reliability Engineering (SRE) group, also called the Stallions, " +
			"runs on-call. SRE and Stallions appear together often. SRE owns paging. " +
			"The Stallions rotate weekly with SRE coverage.",
	}
	first := DetectDocument(doc)
	second := DetectDocument(doc)
	if len(first) != len(second) {
		t.Fatalf("detector output not stable: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("candidate %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestConversationalCandidatesRejectStopWordPairs(t *testing.T) {
	cands := ConversationalCandidates([]domain.AliasCandidate{
		{TermA: "the of", TermB: "release train"},
		{TermA: "incident commander", TermB: "IC"},
	})
	if len(cands) != 1 {
		t.Fatalf("expected only the valid pair, got %+v", cands)
	}
	if cands[0].Kind != domain.AliasKindConversational || cands[0].Confidence != 0.50 {
		t.Fatalf("unexpected candidate: %+v", cands[0])
	}
}
