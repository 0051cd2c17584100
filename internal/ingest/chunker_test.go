package ingest

import (
	"reflect"
	"strings"
	"testing"

	"github.com/docsense/docsense-backend/internal/domain"
)

const sampleDoc = `Intro paragraph about the deployment platform and how teams use it day to day.

# Deployment

## Pipeline

The release pipeline promotes builds from staging to production. Approvals are
required for production promotions and the canary stage gates the rollout.

## Rollback

To roll back, redeploy the previous build number from the pipeline history.
The database migrations are forward-only, so rollbacks never touch schema.

# On-call

The SRE team owns the deployment platform pager. Escalations go through the
incident channel.`

func TestChunkMarkdownSectionPaths(t *testing.T) {
	drafts := ChunkMarkdown("Deploy Guide", sampleDoc)
	if len(drafts) < 4 {
		t.Fatalf("expected a chunk per section, got %d", len(drafts))
	}

	byText := func(marker string) *ChunkDraft {
		for i := range drafts {
			if strings.Contains(drafts[i].Text, marker) {
				return &drafts[i]
			}
		}
		return nil
	}

	intro := byText("Intro paragraph")
	if intro == nil || !reflect.DeepEqual(intro.SectionPath, []string{"Deploy Guide"}) {
		t.Fatalf("intro path wrong: %+v", intro)
	}
	pipeline := byText("release pipeline promotes")
	if pipeline == nil || !reflect.DeepEqual(pipeline.SectionPath, []string{"Deploy Guide", "Deployment", "Pipeline"}) {
		t.Fatalf("pipeline path wrong: %+v", pipeline)
	}
	oncall := byText("owns the deployment platform pager")
	if oncall == nil || !reflect.DeepEqual(oncall.SectionPath, []string{"Deploy Guide", "On-call"}) {
		t.Fatalf("on-call path wrong: %+v", oncall)
	}
}

func TestChunkMarkdownOrdinalsAreDense(t *testing.T) {
	drafts := ChunkMarkdown("Doc", sampleDoc)
	for i, d := range drafts {
		if d.Ordinal != i {
			t.Fatalf("ordinal %d at index %d", d.Ordinal, i)
		}
		if d.TokenCount == 0 {
			t.Fatalf("chunk %d has zero token count", i)
		}
	}
}

func TestChunkMarkdownIsDeterministic(t *testing.T) {
	a := ChunkMarkdown("Doc", sampleDoc)
	b := ChunkMarkdown("Doc", sampleDoc)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("re-chunking identical input produced different drafts")
	}

	docID := domain.DocumentID("https://wiki/doc")
	for i := range a {
		if domain.ChunkID(docID, a[i].Ordinal) != domain.ChunkID(docID, b[i].Ordinal) {
			t.Fatal("chunk IDs must be stable across re-chunking")
		}
	}
}

func TestChunkMarkdownSplitsOversizedSections(t *testing.T) {
	para := strings.Repeat("word ", 150)
	var b strings.Builder
	b.WriteString("# Big\n\n")
	for i := 0; i < 10; i++ {
		b.WriteString(para)
		b.WriteString("\n\n")
	}
	drafts := ChunkMarkdown("Doc", b.String())
	if len(drafts) < 2 {
		t.Fatalf("oversized section must split, got %d chunks", len(drafts))
	}
	for _, d := range drafts {
		if len(d.Text) > maxChunkChars {
			t.Fatalf("chunk exceeds bound: %d chars", len(d.Text))
		}
		if !reflect.DeepEqual(d.SectionPath, []string{"Doc", "Big"}) {
			t.Fatalf("split chunks keep the section path, got %v", d.SectionPath)
		}
	}
}

func TestChunkMarkdownDropsNoiseFragments(t *testing.T) {
	drafts := ChunkMarkdown("Doc", "# Heading\n\nok\n")
	if len(drafts) != 0 {
		t.Fatalf("fragments under the minimum must be dropped, got %+v", drafts)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML(`<div class="wiki"><p>Hello</p></div>`) {
		t.Fatal("div/p payload must be detected as HTML")
	}
	if LooksLikeHTML("# Markdown\n\nPlain text with a < b comparison.") {
		t.Fatal("markdown must not be detected as HTML")
	}
}
