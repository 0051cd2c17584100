package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
	"github.com/docsense/docsense-backend/internal/retrieval"
)

// ---------- fakes ----------

type fakeDocRepo struct {
	docs map[uuid.UUID]*domain.Document
}

func newFakeDocRepo() *fakeDocRepo { return &fakeDocRepo{docs: map[uuid.UUID]*domain.Document{}} }

func (f *fakeDocRepo) Upsert(dbc dbctx.Context, doc *domain.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Document, error) {
	var out []*domain.Document
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) GetBySourceURL(dbc dbctx.Context, url string) (*domain.Document, error) {
	for _, d := range f.docs {
		if d.SourceURL == url {
			cp := *d
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDocRepo) ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) Purge(dbc dbctx.Context, id uuid.UUID) error {
	delete(f.docs, id)
	return nil
}

type fakeChunkRepo struct {
	byDoc map[uuid.UUID][]*domain.Chunk
}

func newFakeChunkRepo() *fakeChunkRepo { return &fakeChunkRepo{byDoc: map[uuid.UUID][]*domain.Chunk{}} }

func (f *fakeChunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*domain.Chunk) error {
	f.byDoc[documentID] = rows
	return nil
}

func (f *fakeChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*domain.Chunk, error) {
	return f.byDoc[documentID], nil
}

func (f *fakeChunkRepo) ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) UpdateSemanticTags(dbc dbctx.Context, id uuid.UUID, tags []string) error {
	return nil
}

type fakeJobRepo struct {
	enqueued []*domain.JobRun
}

func (f *fakeJobRepo) Enqueue(dbc dbctx.Context, row *domain.JobRun) error {
	f.enqueued = append(f.enqueued, row)
	return nil
}

func (f *fakeJobRepo) ClaimNextRunnable(ctx context.Context, db *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) MarkDone(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, cause string, retryDelay time.Duration) error {
	return nil
}

type fakeVectorStore struct {
	points  map[string]qdrant.Point
	deleted []string
	upserts int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]qdrant.Point{}}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, points []qdrant.Point) error {
	f.upserts++
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]qdrant.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, filter map[string]any, cursor string, limit int) ([]qdrant.Point, string, error) {
	return nil, "", nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}

func (f *fakeVectorStore) Ready(ctx context.Context) error { return nil }

type countingEmbedder struct {
	calls   int
	batches []int
}

func (e *countingEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.calls++
	e.batches = append(e.batches, len(inputs))
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1, 0}
	}
	return out, nil
}

// ---------- tests ----------

func newTestIngestor(t *testing.T) (*Ingestor, *fakeDocRepo, *fakeChunkRepo, *fakeJobRepo, *fakeVectorStore, *retrieval.KeywordIndex) {
	t.Helper()
	docs := newFakeDocRepo()
	chunks := newFakeChunkRepo()
	jobs := &fakeJobRepo{}
	vec := newFakeVectorStore()
	ix := retrieval.NewKeywordIndex()
	ing := NewIngestor(logger.NewNop(), nil, docs, chunks, jobs, vec, &countingEmbedder{}, ix, 2)
	return ing, docs, chunks, jobs, vec, ix
}

func TestIngestCreatesDocumentChunksAndPoints(t *testing.T) {
	ing, docs, chunks, jobs, vec, ix := newTestIngestor(t)

	res, err := ing.Ingest(context.Background(), Input{
		SourceURL:    "https://wiki/deploy",
		Title:        "Deploy Guide",
		Content:      sampleDoc,
		Tags:         []string{"deploy"},
		LastModified: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Unchanged || res.Chunks == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	docID := domain.DocumentID("https://wiki/deploy")
	if res.DocumentID != docID {
		t.Fatalf("document ID must derive from source URL")
	}
	if _, ok := docs.docs[docID]; !ok {
		t.Fatal("document row missing")
	}

	rows := chunks.byDoc[docID]
	if len(rows) != res.Chunks {
		t.Fatalf("chunk rows %d != result %d", len(rows), res.Chunks)
	}
	for _, c := range rows {
		if c.ID != domain.ChunkID(docID, c.Ordinal) {
			t.Fatalf("chunk ID not derived from (doc, ordinal): %+v", c)
		}
		p, ok := vec.points[c.VectorID]
		if !ok {
			t.Fatalf("vector point missing for chunk %s", c.ID)
		}
		if p.Payload["document_id"] != docID.String() {
			t.Fatalf("point payload document_id wrong: %v", p.Payload["document_id"])
		}
	}

	if len(jobs.enqueued) != 1 || jobs.enqueued[0].JobType != domain.JobTypeAliasDiscovery {
		t.Fatalf("alias discovery job not enqueued: %+v", jobs.enqueued)
	}
	if ix.Len() != res.Chunks {
		t.Fatalf("keyword index holds %d chunks, want %d", ix.Len(), res.Chunks)
	}
}

func TestIngestUnchangedContentIsNoOp(t *testing.T) {
	ing, _, _, jobs, vec, _ := newTestIngestor(t)
	in := Input{SourceURL: "https://wiki/deploy", Title: "Deploy Guide", Content: sampleDoc}

	if _, err := ing.Ingest(context.Background(), in); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	upsertsBefore := vec.upserts
	jobsBefore := len(jobs.enqueued)

	res, err := ing.Ingest(context.Background(), in)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !res.Unchanged {
		t.Fatal("identical content must be reported unchanged")
	}
	if vec.upserts != upsertsBefore || len(jobs.enqueued) != jobsBefore {
		t.Fatal("unchanged ingest must not touch vectors or enqueue jobs")
	}
}

func TestIngestReingestIsIdempotentOnPointIDs(t *testing.T) {
	ing, _, chunks, _, vec, _ := newTestIngestor(t)
	in := Input{SourceURL: "https://wiki/deploy", Title: "Deploy Guide", Content: sampleDoc}

	if _, err := ing.Ingest(context.Background(), in); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	firstIDs := map[string]bool{}
	for id := range vec.points {
		firstIDs[id] = true
	}

	in.Content = sampleDoc + "\n\nAppendix: extra clarifying paragraph about the release pipeline approvals."
	if _, err := ing.Ingest(context.Background(), in); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	docID := domain.DocumentID(in.SourceURL)
	for _, c := range chunks.byDoc[docID] {
		if c.Ordinal < len(firstIDs) && !firstIDs[c.ID.String()] {
			t.Fatalf("shared-prefix ordinal %d changed point ID", c.Ordinal)
		}
	}
}

func TestIngestShrinkingDocumentDeletesStalePoints(t *testing.T) {
	ing, _, _, _, vec, ix := newTestIngestor(t)
	url := "https://wiki/shrink"

	res, err := ing.Ingest(context.Background(), Input{SourceURL: url, Title: "Doc", Content: sampleDoc})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if res.Chunks < 2 {
		t.Fatalf("need multiple chunks for the test, got %d", res.Chunks)
	}

	small := "Single remaining section with enough text to clear the minimum chunk size easily."
	res2, err := ing.Ingest(context.Background(), Input{SourceURL: url, Title: "Doc", Content: small})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res2.Chunks != 1 {
		t.Fatalf("expected one chunk after shrink, got %d", res2.Chunks)
	}
	if len(vec.deleted) != res.Chunks-1 {
		t.Fatalf("deleted %d stale points, want %d", len(vec.deleted), res.Chunks-1)
	}
	if ix.Len() != 1 {
		t.Fatalf("keyword index holds %d chunks after shrink, want 1", ix.Len())
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	docs := newFakeDocRepo()
	emb := &countingEmbedder{}
	ing := NewIngestor(logger.NewNop(), nil, docs, newFakeChunkRepo(), nil, newFakeVectorStore(), emb, nil, 2)

	res, err := ing.Ingest(context.Background(), Input{SourceURL: "https://wiki/d", Title: "Doc", Content: sampleDoc})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := (res.Chunks + 1) / 2
	if emb.calls != want {
		t.Fatalf("embedder called %d times for %d chunks at batch 2, want %d", emb.calls, res.Chunks, want)
	}
	for _, n := range emb.batches {
		if n > 2 {
			t.Fatalf("batch of %d exceeds limit", n)
		}
	}
}

var _ repos.DocumentRepo = (*fakeDocRepo)(nil)
var _ repos.ChunkRepo = (*fakeChunkRepo)(nil)
var _ repos.JobRunRepo = (*fakeJobRepo)(nil)
var _ qdrant.VectorStore = (*fakeVectorStore)(nil)
