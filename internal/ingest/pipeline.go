package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
	"github.com/docsense/docsense-backend/internal/retrieval"
)

const defaultEmbedBatch = 32

// Embedder is the embedding capability of the LLM client.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Input is one document to ingest. SourceURL is the identity; everything
// else replaces the previous version when the content hash changed.
type Input struct {
	SourceURL  string
	SourceKind string
	Title      string
	Content    string

	// ContentIsHTML forces HTML conversion; otherwise the payload is
	// sniffed.
	ContentIsHTML bool

	Tags         []string
	LastModified time.Time
}

// Result summarizes one ingest call.
type Result struct {
	DocumentID uuid.UUID
	Chunks     int
	Unchanged  bool
}

// Ingestor runs the document pipeline: hash compare, chunk, embed, vector
// upsert, atomic row replace, keyword reindex, alias-discovery scheduling.
type Ingestor struct {
	log     *logger.Logger
	db      *gorm.DB
	docs    repos.DocumentRepo
	chunks  repos.ChunkRepo
	jobs    repos.JobRunRepo
	vec     qdrant.VectorStore
	embed   Embedder
	keyword *retrieval.KeywordIndex

	batch int
}

func NewIngestor(
	log *logger.Logger,
	db *gorm.DB,
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	jobs repos.JobRunRepo,
	vec qdrant.VectorStore,
	embed Embedder,
	keyword *retrieval.KeywordIndex,
	batch int,
) *Ingestor {
	if batch <= 0 {
		batch = defaultEmbedBatch
	}
	return &Ingestor{
		log:     log.With("service", "Ingestor"),
		db:      db,
		docs:    docs,
		chunks:  chunks,
		jobs:    jobs,
		vec:     vec,
		embed:   embed,
		keyword: keyword,
		batch:   batch,
	}
}

// Ingest upserts one document. Re-ingesting unchanged content is a no-op;
// changed content replaces chunks and vector points idempotently (chunk IDs
// derive from document ID and ordinal).
func (ing *Ingestor) Ingest(ctx context.Context, in Input) (*Result, error) {
	if in.SourceURL == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "source_url is required")
	}
	if in.Title == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "title is required")
	}
	if in.SourceKind == "" {
		in.SourceKind = domain.SourceKindWiki
	}
	if in.LastModified.IsZero() {
		in.LastModified = time.Now().UTC()
	}

	text := in.Content
	if in.ContentIsHTML || LooksLikeHTML(text) {
		text = ToMarkdown(text)
	}

	docID := domain.DocumentID(in.SourceURL)
	hash := contentHash(text)

	dbc := dbctx.Context{Ctx: ctx}
	existing, err := ing.docs.GetByID(dbc, docID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.ContentHash == hash {
		return &Result{DocumentID: docID, Unchanged: true}, nil
	}

	drafts := ChunkMarkdown(in.Title, text)
	vectors, err := ing.embedDrafts(ctx, drafts)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEmbeddingError, "embedding failed during ingest", err)
	}

	doc := &domain.Document{
		ID:           docID,
		SourceURL:    in.SourceURL,
		SourceKind:   in.SourceKind,
		Title:        in.Title,
		Text:         text,
		ContentHash:  hash,
		Tags:         repos.MarshalStringsJSON(in.Tags),
		LastModified: in.LastModified.UTC(),
	}

	rows := make([]*domain.Chunk, len(drafts))
	points := make([]qdrant.Point, len(drafts))
	for i, d := range drafts {
		id := domain.ChunkID(docID, d.Ordinal)
		embJSON, _ := json.Marshal(vectors[i])
		rows[i] = &domain.Chunk{
			ID:           id,
			DocumentID:   docID,
			Ordinal:      d.Ordinal,
			Text:         d.Text,
			SectionPath:  repos.MarshalStringsJSON(d.SectionPath),
			TokenCount:   d.TokenCount,
			SemanticTags: repos.MarshalStringsJSON(in.Tags),
			Embedding:    datatypes.JSON(embJSON),
			VectorID:     id.String(),
		}
		points[i] = qdrant.Point{
			ID:     id.String(),
			Vector: vectors[i],
			Payload: map[string]any{
				"document_id":   docID.String(),
				"source_url":    in.SourceURL,
				"source_kind":   in.SourceKind,
				"title":         in.Title,
				"authority":     domain.Authority(in.SourceKind),
				"last_modified": in.LastModified.UTC().Format(time.RFC3339),
				"alias_tags":    stringsToAny(in.Tags),
				"section_path":  stringsToAny(d.SectionPath),
				"ordinal":       d.Ordinal,
				"text":          d.Text,
			},
		}
	}

	// Stale points belong to ordinals past the new chunk count.
	var staleVectorIDs []string
	if existing != nil {
		old, err := ing.chunks.ListByDocument(dbc, docID)
		if err != nil {
			return nil, err
		}
		for _, c := range old {
			if c.Ordinal >= len(rows) {
				staleVectorIDs = append(staleVectorIDs, c.VectorID)
			}
		}
	}

	if len(points) > 0 {
		if err := ing.vec.Upsert(ctx, points); err != nil {
			return nil, fmt.Errorf("vector upsert: %w", err)
		}
	}

	if err := ing.withTx(ctx, func(txc dbctx.Context) error {
		if err := ing.docs.Upsert(txc, doc); err != nil {
			return err
		}
		return ing.chunks.ReplaceForDocument(txc, docID, rows)
	}); err != nil {
		return nil, err
	}

	if len(staleVectorIDs) > 0 {
		if err := ing.vec.Delete(ctx, staleVectorIDs); err != nil {
			ing.log.Warn("Stale vector cleanup failed", "document_id", docID, "error", err.Error())
		}
	}

	if ing.keyword != nil {
		ing.keyword.RemoveDocument(docID)
		for i, d := range drafts {
			ing.keyword.Put(retrieval.ChunkMeta{
				ChunkID:      rows[i].ID,
				DocumentID:   docID,
				Title:        in.Title,
				URL:          in.SourceURL,
				SourceKind:   in.SourceKind,
				LastModified: in.LastModified.UTC(),
				Text:         d.Text,
				AliasTags:    in.Tags,
			})
		}
	}

	ing.scheduleAliasDiscovery(ctx, docID)

	ing.log.Info("Document ingested",
		"document_id", docID, "source_url", in.SourceURL, "chunks", len(rows))
	return &Result{DocumentID: docID, Chunks: len(rows)}, nil
}

func (ing *Ingestor) embedDrafts(ctx context.Context, drafts []ChunkDraft) ([][]float32, error) {
	out := make([][]float32, 0, len(drafts))
	for start := 0; start < len(drafts); start += ing.batch {
		end := start + ing.batch
		if end > len(drafts) {
			end = len(drafts)
		}
		texts := make([]string, 0, end-start)
		for _, d := range drafts[start:end] {
			texts = append(texts, d.Text)
		}
		vecs, err := ing.embed.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (ing *Ingestor) scheduleAliasDiscovery(ctx context.Context, docID uuid.UUID) {
	if ing.jobs == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"document_id": docID.String()})
	err := ing.jobs.Enqueue(dbctx.Context{Ctx: ctx}, &domain.JobRun{
		JobType: domain.JobTypeAliasDiscovery,
		Payload: datatypes.JSON(payload),
	})
	if err != nil {
		ing.log.Warn("Alias discovery enqueue failed", "document_id", docID, "error", err.Error())
	}
}

func (ing *Ingestor) withTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if ing.db == nil {
		return fn(dbctx.Context{Ctx: ctx})
	}
	return ing.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
