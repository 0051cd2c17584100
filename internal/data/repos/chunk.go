package repos

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type ChunkRepo interface {
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*domain.Chunk) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Chunk, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*domain.Chunk, error)
	ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Chunk, error)
	UpdateSemanticTags(dbc dbctx.Context, id uuid.UUID, tags []string) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

// ReplaceForDocument swaps the document's chunk set atomically. Callers run
// it inside the same transaction that upserts the document row.
func (r *chunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*domain.Chunk) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document_id")
	}
	txx := r.tx(dbc).WithContext(dbc.Ctx)
	if err := txx.Where("document_id = ?", documentID).Delete(&domain.Chunk{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return txx.Create(&rows).Error
}

func (r *chunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Chunk, error) {
	if len(ids) == 0 {
		return []*domain.Chunk{}, nil
	}
	var out []*domain.Chunk
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Chunk{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*domain.Chunk, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("missing document_id")
	}
	var out []*domain.Chunk
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Chunk{}).
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Chunk, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Chunk{}).
		Order("id ASC").
		Limit(limit)
	if afterID != nil && *afterID != uuid.Nil {
		q = q.Where("id > ?", *afterID)
	}
	var out []*domain.Chunk
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) UpdateSemanticTags(dbc dbctx.Context, id uuid.UUID, tags []string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Chunk{}).
		Where("id = ?", id).
		Update("semantic_tags", datatypes.JSON(raw)).Error
}

// ParseEmbeddingJSON decodes a jsonb-stored embedding.
func ParseEmbeddingJSON(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalEmbeddingJSON encodes an embedding for jsonb storage.
func MarshalEmbeddingJSON(emb []float32) (datatypes.JSON, error) {
	if emb == nil {
		emb = []float32{}
	}
	raw, err := json.Marshal(emb)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// ParseStringsJSON decodes a jsonb string array (tags, section paths).
func ParseStringsJSON(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// MarshalStringsJSON encodes a string slice for jsonb storage.
func MarshalStringsJSON(vals []string) datatypes.JSON {
	if vals == nil {
		vals = []string{}
	}
	raw, _ := json.Marshal(vals)
	return datatypes.JSON(raw)
}
