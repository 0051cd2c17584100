package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Upsert(dbc dbctx.Context, doc *domain.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Document, error)
	GetBySourceURL(dbc dbctx.Context, url string) (*domain.Document, error)
	ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Document, error)
	Purge(dbc dbctx.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

func (r *documentRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Upsert(dbc dbctx.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == uuid.Nil {
		return fmt.Errorf("missing document")
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_url", "source_kind", "title", "text",
				"content_hash", "tags", "last_modified", "updated_at",
			}),
		}).
		Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Document
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Document, error) {
	if len(ids) == 0 {
		return []*domain.Document{}, nil
	}
	var out []*domain.Document
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Document{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) GetBySourceURL(dbc dbctx.Context, url string) (*domain.Document, error) {
	if url == "" {
		return nil, fmt.Errorf("missing url")
	}
	var out domain.Document
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("source_url = ?", url).
		Take(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// ListPage iterates the full document set in stable ID order for the alias
// discovery pass.
func (r *documentRepo) ListPage(dbc dbctx.Context, afterID *uuid.UUID, limit int) ([]*domain.Document, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Document{}).
		Order("id ASC").
		Limit(limit)
	if afterID != nil && *afterID != uuid.Nil {
		q = q.Where("id > ?", *afterID)
	}
	var out []*domain.Document
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) Purge(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := r.tx(dbc).WithContext(dbc.Ctx)
	if err := txx.Where("document_id = ?", id).Delete(&domain.Chunk{}).Error; err != nil {
		return err
	}
	return txx.Where("id = ?", id).Delete(&domain.Document{}).Error
}
