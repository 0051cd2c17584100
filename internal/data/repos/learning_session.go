package repos

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type LearningSessionRepo interface {
	Create(dbc dbctx.Context, row *domain.LearningSession) error
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.LearningSession, error)
}

type learningSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningSessionRepo(db *gorm.DB, log *logger.Logger) LearningSessionRepo {
	return &learningSessionRepo{db: db, log: log.With("repo", "LearningSessionRepo")}
}

func (r *learningSessionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *learningSessionRepo) Create(dbc dbctx.Context, row *domain.LearningSession) error {
	if row == nil || row.UserID == "" {
		return fmt.Errorf("missing learning session")
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *learningSessionRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.LearningSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.LearningSession
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.LearningSession{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
