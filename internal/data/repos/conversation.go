package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, row *domain.Conversation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	GetActiveByUser(dbc dbctx.Context, userID string) (*domain.Conversation, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.Conversation, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	CloseIdle(dbc dbctx.Context, idleBefore time.Time) (int64, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *conversationRepo) Create(dbc dbctx.Context, row *domain.Conversation) error {
	if row == nil || row.UserID == "" {
		return fmt.Errorf("missing conversation")
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Conversation
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetActiveByUser(dbc dbctx.Context, userID string) (*domain.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	var out domain.Conversation
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND active = true", userID).
		Take(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.Conversation
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out domain.Conversation
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CloseIdle flips active to false for conversations idle since idleBefore.
// Rows are never deleted.
func (r *conversationRepo) CloseIdle(dbc dbctx.Context, idleBefore time.Time) (int64, error) {
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("active = true AND last_activity < ?", idleBefore).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
