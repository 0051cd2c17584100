package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *domain.Message) error
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error)
	ListPage(dbc dbctx.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*domain.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *messageRepo) Create(dbc dbctx.Context, row *domain.Message) error {
	if row == nil || row.ConversationID == uuid.Nil {
		return fmt.Errorf("missing message")
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

// ListRecent returns the newest messages first.
func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	var out []*domain.Message
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ListPage(dbc dbctx.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*domain.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*domain.Message
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
