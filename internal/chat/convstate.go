package chat

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// AssistantTurn is everything persisted with one assistant message.
type AssistantTurn struct {
	Content    string
	Sources    []SourceItem
	Confidence float64
	Steps      []string
	Tokens     TokenCounts

	// Summary, when non-empty, is a candidate refresh of the rolling
	// conversation summary; applied once enough exchanges accumulated.
	Summary string
}

// ConversationStore is the orchestrator's view of conversation persistence.
type ConversationStore interface {
	Resolve(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error)
	AppendUserMessage(ctx context.Context, conv *domain.Conversation, content string) (*domain.Message, error)
	AppendAssistantTurn(ctx context.Context, conv *domain.Conversation, turn AssistantTurn) (*domain.Message, error)
	SetAuthorsNote(ctx context.Context, conversationID uuid.UUID, note string) error
	Close(ctx context.Context, userID string, conversationID uuid.UUID) error
}

// summaryRefreshEvery is how many exchanges a summary serves before the
// analyzer's fresh context summary replaces it.
const summaryRefreshEvery = 3

type conversationStore struct {
	log           *logger.Logger
	db            *gorm.DB
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
}

func NewConversationStore(log *logger.Logger, db *gorm.DB, conversations repos.ConversationRepo, messages repos.MessageRepo) ConversationStore {
	return &conversationStore{
		log:           log.With("service", "ConversationStore"),
		db:            db,
		conversations: conversations,
		messages:      messages,
	}
}

// Resolve returns the addressed conversation after an ownership check, or
// the user's active conversation, creating one when none exists.
func (s *conversationStore) Resolve(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if conversationID != "" {
		id, err := uuid.Parse(conversationID)
		if err != nil {
			return nil, apperr.New(apperr.CodeBadRequest, "invalid conversation_id")
		}
		conv, err := s.conversations.GetByID(dbc, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, apperr.New(apperr.CodeBadRequest, "conversation not found")
			}
			return nil, err
		}
		if conv.UserID != userID {
			return nil, apperr.New(apperr.CodeUnauthorized, "conversation belongs to another user")
		}
		return conv, nil
	}

	conv, err := s.conversations.GetActiveByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domain.Conversation{UserID: userID, Active: true}
	if err := s.conversations.Create(dbc, conv); err != nil {
		// A concurrent request may have created the active row first; the
		// partial unique index rejects the second insert.
		if existing, getErr := s.conversations.GetActiveByUser(dbc, userID); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

func (s *conversationStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	return s.messages.ListRecent(dbctx.Context{Ctx: ctx}, conversationID, limit)
}

func (s *conversationStore) AppendUserMessage(ctx context.Context, conv *domain.Conversation, content string) (*domain.Message, error) {
	var msg *domain.Message
	err := s.withConversationLock(ctx, conv.ID, func(dbc dbctx.Context, locked *domain.Conversation) error {
		m := &domain.Message{
			ConversationID: conv.ID,
			UserID:         conv.UserID,
			Seq:            locked.NextSeq,
			Role:           domain.RoleUser,
			Content:        content,
		}
		if err := s.messages.Create(dbc, m); err != nil {
			return err
		}
		msg = m
		return s.conversations.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"next_seq":      locked.NextSeq + 1,
			"last_activity": time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	conv.NextSeq++
	return msg, nil
}

func (s *conversationStore) AppendAssistantTurn(ctx context.Context, conv *domain.Conversation, turn AssistantTurn) (*domain.Message, error) {
	sourcesJSON, err := json.Marshal(orEmptySources(turn.Sources))
	if err != nil {
		return nil, err
	}
	stepsJSON, err := json.Marshal(orEmptyStrings(turn.Steps))
	if err != nil {
		return nil, err
	}
	tokensJSON, err := json.Marshal(turn.Tokens)
	if err != nil {
		return nil, err
	}

	var msg *domain.Message
	err = s.withConversationLock(ctx, conv.ID, func(dbc dbctx.Context, locked *domain.Conversation) error {
		conf := turn.Confidence
		m := &domain.Message{
			ConversationID: conv.ID,
			UserID:         conv.UserID,
			Seq:            locked.NextSeq,
			Role:           domain.RoleAssistant,
			Content:        turn.Content,
			Sources:        datatypes.JSON(sourcesJSON),
			Confidence:     &conf,
			ThinkingSteps:  datatypes.JSON(stepsJSON),
			TokenCounts:    datatypes.JSON(tokensJSON),
		}
		if err := s.messages.Create(dbc, m); err != nil {
			return err
		}
		msg = m

		updates := map[string]interface{}{
			"next_seq":                locked.NextSeq + 1,
			"last_activity":           time.Now().UTC(),
			"exchanges_since_summary": locked.ExchangesSinceSummary + 1,
		}
		if turn.Summary != "" && locked.ExchangesSinceSummary+1 >= summaryRefreshEvery {
			updates["summary"] = turn.Summary
			updates["exchanges_since_summary"] = 0
		}
		return s.conversations.UpdateFields(dbc, conv.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	conv.NextSeq++
	return msg, nil
}

func (s *conversationStore) SetAuthorsNote(ctx context.Context, conversationID uuid.UUID, note string) error {
	return s.conversations.UpdateFields(dbctx.Context{Ctx: ctx}, conversationID, map[string]interface{}{
		"authors_note": note,
	})
}

func (s *conversationStore) Close(ctx context.Context, userID string, conversationID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.CodeBadRequest, "conversation not found")
		}
		return err
	}
	if conv.UserID != userID {
		return apperr.New(apperr.CodeUnauthorized, "conversation belongs to another user")
	}
	return s.conversations.UpdateFields(dbc, conversationID, map[string]interface{}{
		"active": false,
	})
}

// withConversationLock serializes writers per conversation with a transaction
// scoped advisory lock. A held lock means another request is mid-write; the
// caller gets ConversationBusy instead of blocking.
func (s *conversationStore) withConversationLock(ctx context.Context, conversationID uuid.UUID, fn func(dbc dbctx.Context, locked *domain.Conversation) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		var acquired bool
		if err := tx.WithContext(ctx).
			Raw("SELECT pg_try_advisory_xact_lock(?)", conversationLockKey(conversationID)).
			Scan(&acquired).Error; err != nil {
			return err
		}
		if !acquired {
			return apperr.New(apperr.CodeConversationBusy, "conversation is busy")
		}

		locked, err := s.conversations.GetByID(dbc, conversationID)
		if err != nil {
			return err
		}
		return fn(dbc, locked)
	})
}

func conversationLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(id[:])
	return int64(h.Sum64())
}

func orEmptySources(s []SourceItem) []SourceItem {
	if s == nil {
		return []SourceItem{}
	}
	return s
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
