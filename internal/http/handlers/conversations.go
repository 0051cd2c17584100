package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/chat"
	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/http/middleware"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type ConversationHandler struct {
	log           *logger.Logger
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	store         chat.ConversationStore
}

func NewConversationHandler(log *logger.Logger, conversations repos.ConversationRepo, messages repos.MessageRepo, store chat.ConversationStore) *ConversationHandler {
	return &ConversationHandler{
		log:           log.With("handler", "ConversationHandler"),
		conversations: conversations,
		messages:      messages,
		store:         store,
	}
}

// GET /api/v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	limit := clampInt(queryInt(c, "limit", 20), 1, 100)
	rows, err := h.conversations.ListByUser(dbctx.Context{Ctx: c.Request.Context()}, middleware.UserID(c), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversations": rows})
}

// GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conv, err := h.conversations.GetByID(dbc, convID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "conversation_not_found", err)
		return
	}
	if conv.UserID != middleware.UserID(c) {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}

	afterSeq := int64(queryInt(c, "after_seq", -1))
	limit := clampInt(queryInt(c, "limit", 50), 1, 200)
	rows, err := h.messages.ListPage(dbc, convID, afterSeq, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv, "messages": rows})
}

// POST /api/v1/conversations/:id/close
//
// "New chat": flips active off so the next answer opens a fresh conversation.
func (h *ConversationHandler) Close(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	if err := h.store.Close(c.Request.Context(), middleware.UserID(c), convID); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"closed": convID})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
