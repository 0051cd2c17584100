package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsense/docsense-backend/internal/chat"
	"github.com/docsense/docsense-backend/internal/http/middleware"
	"github.com/docsense/docsense-backend/internal/observability"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/ctxutil"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type ChatHandler struct {
	log          *logger.Logger
	orchestrator *chat.Orchestrator
}

func NewChatHandler(log *logger.Logger, orchestrator *chat.Orchestrator) *ChatHandler {
	return &ChatHandler{
		log:          log.With("handler", "ChatHandler"),
		orchestrator: orchestrator,
	}
}

type answerRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	AuthorsNote    string `json:"authors_note"`
}

// POST /api/v1/chat/answer
//
// Streams NDJSON frames. The response always carries exactly one terminal
// frame: final on success, error otherwise. Errors raised before the pipeline
// starts are written as a single error frame with the matching HTTP status.
func (h *ChatHandler) Answer(c *gin.Context) {
	var body answerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorFrame(c, apperr.Wrap(apperr.CodeBadRequest, "malformed request body", err))
		return
	}

	sub, err := h.orchestrator.Answer(c.Request.Context(), chat.Request{
		UserID:         middleware.UserID(c),
		ConversationID: body.ConversationID,
		Query:          body.Query,
		AuthorsNote:    body.AuthorsNote,
		RequestID:      ctxutil.RequestID(c.Request.Context()),
	})
	if err != nil {
		writeErrorFrame(c, err)
		return
	}
	defer sub.Detach()

	m := observability.Current()
	if sub.Shared {
		m.StreamCoalesced()
	} else {
		m.StreamStarted()
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-sub.Frames:
			if !ok {
				return
			}
			if frame.Type == chat.FrameError {
				m.StreamError(frame.Code)
			}
			if !writeFrame(c, frame) {
				return
			}
		}
	}
}

func writeFrame(c *gin.Context, frame chat.Frame) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	raw = append(raw, '\n')
	if _, err := c.Writer.Write(raw); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// writeErrorFrame terminates a stream that never produced frames: the coded
// HTTP status plus one NDJSON error frame, so clients parse a uniform body.
func writeErrorFrame(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	observability.Current().StreamError(string(code))
	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(apperr.HTTPStatus(code))
	frame := chat.ErrorFrame(string(code), apperr.MessageOf(err))
	if raw, mErr := json.Marshal(frame); mErr == nil {
		raw = append(raw, '\n')
		_, _ = c.Writer.Write(raw)
	}
	c.Writer.Flush()
}
