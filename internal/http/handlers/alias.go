package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type AliasHandler struct {
	log   *logger.Logger
	edges repos.AliasEdgeRepo
}

func NewAliasHandler(log *logger.Logger, edges repos.AliasEdgeRepo) *AliasHandler {
	return &AliasHandler{
		log:   log.With("handler", "AliasHandler"),
		edges: edges,
	}
}

// GET /api/v1/alias/edges
//
// Audit listing of learned alias edges, soft-deleted ones included.
func (h *AliasHandler) ListEdges(c *gin.Context) {
	limit := clampInt(queryInt(c, "limit", 200), 1, 1000)
	rows, err := h.edges.ListAll(dbctx.Context{Ctx: c.Request.Context()}, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"edges": rows})
}
