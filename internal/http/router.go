package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/docsense/docsense-backend/internal/http/handlers"
	httpMW "github.com/docsense/docsense-backend/internal/http/middleware"
)

type RouterConfig struct {
	AuthMiddleware *httpMW.AuthMiddleware

	ChatHandler         *httpH.ChatHandler
	ConversationHandler *httpH.ConversationHandler
	IngestHandler       *httpH.IngestHandler
	AliasHandler        *httpH.AliasHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Check)
	}

	api := r.Group("/api/v1")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ChatHandler != nil {
			api.POST("/chat/answer", cfg.ChatHandler.Answer)
		}

		if cfg.ConversationHandler != nil {
			api.GET("/conversations", cfg.ConversationHandler.List)
			api.GET("/conversations/:id/messages", cfg.ConversationHandler.Messages)
			api.POST("/conversations/:id/close", cfg.ConversationHandler.Close)
		}

		if cfg.IngestHandler != nil {
			api.POST("/ingest/document", cfg.IngestHandler.Document)
			api.POST("/ingest/crawl", cfg.IngestHandler.Crawl)
		}

		if cfg.AliasHandler != nil {
			api.GET("/alias/edges", cfg.AliasHandler.ListEdges)
		}
	}

	return r
}
