package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/clients/redis"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
)

type HealthHandler struct {
	log *logger.Logger
	db  *gorm.DB
	vec qdrant.VectorStore
	bus redis.FrameBus
}

func NewHealthHandler(log *logger.Logger, db *gorm.DB, vec qdrant.VectorStore, bus redis.FrameBus) *HealthHandler {
	return &HealthHandler{
		log: log.With("handler", "HealthHandler"),
		db:  db,
		vec: vec,
		bus: bus,
	}
}

// GET /healthz
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	checks["postgres"] = h.probe(func() error {
		sqlDB, err := h.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}, &healthy)

	if h.vec != nil {
		checks["qdrant"] = h.probe(func() error { return h.vec.Ready(ctx) }, &healthy)
	}
	if h.bus != nil {
		checks["redis"] = h.probe(func() error { return h.bus.Ready(ctx) }, &healthy)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

func (h *HealthHandler) probe(fn func() error, healthy *bool) string {
	if err := fn(); err != nil {
		*healthy = false
		h.log.Warn("Health probe failed", "error", err.Error())
		return "down"
	}
	return "up"
}
