package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/observability"
	"github.com/docsense/docsense-backend/internal/pkg/ctxutil"
	"github.com/docsense/docsense-backend/internal/utils"
)

// AttachRequestContext assigns every request an ID, echoes it in the
// X-Request-ID header, and records API metrics when enabled.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)

		m := observability.Current()
		m.IncInflight()
		start := time.Now()
		c.Next()
		m.DecInflight()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, statusLabel(c.Writer.Status()), time.Since(start))
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func CORS() gin.HandlerFunc {
	origins := strings.Split(utils.GetEnv("CORS_ALLOWED_ORIGINS", "*", nil), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowOrigins = nil
	}
	return cors.New(cfg)
}
