package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/chat"
	"github.com/docsense/docsense-backend/internal/clients/redis"
	"github.com/docsense/docsense-backend/internal/db"
	httpG "github.com/docsense/docsense-backend/internal/http"
	httpH "github.com/docsense/docsense-backend/internal/http/handlers"
	httpMW "github.com/docsense/docsense-backend/internal/http/middleware"
	"github.com/docsense/docsense-backend/internal/observability"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/retrieval"
	"github.com/docsense/docsense-backend/internal/utils"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := utils.GetEnv("LOG_MODE", "development", nil)
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	router := wireRouter(log, cfg, theDB, reposet, serviceset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

func wireRouter(log *logger.Logger, cfg Config, theDB *gorm.DB, r Repos, s Services) *gin.Engine {
	return httpG.NewRouter(httpG.RouterConfig{
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecret),

		ChatHandler:         httpH.NewChatHandler(log, s.Orchestrator),
		ConversationHandler: httpH.NewConversationHandler(log, r.Conversations, r.Messages, s.ConversationStore),
		IngestHandler:       httpH.NewIngestHandler(log, s.Ingestor, r.Jobs),
		AliasHandler:        httpH.NewAliasHandler(log, r.AliasEdges),
		HealthHandler:       httpH.NewHealthHandler(log, theDB, s.Vec, s.FrameBus),
	})
}

// Start launches the background machinery: read views, workers, maintenance,
// collectors. New() wires but does not run anything.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "docsense-backend",
		Environment: a.Cfg.Environment,
		Version:     a.Cfg.Version,
	})
	if m := observability.Init(a.Log); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		m.StartJobQueueCollector(ctx, a.Log, a.DB)
		m.StartRedisCollector(ctx, a.Log, utils.GetEnv("REDIS_ADDR", "", nil))
	}

	if a.Services.FrameBus != nil {
		err := a.Services.FrameBus.StartForwarder(ctx, func(m redis.BusMessage) {
			if m.Frame.Type == chat.FrameToken {
				return
			}
			a.Log.Debug("Frame observed on bus", "request_key", m.RequestKey, "type", m.Frame.Type)
		})
		if err != nil {
			a.Log.Warn("Frame bus forwarder failed to start", "error", err.Error())
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	if err := retrieval.LoadKeywordIndex(dbc, a.Services.KeywordIndex, a.Repos.Chunks, a.Repos.Documents); err != nil {
		a.Log.Warn("Keyword index load failed; starting empty", "error", err.Error())
	}
	if err := a.Services.AliasRegistry.Rebuild(dbc); err != nil {
		a.Log.Warn("Alias registry rebuild failed; starting empty", "error", err.Error())
	}

	// Embedding model warm-up happens off the request path; callers that
	// arrive first still trigger it through the client's once guard.
	go func() {
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		defer warmCancel()
		if err := a.Services.AI.Warm(warmCtx); err != nil {
			a.Log.Warn("Embedding warm-up failed", "error", err.Error())
		}
	}()

	a.Services.JobWorker.Start(ctx)
	a.Services.Maintenance.Start(ctx)
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Listening", "addr", a.Cfg.HTTPAddr)
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
		a.otelShutdown = nil
	}
	if a.Services.FrameBus != nil {
		_ = a.Services.FrameBus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
