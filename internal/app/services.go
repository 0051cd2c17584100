package app

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/alias"
	"github.com/docsense/docsense-backend/internal/chat"
	"github.com/docsense/docsense-backend/internal/chat/steps"
	"github.com/docsense/docsense-backend/internal/clients/azwiki"
	"github.com/docsense/docsense-backend/internal/clients/openai"
	"github.com/docsense/docsense-backend/internal/clients/redis"
	"github.com/docsense/docsense-backend/internal/ingest"
	"github.com/docsense/docsense-backend/internal/jobs"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
	"github.com/docsense/docsense-backend/internal/quality"
	"github.com/docsense/docsense-backend/internal/retrieval"
	"github.com/docsense/docsense-backend/internal/services"
)

type Services struct {
	AI           openai.Client
	Vec          qdrant.VectorStore
	FrameBus     redis.FrameBus
	KeywordIndex *retrieval.KeywordIndex
	EmbedCache   *retrieval.EmbedCache

	AliasRegistry  *alias.Registry
	AliasDiscovery *alias.Discovery
	Retrieval      *retrieval.Engine
	Quality        *quality.Analyzer
	RateLimiter    *services.RateLimiter

	ConversationStore chat.ConversationStore
	Orchestrator      *chat.Orchestrator

	Ingestor *ingest.Ingestor
	Crawler  *ingest.Crawler

	JobRegistry *jobs.Registry
	JobWorker   *jobs.Worker
	Maintenance *jobs.Maintenance
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos) (Services, error) {
	var s Services

	ai, err := openai.NewClient(log)
	if err != nil {
		return s, fmt.Errorf("init openai client: %w", err)
	}
	s.AI = ai

	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return s, fmt.Errorf("resolve qdrant config: %w", err)
	}
	vec, err := qdrant.NewVectorStore(log, qcfg)
	if err != nil {
		return s, fmt.Errorf("init qdrant store: %w", err)
	}
	s.Vec = vec

	// The frame bus is optional: without Redis the node still answers, it
	// just stops mirroring frames to other replicas.
	if bus, err := redis.NewFrameBus(log); err != nil {
		log.Warn("Frame bus disabled", "error", err.Error())
	} else {
		s.FrameBus = bus
	}

	s.KeywordIndex = retrieval.NewKeywordIndex()
	s.EmbedCache = retrieval.NewEmbedCache(1024)

	s.AliasRegistry = alias.NewRegistry(db, log, r.AliasEdges, cfg.Alias.MinConfidence, cfg.Alias.ExpansionCap)
	s.AliasDiscovery = alias.NewDiscovery(db, log, r.Documents, r.AliasEdges)

	rcfg := retrieval.DefaultConfig()
	rcfg.K = cfg.Retrieval.K
	rcfg.Cap = cfg.Retrieval.Cap
	rcfg.Timeout = cfg.Retrieval.Timeout
	s.Retrieval = retrieval.NewEngine(log, rcfg, ai, vec, s.KeywordIndex, s.AliasRegistry, s.EmbedCache)

	s.Quality = quality.NewAnalyzer(log)
	s.RateLimiter = services.NewRateLimiter(log, cfg.RateLimit.TokensPerMin, 5*time.Second)

	s.ConversationStore = chat.NewConversationStore(log, db, r.Conversations, r.Messages)

	intent := steps.NewIntentAnalyzer(log, ai, cfg.LLM.IntentModel, cfg.Timeouts.Intent)
	generator := steps.NewGenerator(log, ai, cfg.LLM.MainModel, cfg.LLM.MainMaxTokens)
	reviewer := steps.NewReviewer(log, ai, cfg.LLM.IntentModel, cfg.Timeouts.Reviewer)

	chatCfg := chat.DefaultConfig()
	chatCfg.KeepExchanges = cfg.Conversation.KeepExchanges
	chatCfg.TruncateChars = cfg.Conversation.TruncateChars
	chatCfg.DedupWindow = cfg.Dedup.Window
	chatCfg.TotalTimeout = cfg.Timeouts.Total

	var bus chat.FramePublisher
	if s.FrameBus != nil {
		bus = s.FrameBus
	}
	s.Orchestrator = chat.NewOrchestrator(
		log, chatCfg, s.ConversationStore,
		intent, s.Retrieval, s.Quality, generator, reviewer,
		s.RateLimiter, s.AliasDiscovery, r.LearningSessions, bus,
	)

	s.Ingestor = ingest.NewIngestor(log, db, r.Documents, r.Chunks, r.Jobs, vec, ai, s.KeywordIndex, cfg.Embedding.Batch)

	// The wiki crawler is optional too; a missing PAT disables the
	// wiki_crawl job type, manual ingest keeps working.
	if wiki, err := azwiki.NewClient(log); err != nil {
		log.Warn("Wiki crawler disabled", "error", err.Error())
	} else {
		s.Crawler = ingest.NewCrawler(log, wiki, s.Ingestor)
	}

	s.JobRegistry = jobs.NewRegistry()
	handlers := []jobs.Handler{
		&jobs.AliasDiscoveryHandler{Discovery: s.AliasDiscovery, Docs: r.Documents, Registry: s.AliasRegistry},
		&jobs.AliasDecayHandler{
			Discovery:   s.AliasDiscovery,
			Registry:    s.AliasRegistry,
			DecayFactor: cfg.Alias.DecayFactor,
			IdleAfter:   cfg.Alias.DecayIdle,
		},
	}
	if s.Crawler != nil {
		handlers = append(handlers, &jobs.WikiCrawlHandler{Crawler: s.Crawler})
	}
	for _, h := range handlers {
		if err := s.JobRegistry.Register(h); err != nil {
			return s, fmt.Errorf("register job handler: %w", err)
		}
	}
	s.JobWorker = jobs.NewWorker(db, log, r.Jobs, s.JobRegistry)
	s.Maintenance = jobs.NewMaintenance(log, r.Conversations, r.Jobs, cfg.Conversation.IdleTimeout)

	return s, nil
}
