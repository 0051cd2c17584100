package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docsense/docsense-backend/internal/chat/steps"
	"github.com/docsense/docsense-backend/internal/clients/openai"
	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// Capability interfaces over the pipeline stages. Concrete implementations
// live in steps, retrieval, quality and alias; fakes stand in for tests.
type (
	IntentStep interface {
		Analyze(ctx context.Context, query, summary, recent string) (*domain.IntentPlan, openai.Usage)
	}
	Retriever interface {
		Retrieve(ctx context.Context, query string, plan *domain.IntentPlan) (*domain.RetrievalSet, error)
	}
	QualityAnalyzer interface {
		Analyze(query string, intentType string, results []domain.RetrievalResult) *domain.QualityReport
		Finalize(report *domain.QualityReport, query, response string, aiCertainty float64) float64
	}
	GenerateStep interface {
		Generate(ctx context.Context, in RespondInput, onDelta func(string)) (string, openai.Usage, error)
	}
	ReviewStep interface {
		Review(ctx context.Context, query string, results []domain.RetrievalResult, answer string) ReviewDecision
	}
	TokenGate interface {
		Acquire(ctx context.Context, tenant string, tokens int) error
	}
	AliasLearner interface {
		LearnConversational(ctx context.Context, pairs []domain.AliasCandidate)
	}
	FramePublisher interface {
		PublishFrame(ctx context.Context, requestKey string, f Frame) error
	}
)

// RespondInput and ReviewDecision are re-exported so orchestrator fakes do
// not import the steps package directly.
type (
	RespondInput   = steps.RespondInput
	ReviewDecision = steps.ReviewDecision
)

// Request is the core answer entry point payload.
type Request struct {
	UserID         string
	ConversationID string
	Query          string
	AuthorsNote    string
	RequestID      string
}

// Subscription is one reader's attachment to an answer stream.
type Subscription struct {
	Frames <-chan Frame

	// Shared marks attachment to an already-running deduplicated stream.
	Shared bool

	// Detach must be called when the reader stops consuming.
	Detach func()
}

type Config struct {
	QueryMaxChars  int
	AuthorsNoteMax int
	KeepExchanges  int
	TruncateChars  int
	RecentLimit    int
	DedupWindow    time.Duration
	TotalTimeout   time.Duration

	// TokenEstimate is the per-request cost charged against the tenant's
	// token bucket before the pipeline starts.
	TokenEstimate int

	// CasualConfidence is reported for answers that skipped retrieval.
	CasualConfidence float64

	EnableReview bool
}

func DefaultConfig() Config {
	return Config{
		QueryMaxChars:    4000,
		AuthorsNoteMax:   500,
		KeepExchanges:    defaultKeepExchanges,
		TruncateChars:    defaultTruncateChars,
		RecentLimit:      30,
		DedupWindow:      2 * time.Second,
		TotalTimeout:     120 * time.Second,
		TokenEstimate:    4000,
		CasualConfidence: 0.9,
		EnableReview:     true,
	}
}

// Orchestrator drives one request through the pipeline and streams frames
// to every subscriber of the request's broadcast node.
type Orchestrator struct {
	log   *logger.Logger
	cfg   Config
	store ConversationStore

	intent   IntentStep
	retrieve Retriever
	quality  QualityAnalyzer
	generate GenerateStep
	review   ReviewStep

	limiter  TokenGate
	aliases  AliasLearner
	sessions repos.LearningSessionRepo
	bus      FramePublisher

	inflight *Inflight
}

func NewOrchestrator(
	log *logger.Logger,
	cfg Config,
	store ConversationStore,
	intent IntentStep,
	retrieve Retriever,
	quality QualityAnalyzer,
	generate GenerateStep,
	review ReviewStep,
	limiter TokenGate,
	aliases AliasLearner,
	sessions repos.LearningSessionRepo,
	bus FramePublisher,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.QueryMaxChars <= 0 {
		cfg.QueryMaxChars = def.QueryMaxChars
	}
	if cfg.AuthorsNoteMax <= 0 {
		cfg.AuthorsNoteMax = def.AuthorsNoteMax
	}
	if cfg.KeepExchanges <= 0 {
		cfg.KeepExchanges = def.KeepExchanges
	}
	if cfg.TruncateChars <= 0 {
		cfg.TruncateChars = def.TruncateChars
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = def.DedupWindow
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}
	if cfg.TokenEstimate <= 0 {
		cfg.TokenEstimate = def.TokenEstimate
	}
	if cfg.CasualConfidence <= 0 {
		cfg.CasualConfidence = def.CasualConfidence
	}
	return &Orchestrator{
		log:      log.With("service", "ChatOrchestrator"),
		cfg:      cfg,
		store:    store,
		intent:   intent,
		retrieve: retrieve,
		quality:  quality,
		generate: generate,
		review:   review,
		limiter:  limiter,
		aliases:  aliases,
		sessions: sessions,
		bus:      bus,
		inflight: NewInflight(cfg.DedupWindow),
	}
}

// Answer validates the request, resolves the conversation, and attaches the
// caller to the (possibly shared) answer stream. Validation and rate-limit
// failures are returned before any frame is produced.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Subscription, error) {
	query := strings.TrimSpace(req.Query)
	if req.UserID == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "user_id is required")
	}
	if query == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "query is empty")
	}
	if len(query) > o.cfg.QueryMaxChars {
		return nil, apperr.New(apperr.CodeBadRequest,
			fmt.Sprintf("query exceeds %d characters", o.cfg.QueryMaxChars))
	}

	note := strings.TrimSpace(req.AuthorsNote)
	noteTruncated := false
	if len(note) > o.cfg.AuthorsNoteMax {
		note = note[:o.cfg.AuthorsNoteMax]
		noteTruncated = true
	}

	conv, err := o.store.Resolve(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx, req.UserID, o.cfg.TokenEstimate); err != nil {
			return nil, err
		}
	}

	key := DedupKey(req.UserID, conv.ID.String(), query) + "\x00" + req.RequestID
	node, shared := o.inflight.Attach(key, func() *Broadcast {
		// The pipeline outlives the first subscriber's request context so
		// coalesced followers can still consume it; it dies when the last
		// subscriber detaches or the total timeout fires.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.TotalTimeout)
		b := NewBroadcast(func() {
			cancel()
			o.inflight.Invalidate(key)
		})
		go func() {
			defer cancel()
			o.run(runCtx, b, key, conv, query, note, noteTruncated)
		}()
		return b
	})

	ch, detach := node.Subscribe()
	return &Subscription{Frames: ch, Shared: shared, Detach: detach}, nil
}

func (o *Orchestrator) run(ctx context.Context, b *Broadcast, key string, conv *domain.Conversation, query, note string, noteTruncated bool) {
	defer b.Close()

	var stepLog []string
	seq := 0
	emit := func(f Frame) {
		b.Publish(f)
		if o.bus != nil {
			if err := o.bus.PublishFrame(ctx, key, f); err != nil {
				o.log.Debug("Frame bus publish failed", "error", err.Error())
			}
		}
	}
	step := func(phase, message string) {
		emit(StepFrame(seq, phase, message))
		stepLog = append(stepLog, message)
		seq++
	}
	fail := func(err error) {
		o.inflight.Invalidate(key)
		if ctx.Err() != nil {
			// Nobody is listening; the stream is already dead.
			return
		}
		emit(ErrorFrame(string(apperr.CodeOf(err)), apperr.MessageOf(err)))
	}

	step(PhaseAnalyzing, "analyzing")
	if noteTruncated {
		step(PhaseAnalyzing, fmt.Sprintf("authors note truncated to %d characters", o.cfg.AuthorsNoteMax))
	}
	if note != conv.AuthorsNote {
		if err := o.store.SetAuthorsNote(ctx, conv.ID, note); err != nil {
			o.log.Warn("Authors note update failed", "error", err.Error())
		} else {
			conv.AuthorsNote = note
		}
	}

	// The user turn persists the moment the request is accepted, before any
	// model work, so it survives downstream failures and cancellation.
	userMsg, err := o.store.AppendUserMessage(ctx, conv, query)
	if err != nil {
		fail(err)
		return
	}

	var (
		plan        *domain.IntentPlan
		intentUsage openai.Usage
		window      HistoryWindow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		plan, intentUsage = o.intent.Analyze(gctx, query, conv.Summary, "")
		return nil
	})
	g.Go(func() error {
		recent, err := o.store.RecentMessages(gctx, conv.ID, o.cfg.RecentLimit)
		if err != nil {
			return err
		}
		// The just-persisted user turn goes into the prompt separately.
		filtered := recent[:0]
		for _, m := range recent {
			if m.ID != userMsg.ID {
				filtered = append(filtered, m)
			}
		}
		window = BuildHistoryWindow(filtered, conv.Summary, o.cfg.KeepExchanges, o.cfg.TruncateChars)
		return nil
	})
	if err := g.Wait(); err != nil {
		fail(apperr.Wrap(apperr.CodeInternalError, "failed to load conversation history", err))
		return
	}

	var (
		results []domain.RetrievalResult
		report  *domain.QualityReport
		mode    = domain.RetrievalModeSkipped
	)
	if plan.NeedsRetrieval {
		step(PhaseRetrieving, "retrieving")
		set, err := o.retrieve.Retrieve(ctx, query, plan)
		if err != nil {
			fail(err)
			return
		}
		mode = set.Mode
		if len(set.Expansions) > 0 {
			step(PhaseRetrieving, "expanded search with: "+strings.Join(set.Expansions, ", "))
		}
		if set.Mode == domain.RetrievalModeKeywordOnly {
			step(PhaseRetrieving, "semantic search degraded, using keyword search")
		}
		step(PhaseRetrieving, fmt.Sprintf("found %d sources", len(set.Results)))

		step(PhaseQuality, "analyzing quality")
		report = o.quality.Analyze(query, plan.IntentType, set.Results)
		if n := len(report.Conflicts); n > 0 {
			step(PhaseQuality, fmt.Sprintf("%d conflicts detected", n))
			emit(ConflictsFrame(toConflictItems(report.Conflicts)))
		}
		results = set.Results
	}

	sources := toSourceItems(results)
	emit(SourcesFrame(sources))

	step(PhaseGenerating, "generating")
	in := RespondInput{
		Query:       query,
		Plan:        plan,
		Summary:     conv.Summary,
		History:     window.Render(),
		Results:     results,
		Report:      report,
		AuthorsNote: conv.AuthorsNote,
		NoContext:   plan.NeedsRetrieval && len(results) == 0,
	}
	answer, genUsage, err := o.generate.Generate(ctx, in, func(delta string) {
		emit(TokenFrame(delta))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			o.inflight.Invalidate(key)
			return
		}
		fail(apperr.Wrap(apperr.CodeLLMUnavailable, "response generation failed", err))
		return
	}

	if o.cfg.EnableReview && o.review != nil && len(results) > 0 {
		step(PhaseReviewing, "reviewing")
		if dec := o.review.Review(ctx, query, results, answer); dec.NeedsRevision {
			step(PhaseGenerating, "regenerating")
			in.RevisionReason = dec.Reason
			revised, usage, err := o.generate.Generate(ctx, in, func(delta string) {
				emit(TokenFrame(delta))
			})
			if err == nil {
				answer = revised
				genUsage.PromptTokens += usage.PromptTokens
				genUsage.CompletionTokens += usage.CompletionTokens
			} else {
				o.log.Warn("Regeneration failed, keeping first draft", "error", err.Error())
			}
		}
	}

	confidence := o.cfg.CasualConfidence
	if report != nil {
		confidence = o.quality.Finalize(report, query, answer, defaultCertainty)
		if in.NoContext && confidence > noContextConfidenceCap {
			confidence = noContextConfidenceCap
		}
	}

	step(PhaseDone, "done")

	tokens := TokenCounts{
		Prompt:     intentUsage.PromptTokens + genUsage.PromptTokens,
		Completion: intentUsage.CompletionTokens + genUsage.CompletionTokens,
	}
	assistantMsg, err := o.store.AppendAssistantTurn(ctx, conv, AssistantTurn{
		Content:    answer,
		Sources:    sources,
		Confidence: confidence,
		Steps:      stepLog,
		Tokens:     tokens,
		Summary:    plan.ContextSummary,
	})
	if err != nil {
		if ctx.Err() != nil {
			o.inflight.Invalidate(key)
			return
		}
		fail(apperr.Wrap(apperr.CodeInternalError, "failed to persist assistant turn", err))
		return
	}

	o.recordSession(conv, query, plan, mode, len(results), report, confidence, tokens, stepLog)
	if o.aliases != nil && len(plan.AliasCandidates) > 0 {
		candidates := plan.AliasCandidates
		go func() {
			learnCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			o.aliases.LearnConversational(learnCtx, candidates)
		}()
	}

	emit(FinalFrame(conv.ID.String(), assistantMsg.ID.String(), confidence, tokens))
}

// defaultCertainty stands in for model self-assessment, which the streaming
// path does not collect.
const defaultCertainty = 0.7

// noContextConfidenceCap bounds confidence when generation ran without any
// retrieved context.
const noContextConfidenceCap = 0.4

func (o *Orchestrator) recordSession(conv *domain.Conversation, query string, plan *domain.IntentPlan, mode string, sourceCount int, report *domain.QualityReport, confidence float64, tokens TokenCounts, stepLog []string) {
	if o.sessions == nil {
		return
	}
	conflicts := 0
	if report != nil {
		conflicts = len(report.Conflicts)
	}
	convID := conv.ID
	row := &domain.LearningSession{
		UserID:           conv.UserID,
		ConversationID:   &convID,
		Query:            query,
		IntentType:       plan.IntentType,
		RetrievalMode:    mode,
		SourceCount:      sourceCount,
		ConflictCount:    conflicts,
		Confidence:       confidence,
		PromptTokens:     tokens.Prompt,
		CompletionTokens: tokens.Completion,
		Steps:            repos.MarshalStringsJSON(stepLog),
	}
	sessCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.sessions.Create(dbctx.Context{Ctx: sessCtx}, row); err != nil {
		o.log.Warn("Learning session write failed", "error", err.Error())
	}
}

func toSourceItems(results []domain.RetrievalResult) []SourceItem {
	items := make([]SourceItem, 0, len(results))
	for _, r := range results {
		items = append(items, SourceItem{
			URL:          r.URL,
			Title:        r.Title,
			Excerpt:      r.Excerpt,
			Authority:    r.Authority,
			LastModified: r.LastModified,
			Score:        r.CombinedScore,
		})
	}
	return items
}

func toConflictItems(conflicts []domain.Conflict) []ConflictItem {
	items := make([]ConflictItem, 0, len(conflicts))
	for _, c := range conflicts {
		items = append(items, ConflictItem{
			Topic:      c.Topic,
			Kind:       c.Kind,
			Severity:   c.Severity,
			Suggestion: c.Suggestion,
		})
	}
	return items
}
