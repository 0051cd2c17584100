package steps

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/docsense/docsense-backend/internal/clients/openai"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// JSONCaller is the structured-output capability of the LLM client.
type JSONCaller interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any, opts openai.CallOptions) (map[string]any, openai.Usage, error)
}

// TextStreamer is the streamed-output capability of the LLM client.
type TextStreamer interface {
	StreamText(ctx context.Context, system string, user string, opts openai.CallOptions, onDelta func(delta string)) (string, openai.Usage, error)
}

// IntentAnalyzer runs the cheap model once per request to classify the query
// and plan retrieval. It never fails the pipeline: any error degrades to the
// default plan.
type IntentAnalyzer struct {
	log     *logger.Logger
	ai      JSONCaller
	opts    openai.CallOptions
	timeout time.Duration
}

func NewIntentAnalyzer(log *logger.Logger, ai JSONCaller, model string, timeout time.Duration) *IntentAnalyzer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntentAnalyzer{
		log: log.With("service", "IntentAnalyzer"),
		ai:  ai,
		opts: openai.CallOptions{
			Model:           model,
			Temperature:     0.1,
			MaxOutputTokens: 400,
		},
		timeout: timeout,
	}
}

func (a *IntentAnalyzer) Analyze(ctx context.Context, query, summary, recent string) (*domain.IntentPlan, openai.Usage) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	system, user := promptIntent(query, summary, recent)
	obj, usage, err := a.ai.GenerateJSON(callCtx, system, user, "intent_plan", schemaIntent(), a.opts)
	if err != nil {
		a.log.Warn("Intent analysis failed, using default plan", "error", err.Error())
		return domain.DefaultIntentPlan(), usage
	}

	plan, err := parseIntentPlan(obj)
	if err != nil {
		a.log.Warn("Intent plan unparseable, using default plan", "error", err.Error())
		return domain.DefaultIntentPlan(), usage
	}
	return plan, usage
}

func parseIntentPlan(obj map[string]any) (*domain.IntentPlan, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var plan domain.IntentPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}

	if !domain.ValidIntentType(plan.IntentType) {
		plan.IntentType = domain.IntentOther
	}
	if plan.ConversationType == "" {
		plan.ConversationType = domain.ConversationInformational
	}
	if plan.ResponseStyle.Format == "" {
		plan.ResponseStyle.Format = domain.FormatProse
	}
	if plan.ResponseStyle.Depth == "" {
		plan.ResponseStyle.Depth = domain.DepthNormal
	}

	var focus []string
	for _, f := range plan.SearchFocus {
		if f = strings.TrimSpace(f); f != "" {
			focus = append(focus, f)
		}
	}
	plan.SearchFocus = focus

	var candidates []domain.AliasCandidate
	for _, c := range plan.AliasCandidates {
		a, b := strings.TrimSpace(c.TermA), strings.TrimSpace(c.TermB)
		if a != "" && b != "" && !strings.EqualFold(a, b) {
			candidates = append(candidates, domain.AliasCandidate{TermA: a, TermB: b})
		}
	}
	plan.AliasCandidates = candidates
	return &plan, nil
}
