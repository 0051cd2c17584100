package steps

import (
	"context"
	"strings"
	"time"

	"github.com/docsense/docsense-backend/internal/clients/openai"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/normalization"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// ReviewDecision is the reviewer verdict. At most one revision per request.
type ReviewDecision struct {
	NeedsRevision bool
	Reason        string
}

// Reviewer checks a drafted answer against the retrieved chunks with the
// cheap model. Timeouts and errors skip the review rather than fail the
// request.
type Reviewer struct {
	log     *logger.Logger
	ai      JSONCaller
	opts    openai.CallOptions
	timeout time.Duration
}

func NewReviewer(log *logger.Logger, ai JSONCaller, model string, timeout time.Duration) *Reviewer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reviewer{
		log: log.With("service", "Reviewer"),
		ai:  ai,
		opts: openai.CallOptions{
			Model:           model,
			Temperature:     0.0,
			MaxOutputTokens: 200,
		},
		timeout: timeout,
	}
}

var noInfoMarkers = []string{
	"no information",
	"couldn't find",
	"could not find",
	"don't have any information",
	"do not have any information",
	"nothing in the documentation",
}

func (r *Reviewer) Review(ctx context.Context, query string, results []domain.RetrievalResult, answer string) ReviewDecision {
	if len(results) == 0 {
		return ReviewDecision{}
	}

	// Cheap pre-check: an answer that claims the docs are silent while the
	// top chunks clearly cover the query terms needs no model call.
	if claimsNoInformation(answer) && topChunkOverlap(query, results) >= 0.5 {
		return ReviewDecision{
			NeedsRevision: true,
			Reason:        "the answer claims no information exists but the retrieved chunks cover the question",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	system, user := promptReview(query, renderChunks(results, contextCharBudget), answer)
	obj, _, err := r.ai.GenerateJSON(callCtx, system, user, "review", schemaReview(), r.opts)
	if err != nil {
		r.log.Warn("Review skipped", "error", err.Error())
		return ReviewDecision{}
	}

	needs, _ := obj["needs_revision"].(bool)
	reason, _ := obj["reason"].(string)
	return ReviewDecision{NeedsRevision: needs, Reason: strings.TrimSpace(reason)}
}

func claimsNoInformation(answer string) bool {
	a := strings.ToLower(answer)
	for _, m := range noInfoMarkers {
		if strings.Contains(a, m) {
			return true
		}
	}
	return false
}

// topChunkOverlap is the best query-term coverage among the top 3 chunks.
func topChunkOverlap(query string, results []domain.RetrievalResult) float64 {
	terms := normalization.ContentTokens(query)
	if len(terms) == 0 {
		return 0
	}
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	best := 0.0
	for _, r := range top {
		text := strings.ToLower(r.Excerpt)
		hit := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				hit++
			}
		}
		if v := float64(hit) / float64(len(terms)); v > best {
			best = v
		}
	}
	return best
}
