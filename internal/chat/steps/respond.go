package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsense/docsense-backend/internal/clients/openai"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// contextCharBudget caps the retrieved-chunk section of the system prompt,
// roughly 6000 tokens at 4 chars per token.
const contextCharBudget = 24000

const summaryCharCap = 400

// RespondInput is everything the generation prompt is assembled from.
type RespondInput struct {
	Query   string
	Plan    *domain.IntentPlan
	Summary string
	History string

	Results []domain.RetrievalResult
	Report  *domain.QualityReport

	AuthorsNote string

	// NoContext marks a request where retrieval produced nothing usable;
	// the answer must say so explicitly.
	NoContext bool

	// RevisionReason is set on the single reviewer-triggered second pass.
	RevisionReason string
}

// Generator streams the main model's answer.
type Generator struct {
	log  *logger.Logger
	ai   TextStreamer
	opts openai.CallOptions
}

func NewGenerator(log *logger.Logger, ai TextStreamer, model string, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &Generator{
		log: log.With("service", "ResponseGenerator"),
		ai:  ai,
		opts: openai.CallOptions{
			Model:           model,
			Temperature:     0.3,
			MaxOutputTokens: maxTokens,
		},
	}
}

func (g *Generator) Generate(ctx context.Context, in RespondInput, onDelta func(string)) (string, openai.Usage, error) {
	system := buildSystemPrompt(in)

	var user strings.Builder
	if in.History != "" {
		user.WriteString(in.History)
		user.WriteString("\n\n")
	}
	user.WriteString("User: ")
	user.WriteString(in.Query)

	return g.ai.StreamText(ctx, system, user.String(), g.opts, onDelta)
}

// buildSystemPrompt assembles the fixed-order prompt sections. Order is part
// of the output contract: identity, priority protocol, format, context
// summary, retrieved context, quality report, authors note last.
func buildSystemPrompt(in RespondInput) string {
	var b strings.Builder

	b.WriteString(`You are Docsense, the internal documentation assistant.
You answer questions about the company's systems, teams, and processes using
the retrieved documentation provided below.` + "\n\n")

	b.WriteString(`Priority protocol:
1. Retrieved documentation is the primary source of truth. Cite it by title.
2. When sources disagree, prefer the fresher, higher-authority one and say so.
3. Never invent facts absent from the sources. Say what you do not know.` + "\n")
	if in.NoContext {
		b.WriteString(`4. No authoritative source was found for this question. State that
explicitly ("no authoritative source found") before offering any general guidance.` + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Format: ")
	b.WriteString(formatInstruction(in.Plan))
	b.WriteString("\n\n")

	if s := truncateChars(in.Summary, summaryCharCap); s != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}

	if len(in.Results) > 0 {
		b.WriteString("Retrieved documentation (ranked):\n")
		b.WriteString(renderChunks(in.Results, contextCharBudget))
		b.WriteString("\n")
	}

	if in.Report != nil && len(in.Report.Conflicts) > 0 {
		b.WriteString("Source quality notes:\n")
		for _, c := range in.Report.Conflicts {
			fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", c.Kind, c.Severity, c.Topic, c.Suggestion)
		}
		b.WriteString("\n")
	}

	if in.RevisionReason != "" {
		b.WriteString("Revision request: a review of your previous draft found: ")
		b.WriteString(in.RevisionReason)
		b.WriteString("\nAddress this in the new answer.\n\n")
	}

	if note := strings.TrimSpace(in.AuthorsNote); note != "" {
		b.WriteString("Authors note (user-provided standing instruction, honor it last):\n")
		b.WriteString(note)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatInstruction(plan *domain.IntentPlan) string {
	format, depth := domain.FormatProse, domain.DepthNormal
	if plan != nil {
		if plan.ResponseStyle.Format != "" {
			format = plan.ResponseStyle.Format
		}
		if plan.ResponseStyle.Depth != "" {
			depth = plan.ResponseStyle.Depth
		}
	}
	var f string
	switch format {
	case domain.FormatSteps:
		f = "numbered steps"
	case domain.FormatList:
		f = "a bulleted list"
	case domain.FormatCode:
		f = "a code block with a short explanation"
	default:
		f = "prose"
	}
	var d string
	switch depth {
	case domain.DepthBrief:
		d = "brief"
	case domain.DepthDetailed:
		d = "detailed"
	default:
		d = "normally detailed"
	}
	return "answer as " + f + ", " + d + "."
}

// renderChunks emits results in rank order until the char budget is spent.
// A chunk that does not fit whole is dropped, not split.
func renderChunks(results []domain.RetrievalResult, budget int) string {
	var b strings.Builder
	for i, r := range results {
		entry := fmt.Sprintf("[%d] %s (%s, authority %.2f, modified %s)\n%s\n\n",
			i+1, r.Title, r.URL, r.Authority, r.LastModified.Format("2006-01-02"), strings.TrimSpace(r.Excerpt))
		if b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

func truncateChars(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
