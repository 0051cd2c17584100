package domain

const (
	IntentGreeting    = "greeting"
	IntentTeamInquiry = "team_inquiry"
	IntentProcedure   = "procedure"
	IntentDiagnostic  = "diagnostic"
	IntentCodeRequest = "code_request"
	IntentExplanation = "explanation"
	IntentFollowup    = "followup"
	IntentOther       = "other"
)

const (
	ConversationCasual        = "casual"
	ConversationInformational = "informational"
	ConversationTask          = "task"
)

const (
	FormatProse = "prose"
	FormatSteps = "steps"
	FormatList  = "list"
	FormatCode  = "code"
)

const (
	DepthBrief    = "brief"
	DepthNormal   = "normal"
	DepthDetailed = "detailed"
)

type ResponseStyle struct {
	Format string `json:"format"`
	Depth  string `json:"depth"`
}

type MentionedEntities struct {
	People []string `json:"people"`
	Teams  []string `json:"teams"`
	Tools  []string `json:"tools"`
}

// AliasCandidate is a conversational alias pair surfaced by the intent
// analyzer from user/assistant turns.
type AliasCandidate struct {
	TermA string `json:"term_a"`
	TermB string `json:"term_b"`
}

// IntentPlan is the structured output of the cheap analyzer model. The
// orchestrator trusts it; there are no keyword overrides layered on top.
type IntentPlan struct {
	IntentType       string `json:"intent_type"`
	ConversationType string `json:"conversation_type"`
	NeedsRetrieval   bool   `json:"needs_retrieval"`

	SearchFocus   []string      `json:"search_focus"`
	ResponseStyle ResponseStyle `json:"response_style"`

	MentionedEntities   MentionedEntities `json:"mentioned_entities"`
	UnresolvedQuestions []string          `json:"unresolved_questions"`

	ContextSummary  string           `json:"context_summary"`
	AliasCandidates []AliasCandidate `json:"alias_candidates,omitempty"`
}

// DefaultIntentPlan is used when the analyzer times out or returns
// unparseable output.
func DefaultIntentPlan() *IntentPlan {
	return &IntentPlan{
		IntentType:       IntentOther,
		ConversationType: ConversationInformational,
		NeedsRetrieval:   true,
		ResponseStyle:    ResponseStyle{Format: FormatProse, Depth: DepthNormal},
	}
}

func ValidIntentType(s string) bool {
	switch s {
	case IntentGreeting, IntentTeamInquiry, IntentProcedure, IntentDiagnostic,
		IntentCodeRequest, IntentExplanation, IntentFollowup, IntentOther:
		return true
	}
	return false
}
