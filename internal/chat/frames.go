package chat

import "time"

// Frame types on the response stream. One final frame terminates a
// successful stream; one error frame terminates a failed one.
const (
	FrameStep      = "step"
	FrameToken     = "token"
	FrameSources   = "sources"
	FrameConflicts = "conflicts"
	FrameFinal     = "final"
	FrameError     = "error"
)

// Pipeline phases carried on step frames.
const (
	PhaseAnalyzing  = "analyzing"
	PhaseRetrieving = "retrieving"
	PhaseQuality    = "quality"
	PhaseGenerating = "generating"
	PhaseReviewing  = "reviewing"
	PhaseDone       = "done"
)

type SourceItem struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Excerpt      string    `json:"excerpt"`
	Authority    float64   `json:"authority"`
	LastModified time.Time `json:"last_modified"`
	Score        float64   `json:"score"`
}

type ConflictItem struct {
	Topic      string `json:"topic"`
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion"`
}

type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// Frame is one newline-delimited JSON object on the response stream.
type Frame struct {
	Type string `json:"type"`

	// step
	Seq     int    `json:"seq,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`

	// token
	Text string `json:"text,omitempty"`

	// sources carry []SourceItem, conflicts carry []ConflictItem; both
	// serialize under "items" per the frame protocol.
	Items any `json:"items,omitempty"`

	// final
	ConversationID string       `json:"conversation_id,omitempty"`
	MessageID      string       `json:"message_id,omitempty"`
	Confidence     *float64     `json:"confidence,omitempty"`
	Tokens         *TokenCounts `json:"tokens,omitempty"`

	// error
	Code string `json:"code,omitempty"`
}

func StepFrame(seq int, phase, message string) Frame {
	return Frame{Type: FrameStep, Seq: seq, Phase: phase, Message: message}
}

func TokenFrame(text string) Frame {
	return Frame{Type: FrameToken, Text: text}
}

// SourcesFrame always carries a non-nil slice so an empty result still
// serializes as "items": [].
func SourcesFrame(items []SourceItem) Frame {
	if items == nil {
		items = []SourceItem{}
	}
	return Frame{Type: FrameSources, Items: items}
}

func ConflictsFrame(items []ConflictItem) Frame {
	if items == nil {
		items = []ConflictItem{}
	}
	return Frame{Type: FrameConflicts, Items: items}
}

func FinalFrame(conversationID, messageID string, confidence float64, tokens TokenCounts) Frame {
	return Frame{
		Type:           FrameFinal,
		ConversationID: conversationID,
		MessageID:      messageID,
		Confidence:     &confidence,
		Tokens:         &tokens,
	}
}

func ErrorFrame(code, message string) Frame {
	return Frame{Type: FrameError, Code: code, Message: message}
}
