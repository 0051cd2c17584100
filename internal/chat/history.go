package chat

import (
	"strings"

	"github.com/docsense/docsense-backend/internal/domain"
)

const (
	defaultKeepExchanges = 4
	defaultTruncateChars = 3000
)

// HistoryWindow is the prompt-ready slice of a conversation: the last few
// exchanges verbatim, older turns represented only by the persisted summary.
type HistoryWindow struct {
	// Verbatim holds the kept messages oldest-first.
	Verbatim []*domain.Message
	Summary  string
}

// BuildHistoryWindow trims recent (newest-first, as the repo returns them)
// to the last keepExchanges user/assistant exchanges, bounded by maxChars of
// message content. The char bound wins: a window over budget drops whole
// messages from the oldest end until it fits.
func BuildHistoryWindow(recent []*domain.Message, summary string, keepExchanges, maxChars int) HistoryWindow {
	if keepExchanges <= 0 {
		keepExchanges = defaultKeepExchanges
	}
	if maxChars <= 0 {
		maxChars = defaultTruncateChars
	}

	// Walk newest to oldest counting completed exchanges at user turns.
	var kept []*domain.Message
	exchanges := 0
	chars := 0
	for _, m := range recent {
		if exchanges >= keepExchanges {
			break
		}
		if chars+len(m.Content) > maxChars && len(kept) > 0 {
			break
		}
		kept = append(kept, m)
		chars += len(m.Content)
		if m.Role == domain.RoleUser {
			exchanges++
		}
	}

	// Reverse into chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return HistoryWindow{Verbatim: kept, Summary: strings.TrimSpace(summary)}
}

// Render formats the window for the generation prompt.
func (w HistoryWindow) Render() string {
	var b strings.Builder
	if w.Summary != "" {
		b.WriteString("Earlier conversation summary: ")
		b.WriteString(w.Summary)
		b.WriteString("\n\n")
	}
	for _, m := range w.Verbatim {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
