package chat

import (
	"strings"
	"testing"

	"github.com/docsense/docsense-backend/internal/domain"
)

// newestFirst builds a repo-ordered message list from chronological input.
func newestFirst(msgs ...*domain.Message) []*domain.Message {
	out := make([]*domain.Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[len(msgs)-1-i]
	}
	return out
}

func msg(role, content string) *domain.Message {
	return &domain.Message{Role: role, Content: content}
}

func TestBuildHistoryWindowKeepsLastExchanges(t *testing.T) {
	var chrono []*domain.Message
	for i := 0; i < 6; i++ {
		chrono = append(chrono, msg(domain.RoleUser, "question"), msg(domain.RoleAssistant, "answer"))
	}
	w := BuildHistoryWindow(newestFirst(chrono...), "", 4, 3000)

	users := 0
	for _, m := range w.Verbatim {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	if users != 4 {
		t.Fatalf("kept %d exchanges, want 4", users)
	}
	if w.Verbatim[0].Role != domain.RoleUser {
		t.Fatalf("window must start at a user turn, got %s", w.Verbatim[0].Role)
	}
	if last := w.Verbatim[len(w.Verbatim)-1]; last.Role != domain.RoleAssistant {
		t.Fatalf("window must end at the latest turn, got %s", last.Role)
	}
}

func TestBuildHistoryWindowCharBoundDropsOldest(t *testing.T) {
	big := strings.Repeat("x", 2000)
	chrono := []*domain.Message{
		msg(domain.RoleUser, big),
		msg(domain.RoleAssistant, big),
		msg(domain.RoleUser, "small"),
		msg(domain.RoleAssistant, "tiny"),
	}
	w := BuildHistoryWindow(newestFirst(chrono...), "", 4, 3000)

	total := 0
	for _, m := range w.Verbatim {
		total += len(m.Content)
	}
	if total > 3000 {
		t.Fatalf("window holds %d chars, budget 3000", total)
	}
	// The newest turns survive.
	if len(w.Verbatim) == 0 || w.Verbatim[len(w.Verbatim)-1].Content != "tiny" {
		t.Fatalf("newest turn must be kept: %+v", w.Verbatim)
	}
}

func TestBuildHistoryWindowAlwaysKeepsNewestMessage(t *testing.T) {
	huge := strings.Repeat("y", 5000)
	w := BuildHistoryWindow(newestFirst(msg(domain.RoleAssistant, huge)), "", 4, 3000)
	if len(w.Verbatim) != 1 {
		t.Fatalf("oversized newest message must still be kept, got %d", len(w.Verbatim))
	}
}

func TestHistoryWindowRender(t *testing.T) {
	chrono := []*domain.Message{
		msg(domain.RoleUser, "where is the runbook?"),
		msg(domain.RoleAssistant, "In the wiki under SRE."),
	}
	w := BuildHistoryWindow(newestFirst(chrono...), "earlier talk about deploys", 4, 3000)
	out := w.Render()

	if !strings.HasPrefix(out, "Earlier conversation summary: earlier talk about deploys") {
		t.Fatalf("summary missing from render:\n%s", out)
	}
	if !strings.Contains(out, "User: where is the runbook?") ||
		!strings.Contains(out, "Assistant: In the wiki under SRE.") {
		t.Fatalf("turns missing from render:\n%s", out)
	}
	if strings.Index(out, "User:") > strings.Index(out, "Assistant:") {
		t.Fatalf("turns out of order:\n%s", out)
	}
}
