package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	c, err := NewClient(logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func sseBody(events ...[2]string) string {
	var b strings.Builder
	for _, ev := range events {
		if ev[0] != "" {
			b.WriteString("event: " + ev[0] + "\n")
		}
		b.WriteString("data: " + ev[1] + "\n\n")
	}
	return b.String()
}

func TestStreamTextForwardsDeltasVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseBody(
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"Hello "}`},
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":" "}`},
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"world"}`},
			[2]string{"response.completed", `{"type":"response.completed","response":{"usage":{"input_tokens":12,"output_tokens":3}}}`},
			[2]string{"", "[DONE]"},
		)))
	})

	var deltas []string
	full, usage, err := c.StreamText(context.Background(), "sys", "user", CallOptions{Model: "main-large"}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Whitespace inside and at the edges of deltas must survive untouched.
	if full != "Hello  world" {
		t.Fatalf("full text = %q", full)
	}
	if want := []string{"Hello ", " ", "world"}; !reflect.DeepEqual(deltas, want) {
		t.Fatalf("deltas = %q, want %q", deltas, want)
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 3 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestStreamTextSurfacesStreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseBody(
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"partial"}`},
			[2]string{"error", `{"type":"error","error":{"message":"rate limited"}}`},
		)))
	})

	_, _, err := c.StreamText(context.Background(), "sys", "user", CallOptions{Model: "main-large"}, nil)
	if err == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v", err)
	}
}

func TestStreamTextRejectsMissingModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if _, _, err := c.StreamText(context.Background(), "sys", "user", CallOptions{}, nil); err == nil {
		t.Fatal("expected model-required error")
	}
}
