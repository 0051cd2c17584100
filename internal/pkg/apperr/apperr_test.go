package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := Wrap(CodeRateLimited, "token budget exhausted", errors.New("bucket empty"))
	wrapped := fmt.Errorf("answer: %w", base)
	if got := CodeOf(wrapped); got != CodeRateLimited {
		t.Fatalf("CodeOf: want=%q got=%q", CodeRateLimited, got)
	}
	if got := MessageOf(wrapped); got != "token budget exhausted" {
		t.Fatalf("MessageOf: want=%q got=%q", "token budget exhausted", got)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternalError {
		t.Fatalf("CodeOf: want=%q got=%q", CodeInternalError, got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:           http.StatusBadRequest,
		CodeUnauthorized:         http.StatusUnauthorized,
		CodeConversationBusy:     http.StatusConflict,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeRetrievalUnavailable: http.StatusServiceUnavailable,
		CodeInternalError:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Fatalf("HTTPStatus(%s): want=%d got=%d", code, want, got)
		}
	}
}
