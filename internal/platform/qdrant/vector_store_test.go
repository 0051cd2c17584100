package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/docsense/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/docsense/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []Point{
		{ID: "chunk-1", Vector: []float32{1, 2, 3}, Payload: map[string]any{"title": "Runbook"}},
		{ID: "chunk-2", Vector: []float32{4, 5, 6}, Payload: map[string]any{"title": "Guide"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(points))
	}
	first, ok := points[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", points[0])
	}
	if first["id"] != "chunk-1" {
		t.Fatalf("point id: want=%q got=%v", "chunk-1", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok || payload["title"] != "Runbook" {
		t.Fatalf("payload: got=%v", first["payload"])
	}
}

func TestVectorStoreUpsertValidation(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected on validation failure")
		return nil, nil
	})

	cases := map[string][]Point{
		"empty id":           {{ID: " ", Vector: []float32{1, 2, 3}}},
		"empty vector":       {{ID: "chunk-1"}},
		"dimension mismatch": {{ID: "chunk-1", Vector: []float32{1, 2}}},
	}
	for name, points := range cases {
		err := s.Upsert(context.Background(), points)
		if err == nil {
			t.Fatalf("%s: expected error, got nil", name)
		}
		var opError *OperationError
		if !errors.As(err, &opError) || opError.Code != OperationErrorValidation {
			t.Fatalf("%s: want validation error, got %v", name, err)
		}
	}
}

func TestVectorStoreSearchDecodesAndOrders(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/docsense/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/docsense/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "chunk-b", "score": 0.40, "payload": map[string]any{"title": "B"}},
			{"id": "chunk-c", "score": 0.90, "payload": map[string]any{"title": "C"}},
			{"id": "chunk-a", "score": 0.40, "payload": map[string]any{"title": "A"}},
		}), nil
	})

	matches, err := s.Search(context.Background(), []float32{1, 2, 3}, 3, map[string]any{"source_kind": "wiki"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches length: want=3 got=%d", len(matches))
	}
	// Descending score, ID tie-break.
	if matches[0].ID != "chunk-c" || matches[1].ID != "chunk-a" || matches[2].ID != "chunk-b" {
		t.Fatalf("ordering: got=%v", []string{matches[0].ID, matches[1].ID, matches[2].ID})
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("must: got=%v", filter["must"])
	}
	if captured["with_payload"] != true {
		t.Fatalf("with_payload: got=%v", captured["with_payload"])
	}
}

func TestVectorStoreSearchValidation(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected on validation failure")
		return nil, nil
	})

	if _, err := s.Search(context.Background(), nil, 5, nil); err == nil {
		t.Fatalf("empty vector must fail")
	}
	_, err := s.Search(context.Background(), []float32{1, 2}, 5, nil)
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorValidation {
		t.Fatalf("dimension mismatch: want validation error, got %v", err)
	}
}

func TestVectorStoreScrollPaging(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docsense/points/scroll" {
			t.Fatalf("path: want=%q got=%q", "/collections/docsense/points/scroll", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{
			"points": []map[string]any{
				{"id": "chunk-1", "payload": map[string]any{"title": "A"}},
				{"id": "chunk-2", "payload": map[string]any{"title": "B"}},
			},
			"next_page_offset": "chunk-3",
		}), nil
	})

	points, next, err := s.Scroll(context.Background(), nil, "chunk-1", 50)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(points))
	}
	if next != "chunk-3" {
		t.Fatalf("next cursor: want=%q got=%q", "chunk-3", next)
	}
	if captured["offset"] != "chunk-1" {
		t.Fatalf("offset: want=%q got=%v", "chunk-1", captured["offset"])
	}
}

func TestVectorStoreDeleteDedupes(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docsense/points/delete" {
			t.Fatalf("path: want=%q got=%q", "/collections/docsense/points/delete", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	if err := s.Delete(context.Background(), []string{"chunk-1", "chunk-1", " ", "chunk-2"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(points))
	}
	if points[0] != "chunk-1" || points[1] != "chunk-2" {
		t.Fatalf("points: got=%v", points)
	}
}

func TestVectorStoreSurfacesQueryFailedStatus(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"overloaded"}}`))),
		}, nil
	})

	_, err := s.Search(context.Background(), []float32{1, 2, 3}, 5, nil)
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorQueryFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorQueryFailed, opError.Code)
	}
	if opError.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: want=%d got=%d", http.StatusServiceUnavailable, opError.StatusCode)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opError.Code)
	}
}

func TestClassifyHTTPCallErrorNetTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", fakeNetError{timeout: true})
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opError.Code)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorTransportFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTransportFailed, opError.Code)
	}
}

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	return &vectorStore{
		log:     logger.NewNop(),
		cfg:     Config{URL: "http://qdrant.local", Collection: "docsense", VectorDim: 3},
		baseURL: "http://qdrant.local",
		http: &http.Client{
			Transport: roundTripFunc(roundTrip),
		},
	}
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
