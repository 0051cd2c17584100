package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterEqualityAndMembership(t *testing.T) {
	got, err := translateFilter(map[string]any{
		"source_kind": "wiki",
		"document_id": []string{"doc-1", "doc-2"},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	must, ok := got["must"].([]any)
	if !ok {
		t.Fatalf("must type: got=%T", got["must"])
	}
	if len(must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(must))
	}

	docCond := findConditionByKey(must, "document_id")
	if docCond == nil {
		t.Fatalf("missing document_id condition")
	}
	docMatch, ok := docCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("document_id match type: got=%T", docCond["match"])
	}
	anyVals, ok := docMatch["any"].([]any)
	if !ok {
		t.Fatalf("document_id any type: got=%T", docMatch["any"])
	}
	if len(anyVals) != 2 || anyVals[0] != "doc-1" || anyVals[1] != "doc-2" {
		t.Fatalf("document_id any values: got=%v", anyVals)
	}

	kindCond := findConditionByKey(must, "source_kind")
	if kindCond == nil {
		t.Fatalf("missing source_kind condition")
	}
	kindMatch, ok := kindCond["match"].(map[string]any)
	if !ok || kindMatch["value"] != "wiki" {
		t.Fatalf("source_kind match: got=%v", kindCond["match"])
	}
}

func TestTranslateFilterSortsKeys(t *testing.T) {
	got, err := translateFilter(map[string]any{
		"zeta":  "z",
		"alpha": "a",
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	must := got["must"].([]any)
	first := must[0].(map[string]any)
	if first["key"] != "alpha" {
		t.Fatalf("conditions must be key-sorted, first=%v", first["key"])
	}
}

func TestTranslateFilterEmpty(t *testing.T) {
	got, err := translateFilter(nil)
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if got != nil {
		t.Fatalf("empty filter must translate to nil, got=%v", got)
	}
}

func TestTranslateFilterUnsupportedValue(t *testing.T) {
	_, err := translateFilter(map[string]any{
		"score": map[string]any{"$gt": 2},
	})
	if err == nil {
		t.Fatalf("translateFilter: expected error, got nil")
	}
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opError.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, opError.Code)
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
