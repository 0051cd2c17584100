package qdrant

import (
	"fmt"
	"sort"
)

// translateFilter converts a flat equality/membership filter into the qdrant
// filter DSL. A string or number value becomes a match condition; a []string
// becomes match any. Keys are processed in sorted order so requests are
// deterministic.
func translateFilter(filter map[string]any) (map[string]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	must := make([]any, 0, len(keys))
	for _, key := range keys {
		switch v := filter[key].(type) {
		case string:
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": v},
			})
		case bool, int, int64, float64:
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": v},
			})
		case []string:
			vals := make([]any, 0, len(v))
			for _, s := range v {
				vals = append(vals, s)
			}
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"any": vals},
			})
		default:
			return nil, opErr("filter", OperationErrorValidation, fmt.Sprintf("unsupported filter value for key %q: %T", key, filter[key]), nil)
		}
	}
	return map[string]any{"must": must}, nil
}
