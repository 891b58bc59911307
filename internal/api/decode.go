package api

import (
	"encoding/json"
	"fmt"
)

// The admin endpoints answer with either a bare array or an object wrapping
// the array under a named field, depending on backend version. The shape is
// resolved exactly once here; nothing downstream re-sniffs it.

// unionList decodes raw as either []T or {field: []T}.
func unionList[T any](raw json.RawMessage, field string) ([]T, error) {
	var direct []T
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("list is neither array nor object: %w", err)
	}
	inner, ok := wrapped[field]
	if !ok {
		return nil, fmt.Errorf("object list missing %q field", field)
	}
	var out []T
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, fmt.Errorf("decode %q list: %w", field, err)
	}
	return out, nil
}
