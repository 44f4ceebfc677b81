package tracking

import (
	"encoding/json"
	"strings"
)

// copyPayload deep-copies nested maps and slices so a queued event does not
// share state with the caller. With deny set, the denied fields are dropped
// at any depth.
func copyPayload(data map[string]any, deny bool) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, denied := deniedFields[strings.ToLower(k)]; deny && denied {
			continue
		}
		out[k] = copyValue(v, deny)
	}
	return out
}

func copyValue(v any, deny bool) any {
	switch t := v.(type) {
	case map[string]any:
		return copyPayload(t, deny)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = copyValue(x, deny)
		}
		return out
	default:
		return v
	}
}

// toPayload flattens a typed value into the generic payload shape.
func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
