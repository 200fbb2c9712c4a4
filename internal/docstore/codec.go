package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// toMap renders doc as a JSON object so backends can inspect and set the id.
func toMap(doc any) (map[string]any, error) {
	if m, ok := doc.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return normalize(out)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: document must encode to an object: %w", err)
	}
	return out, nil
}

// normalize round-trips through JSON so values compare the way they would
// after being read back.
func normalize(m map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func idOf(m map[string]any) string {
	if id, ok := m["id"].(string); ok {
		return id
	}
	return ""
}

func matches(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalize(map[string]any{"v": f.Value})
		if err != nil {
			return false
		}
		if !reflect.DeepEqual(doc[f.Field], want["v"]) {
			return false
		}
	}
	return true
}

func decodeInto(src any, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("docstore: encode: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}
