package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultListKeys are the collection keys the backend is known to use.
var DefaultListKeys = []string{"items", "results", "companies", "tenants"}

// NormalizeList extracts the list of records from a response body.
//
// Precedence, first match wins:
//  1. a top-level array;
//  2. "data" when it is an array;
//  3. for each key in keys (DefaultListKeys when empty): "data".<key>,
//     then <key>, when it is an array;
//  4. any other object becomes a one-element list;
//  5. null or an empty body becomes an empty list.
//
// Scalars are an error.
func NormalizeList(raw json.RawMessage, keys ...string) ([]json.RawMessage, error) {
	if len(keys) == 0 {
		keys = DefaultListKeys
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("normalize list: %w", err)
		}
		return items, nil
	case '{':
	default:
		return nil, fmt.Errorf("normalize list: expected array or object, got %s", kindOf(trimmed))
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("normalize list: %w", err)
	}

	data, hasData := obj["data"]
	if hasData {
		if items, ok := asArray(data); ok {
			return items, nil
		}
	}

	var nested map[string]json.RawMessage
	if hasData && isObject(data) {
		_ = json.Unmarshal(data, &nested)
	}
	for _, key := range keys {
		if v, ok := nested[key]; ok {
			if items, ok := asArray(v); ok {
				return items, nil
			}
		}
		if v, ok := obj[key]; ok {
			if items, ok := asArray(v); ok {
				return items, nil
			}
		}
	}

	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// Decode unmarshals a response body into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unexpected API response format (JSON decode failed): %w", err)
	}
	return out, nil
}

// DecodeList normalizes raw with NormalizeList and decodes every record into T.
func DecodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	items, err := NormalizeList(raw, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := Decode[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return items, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func kindOf(raw []byte) string {
	switch raw[0] {
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}
