package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timestampKey tags a timestamp inside a JSON payload
const timestampKey = "$timestamp"

// encodePayload serializes fields to JSON, tagging timestamps so they decode
// back to time.Time
func encodePayload(f Fields) (string, error) {
	data, err := json.Marshal(tagValue(map[string]any(f)))
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// decodePayload is the inverse of encodePayload. Integral numbers decode as
// int64, the rest as float64.
func decodePayload(payload string) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrCorrupt, err)
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		val, err := untagValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: decode field %s: %w", ErrCorrupt, k, err)
		}
		out[k] = val
	}
	return out, nil
}

func tagValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{timestampKey: t.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if t == nil {
			return nil
		}
		return tagValue(*t)
	case Fields:
		return tagValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = tagValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = tagValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = tagValue(e)
		}
		return out
	}
	return v
}

func untagValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case map[string]any:
		if raw, ok := t[timestampKey]; ok && len(t) == 1 {
			s, _ := raw.(string)
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("timestamp %q: %w", s, err)
			}
			return ts, nil
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			val, err := untagValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			val, err := untagValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	}
	return v, nil
}
