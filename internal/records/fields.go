package records

import (
	"encoding/json"
	"fmt"
	"math"

	"larder/internal/docstore"
)

// stringField reads an optional string attribute
func stringField(f docstore.Fields, key string) (string, error) {
	switch v := f[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("field %s: want string, got %T", key, v)
	}
}

// floatField reads an optional numeric attribute as float64
func floatField(f docstore.Fields, key string) (float64, error) {
	if f[key] == nil {
		return 0, nil
	}
	v, err := toFloat(f[key])
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return v, nil
}

// intField reads an optional integral attribute
func intField(f docstore.Fields, key string) (int64, error) {
	if f[key] == nil {
		return 0, nil
	}
	v, err := toFloat(f[key])
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("field %s: want integer, got %v", key, v)
	}
	return int64(v), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}
