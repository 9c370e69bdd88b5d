package harness

import "fmt"

// toInt64 accepts the integer shapes YAML and callers produce.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func requireInt(args map[string]interface{}, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
	return n, nil
}

func requireInts(args map[string]interface{}, key string) ([]int64, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %q must be a list, got %T", key, v)
	}
	out := make([]int64, len(list))
	for i, e := range list {
		n, ok := toInt64(e)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d] must be an integer, got %T", key, i, e)
		}
		out[i] = n
	}
	return out, nil
}

func optInt(args map[string]interface{}, key string, def int64) int64 {
	if n, ok := toInt64(args[key]); ok {
		return n
	}
	return def
}

func optBool(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func optString(args map[string]interface{}, key string, def string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return def
}
