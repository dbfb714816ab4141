package tool

// Parameter readers for the map[string]any arguments the model sends.
// Schemas are advisory, so every reader tolerates missing keys and
// wrong types and falls back to the zero value or a default.

func getString(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func getStringOr(params map[string]any, key, def string) string {
	if v := getString(params, key); v != "" {
		return v
	}
	return def
}

// getFloat reads a numeric argument. JSON numbers decode as float64,
// but a model occasionally sends an int-typed value through a handler
// test, so both are accepted.
func getFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func getFloatOr(params map[string]any, key string, def float64) float64 {
	if v, ok := getFloat(params, key); ok {
		return v
	}
	return def
}

func getIntOr(params map[string]any, key string, def int) int {
	if v, ok := getFloat(params, key); ok {
		return int(v)
	}
	return def
}

func getBool(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func getStringSlice(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
