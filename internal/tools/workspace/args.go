package workspace

import (
	"fmt"

	"github.com/jaakkos/cowork/internal/domain"
)

// requireString extracts a non-empty string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// optionalFloat64 extracts a float64 from args by key, returning the fallback if not present.
func optionalFloat64(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

func optionalBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// optionalObject returns a JSON object argument, or nil when absent.
// A present value that is not an object is an error.
func optionalObject(args map[string]any, key string) (map[string]any, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", key, v)
	}
	return m, nil
}

// optionalRole parses a role argument. Empty yields "".
func optionalRole(args map[string]any, key string) (domain.Role, error) {
	s := optionalString(args, key)
	if s == "" {
		return "", nil
	}
	r, err := domain.ParseRole(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return r, nil
}
