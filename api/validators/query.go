package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// PathParam trims a route parameter and rejects empty or oversized values.
func PathParam(value, name string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is required").WithDetails(map[string]any{"field": name})
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is too long").WithDetails(map[string]any{"field": name, "max": maxLen})
	}
	return trimmed, nil
}
