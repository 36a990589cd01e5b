package core

import (
	"regexp"
	"strings"
)

const RedactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{"token", "credential", "secret", "authorization", "bearer", "password"}

// compactJWT matches a three-segment base64url token.
var compactJWT = regexp.MustCompile(`^[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+$`)

// RedactSensitiveMap returns a copy of metadata with credential material
// replaced. Keys naming a credential are redacted outright; string values
// that look like bearer tokens are redacted under any key.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	target := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case string:
		if looksLikeToken(typed) {
			return RedactedValue
		}
		return typed
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func looksLikeToken(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return true
	}
	return compactJWT.MatchString(value)
}
