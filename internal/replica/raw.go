package replica

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Raw is an untyped payload decoded from the remote service.
type Raw map[string]any

func (raw Raw) lookup(key string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// Has reports whether key holds a non-null value.
func (raw Raw) Has(key string) bool {
	_, ok := raw.lookup(key)
	return ok
}

// String returns the string at key, or fallback when absent or not a string.
func (raw Raw) String(key, fallback string) string {
	value, ok := raw.lookup(key)
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fallback
	}
}

// RequiredString returns the string at key or ErrMissingField.
func (raw Raw) RequiredString(key string) (string, error) {
	value, ok := raw.lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	default:
		return "", fmt.Errorf("%w: %s is %T, want string", ErrMissingField, key, value)
	}
}

// Int64 returns the integer at key, or fallback when absent or not numeric.
func (raw Raw) Int64(key string, fallback int64) int64 {
	value, ok := raw.lookup(key)
	if !ok {
		return fallback
	}
	number, ok := toInt64(value)
	if !ok {
		return fallback
	}
	return number
}

func toInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case float32:
		return int64(typed), true
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return 0, false
		}
		return int64(typed), true
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed, true
		}
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return int64(parsed), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Bool normalizes the value at key to a boolean, or returns fallback.
func (raw Raw) Bool(key string, fallback bool) bool {
	value, ok := raw.lookup(key)
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		number, ok := toInt64(value)
		if !ok {
			return fallback
		}
		return number != 0
	}
}

// Truthy follows JavaScript truthiness: null, false, 0 and "" are false.
func (raw Raw) Truthy(key string) bool {
	value, ok := raw.lookup(key)
	if !ok {
		return false
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0 && !math.IsNaN(typed)
	default:
		number, ok := toInt64(value)
		if ok {
			return number != 0
		}
		return true
	}
}

// Object returns the JSON object at key, or an empty object.
func (raw Raw) Object(key string) map[string]any {
	value, ok := raw.lookup(key)
	if !ok {
		return map[string]any{}
	}
	switch typed := value.(type) {
	case map[string]any:
		return typed
	case Raw:
		return typed
	default:
		return map[string]any{}
	}
}

// Strings returns the string list at key, or an empty list. Non-string
// elements are skipped.
func (raw Raw) Strings(key string) []string {
	value, ok := raw.lookup(key)
	if !ok {
		return []string{}
	}
	switch typed := value.(type) {
	case []string:
		return append([]string{}, typed...)
	case []any:
		values := make([]string, 0, len(typed))
		for _, element := range typed {
			if text, ok := element.(string); ok {
				values = append(values, text)
			}
		}
		return values
	default:
		return []string{}
	}
}

// Objects returns the list of JSON objects at key, or an empty list.
func (raw Raw) Objects(key string) []map[string]any {
	value, ok := raw.lookup(key)
	if !ok {
		return []map[string]any{}
	}
	switch typed := value.(type) {
	case []map[string]any:
		return append([]map[string]any{}, typed...)
	case []any:
		values := make([]map[string]any, 0, len(typed))
		for _, element := range typed {
			if object, ok := element.(map[string]any); ok {
				values = append(values, object)
			}
		}
		return values
	default:
		return []map[string]any{}
	}
}

// JSON encodes the value at key as JSON text; absent values encode as "null".
func (raw Raw) JSON(key string) string {
	value, ok := raw.lookup(key)
	if !ok {
		return "null"
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}

// SanitizeLikeString replaces every character outside [A-Za-z0-9] with an
// underscore so the value can be matched with LIKE without escaping.
func SanitizeLikeString(value string) string {
	if value == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(value))
	for _, character := range value {
		if isLikeSafe(character) {
			builder.WriteRune(character)
			continue
		}
		builder.WriteByte('_')
	}
	return builder.String()
}

func isLikeSafe(character rune) bool {
	return (character >= 'a' && character <= 'z') ||
		(character >= 'A' && character <= 'Z') ||
		(character >= '0' && character <= '9')
}

// fieldReader collects the first missing required field while a projector
// assigns values.
type fieldReader struct {
	raw Raw
	err error
}

func (reader *fieldReader) required(key string) string {
	value, err := reader.raw.RequiredString(key)
	if err != nil && reader.err == nil {
		reader.err = err
	}
	return value
}

// requiredEither reads the first present key, failing only when none is present.
func (reader *fieldReader) requiredEither(keys ...string) string {
	for _, key := range keys {
		if reader.raw.Has(key) {
			return reader.required(key)
		}
	}
	if reader.err == nil {
		reader.err = fmt.Errorf("%w: %s", ErrMissingField, strings.Join(keys, "|"))
	}
	return ""
}
