package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	MinLevel = 0
	MaxLevel = 100
)

// ClampLevel bounds a level to [MinLevel, MaxLevel]
func ClampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// CoerceLevel converts a decoded JSON value into a level.
// Malformed input yields 0 instead of an error; the result is always clamped.
func CoerceLevel(raw interface{}) int {
	switch v := raw.(type) {
	case nil:
		return 0
	case int:
		return ClampLevel(v)
	case int64:
		return clampFloat(float64(v))
	case float64:
		return clampFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampFloat(float64(n))
		}
		if f, err := v.Float64(); err == nil {
			return clampFloat(f)
		}
		return 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return ClampLevel(n)
	default:
		return 0
	}
}

// clampFloat truncates toward zero after bounding, so huge values never overflow int
func clampFloat(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f <= MinLevel {
		return MinLevel
	}
	if f >= MaxLevel {
		return MaxLevel
	}
	return int(f)
}

// LevelFromPayload picks the level out of an update payload.
// "level" wins; "value" is used when "level" is absent or null.
func LevelFromPayload(payload map[string]interface{}) int {
	if v, ok := payload["level"]; ok && v != nil {
		return CoerceLevel(v)
	}
	return CoerceLevel(payload["value"])
}

// Truthy interprets a decoded JSON value as a flag
func Truthy(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return false
	}
}
