package models

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Helpers for reading loosely typed document fields. Both stores hand documents
// out JSON-normalized, so numbers are float64 and times are strings; json.Number
// is still accepted for data decoded elsewhere.

func str(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// num reads a plain numeric field. Stock and price never go through here.
func num(data map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := data[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), ",", ".", 1), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func boolean(data map[string]any, key string, def bool) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case float64:
		return v != 0
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f != 0
		}
	}
	return def
}

func strList(data map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []string:
			if len(v) > 0 {
				return append([]string(nil), v...)
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

// timeOf accepts RFC3339 strings, unix milliseconds and time.Time.
func timeOf(data map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		switch v := data[k].(type) {
		case time.Time:
			return v
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t
			}
			if t, err := time.Parse("2006-01-02", v); err == nil {
				return t
			}
		case float64:
			if v > 0 {
				return time.UnixMilli(int64(v)).UTC()
			}
		case json.Number:
			if ms, err := v.Int64(); err == nil && ms > 0 {
				return time.UnixMilli(ms).UTC()
			}
		case map[string]any:
			// {"seconds": ..., "nanoseconds": ...} as exported by older clients
			if s, ok := v["seconds"].(float64); ok {
				ns, _ := v["nanoseconds"].(float64)
				return time.Unix(int64(s), int64(ns)).UTC()
			}
		}
	}
	return time.Time{}
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
