package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02T15:04:05.999999",
	"20060102T15:04:05",
	"2006-01-02 15:04:05 MST",
}

// ParseTimestamp accepts the timestamp shapes the upstream systems emit:
// RFC3339, Koji's "YYYY-MM-DD HH:MM:SS.ffffff", Errata's compact form and
// Unix seconds. Nil and blank values yield nil.
func ParseTimestamp(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case float64:
		return unixTime(t), nil
	case int64:
		return unixTime(float64(t)), nil
	case int:
		return unixTime(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", t, err)
		}
		return unixTime(f), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				u := parsed.UTC()
				return &u, nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixTime(f), nil
		}
		return nil, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func unixTime(f float64) *time.Time {
	sec, frac := math.Modf(f)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return &t
}

// FormatTime renders t the way timestamps are stored on graph nodes.
func FormatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
