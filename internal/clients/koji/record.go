package koji

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// ParseRecord converts a getBuild-shaped map, decoded from XML-RPC or from a
// message body, into a BuildRecord. Unparsable timestamps are logged and left
// nil.
func ParseRecord(m map[string]any, log *logger.Logger) (*domain.BuildRecord, error) {
	if m == nil {
		return nil, fmt.Errorf("empty build record")
	}
	id, ok := Int64(m["id"])
	if !ok || id <= 0 {
		id, ok = Int64(m["build_id"])
	}
	if !ok || id <= 0 {
		return nil, fmt.Errorf("build record has no usable id (got %v)", m["id"])
	}

	r := &domain.BuildRecord{
		ID:          id,
		PackageName: String(m["package_name"]),
		Version:     String(m["version"]),
		Release:     String(m["release"]),
		Source:      String(m["source"]),
		OwnerName:   String(m["owner_name"]),
	}
	if r.PackageName == "" {
		r.PackageName = String(m["name"])
	}
	if v, ok := Int64(m["epoch"]); ok {
		r.Epoch = &v
	}
	if v, ok := Int64(m["state"]); ok {
		r.State = &v
	}
	if extra, ok := m["extra"].(map[string]any); ok {
		r.Extra = extra
	}
	if r.Source == "" {
		if src, ok := r.Extra["source"].(map[string]any); ok {
			r.Source = String(src["original_url"])
		}
	}

	r.StartTime = recordTime(log, id, m, "start_ts", "start_time")
	r.CreationTime = recordTime(log, id, m, "creation_ts", "creation_time")
	r.CompletionTime = recordTime(log, id, m, "completion_ts", "completion_time")
	return r, nil
}

// recordTime prefers the epoch-seconds field, which carries no zone
// ambiguity, over the formatted one.
func recordTime(log *logger.Logger, id int64, m map[string]any, tsKey, strKey string) *time.Time {
	if t, err := domain.ParseTimestamp(m[tsKey]); err == nil && t != nil {
		return t
	}
	t, err := domain.ParseTimestamp(m[strKey])
	if err != nil {
		log.Warn("dropping unparsable build timestamp", "build_id", id, "field", strKey, "value", m[strKey], "error", err)
		return nil
	}
	return t
}

// Int64 accepts the integer encodings produced by XML-RPC and JSON
// decoding, including numeric strings.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), t == float64(int64(t))
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
