package errata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// AdvisoryDetail is the subset of an erratum the graph stores.
type AdvisoryDetail struct {
	ID           string
	Type         string
	FullAdvisory string
	Synopsis     string
	Status       string
	ContentTypes []string

	SecurityImpact string
	SecuritySLA    any

	ProductID    int64
	ReporterID   int64
	AssignedToID int64

	// Raw timestamps keyed by graph property name.
	Times map[string]any

	BugIDs []string
}

type Product struct {
	ID        int64
	Name      string
	ShortName string
}

type Person struct {
	ID        int64  `json:"id"`
	LoginName string `json:"login_name"`
	RealName  string `json:"realname"`
}

type advisoryResponse struct {
	Errata map[string]map[string]any `json:"errata"`
	Bugs   struct {
		Bugs []struct {
			Bug struct {
				ID json.Number `json:"id"`
			} `json:"bug"`
		} `json:"bugs"`
	} `json:"bugs"`
}

type productResponse struct {
	Data struct {
		ID         int64 `json:"id"`
		Attributes struct {
			Name      string `json:"name"`
			ShortName string `json:"short_name"`
		} `json:"attributes"`
	} `json:"data"`
}

// timeFields maps API field names to graph property names.
var timeFields = map[string]string{
	"actual_ship_date":  "actual_ship_date",
	"created_at":        "created_at",
	"issue_date":        "issue_date",
	"release_date":      "release_date",
	"status_updated_at": "status_time",
	"update_date":       "update_date",
}

func (r advisoryResponse) detail(id string) (*AdvisoryDetail, error) {
	if len(r.Errata) == 0 {
		return nil, domain.NotFound("errata.GetAdvisory", "erratum %s has no body", id)
	}
	// The body is keyed by the lower-cased advisory type; there is one.
	var (
		typ  string
		info map[string]any
	)
	for k, v := range r.Errata {
		typ, info = k, v
	}
	d := &AdvisoryDetail{
		ID:             id,
		Type:           strings.ToUpper(typ),
		FullAdvisory:   str(info["fulladvisory"]),
		Synopsis:       str(info["synopsis"]),
		Status:         str(info["status"]),
		SecurityImpact: str(info["security_impact"]),
		SecuritySLA:    info["security_sla"],
		ProductID:      num(info["product_id"]),
		ReporterID:     num(info["reporter_id"]),
		AssignedToID:   num(info["assigned_to_id"]),
		Times:          map[string]any{},
	}
	if raw, ok := info["content_types"].([]any); ok {
		for _, ct := range raw {
			if s := str(ct); s != "" {
				d.ContentTypes = append(d.ContentTypes, s)
			}
		}
	}
	for apiKey, prop := range timeFields {
		if v, ok := info[apiKey]; ok && v != nil {
			d.Times[prop] = v
		}
	}
	for _, b := range r.Bugs.Bugs {
		if b.Bug.ID != "" {
			d.BugIDs = append(d.BugIDs, b.Bug.ID.String())
		}
	}
	return d, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func num(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		n, _ := t.Int64()
		return n
	case float64:
		return int64(t)
	default:
		return 0
	}
}
