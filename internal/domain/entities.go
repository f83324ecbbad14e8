package domain

import (
	"encoding/json"
	"time"
)

type Person struct {
	Username string
	Email    string
}

func (p Person) Ref() NodeRef { return Ref(LabelPerson, Props{"username": p.Username}) }

func (p Person) Props() Props {
	return Props{"email": p.Email}
}

type SourceRepo struct {
	Namespace string
	Name      string
}

func (r SourceRepo) Ref() NodeRef {
	return Ref(LabelSourceRepo, Props{"namespace": r.Namespace, "name": r.Name})
}

type SourceBranch struct {
	RepoNamespace string
	RepoName      string
	Name          string
}

func (b SourceBranch) Ref() NodeRef {
	return Ref(LabelSourceBranch, Props{
		"repo_namespace": b.RepoNamespace,
		"repo_name":      b.RepoName,
		"name":           b.Name,
	})
}

type SourceCommit struct {
	Hash       string
	Message    string
	AuthorDate *time.Time
	CommitDate *time.Time
}

func CommitRef(hash string) NodeRef { return Ref(LabelSourceCommit, Props{"hash": hash}) }

func (c SourceCommit) Ref() NodeRef { return CommitRef(c.Hash) }

func (c SourceCommit) Props() Props {
	return Props{
		"message":     c.Message,
		"author_date": FormatTime(c.AuthorDate),
		"commit_date": FormatTime(c.CommitDate),
	}
}

// BuildKind is the application-level discriminant for the Build subtypes.
type BuildKind int

const (
	BuildPlain BuildKind = iota
	BuildContainer
	BuildModule
)

func (k BuildKind) Label() Label {
	switch k {
	case BuildContainer:
		return LabelContainerBuild
	case BuildModule:
		return LabelModuleBuild
	default:
		return LabelBuild
	}
}

func (k BuildKind) String() string {
	switch k {
	case BuildContainer:
		return "container"
	case BuildModule:
		return "module"
	default:
		return "plain"
	}
}

// Koji build states.
const (
	BuildStateBuilding int64 = 0
	BuildStateComplete int64 = 1
	BuildStateDeleted  int64 = 2
	BuildStateFailed   int64 = 3
	BuildStateCanceled int64 = 4
)

type Build struct {
	ID             int64
	Kind           BuildKind
	Name           string
	Version        string
	Release        string
	Epoch          *int64
	State          *int64
	StartTime      *time.Time
	CreationTime   *time.Time
	CompletionTime *time.Time
	Extra          map[string]any

	// Container
	OriginalNVR string
	Operator    *bool

	// Module
	Context       string
	MBSID         *int64
	ModuleName    string
	ModuleStream  string
	ModuleVersion string
}

func BuildRef(id int64) NodeRef { return Ref(LabelBuild, Props{"id": id}) }

func (b Build) Ref() NodeRef { return BuildRef(b.ID) }

func (b Build) Props() Props {
	p := Props{
		"name":            b.Name,
		"version":         b.Version,
		"release":         b.Release,
		"epoch":           int64OrNil(b.Epoch),
		"state":           int64OrNil(b.State),
		"start_time":      FormatTime(b.StartTime),
		"creation_time":   FormatTime(b.CreationTime),
		"completion_time": FormatTime(b.CompletionTime),
		"extra":           jsonOrNil(b.Extra),
	}
	switch b.Kind {
	case BuildContainer:
		p["original_nvr"] = b.OriginalNVR
		if b.Operator != nil {
			p["operator"] = *b.Operator
		}
	case BuildModule:
		p["context"] = b.Context
		p["mbs_id"] = int64OrNil(b.MBSID)
		p["module_name"] = b.ModuleName
		p["module_stream"] = b.ModuleStream
		p["module_version"] = b.ModuleVersion
	}
	return p
}

// AdvisoryKind is the discriminant for the Advisory subtypes.
type AdvisoryKind int

const (
	AdvisoryPlain AdvisoryKind = iota
	AdvisoryContainer
)

func (k AdvisoryKind) Label() Label {
	if k == AdvisoryContainer {
		return LabelContainerAdvisory
	}
	return LabelAdvisory
}

// RedactedName is the placeholder name of an embargoed advisory.
const RedactedName = "REDACTED"

type Advisory struct {
	ID               string
	Kind             AdvisoryKind
	Name             string
	ContentTypes     []string
	ProductName      string
	ProductShortName string
	SecurityImpact   string
	SecuritySLA      *time.Time
	State            string
	Synopsis         string
	Type             string
	ActualShipDate   *time.Time
	CreatedAt        *time.Time
	IssueDate        *time.Time
	ReleaseDate      *time.Time
	StatusTime       *time.Time
	UpdateDate       *time.Time
}

func AdvisoryRef(id string) NodeRef { return Ref(LabelAdvisory, Props{"id": id}) }

func (a Advisory) Ref() NodeRef { return AdvisoryRef(a.ID) }

func (a Advisory) Props() Props {
	p := Props{
		"advisory_name":      a.Name,
		"product_name":       a.ProductName,
		"product_short_name": a.ProductShortName,
		"security_impact":    a.SecurityImpact,
		"security_sla":       FormatTime(a.SecuritySLA),
		"state":              a.State,
		"synopsis":           a.Synopsis,
		"type":               a.Type,
		"actual_ship_date":   FormatTime(a.ActualShipDate),
		"created_at":         FormatTime(a.CreatedAt),
		"issue_date":         FormatTime(a.IssueDate),
		"release_date":       FormatTime(a.ReleaseDate),
		"status_time":        FormatTime(a.StatusTime),
		"update_date":        FormatTime(a.UpdateDate),
	}
	if a.ContentTypes != nil {
		p["content_types"] = append([]string(nil), a.ContentTypes...)
	}
	return p
}

// Freshmaker event states.
const (
	RebuildEventInitialized int64 = 0
	RebuildEventBuilding    int64 = 1
	RebuildEventComplete    int64 = 2
	RebuildEventFailed      int64 = 3
	RebuildEventSkipped     int64 = 4
	RebuildEventCanceled    int64 = 5
)

type RebuildEvent struct {
	ID          string
	Type        *int64
	State       *int64
	StateName   string
	StateReason string
	MessageID   string
	URL         string
	DryRun      bool
	TimeCreated *time.Time
	TimeDone    *time.Time
}

func RebuildEventRef(id string) NodeRef { return Ref(LabelRebuildEvent, Props{"id": id}) }

func (e RebuildEvent) Ref() NodeRef { return RebuildEventRef(e.ID) }

func (e RebuildEvent) Props() Props {
	return Props{
		"type":         int64OrNil(e.Type),
		"state":        int64OrNil(e.State),
		"state_name":   e.StateName,
		"state_reason": e.StateReason,
		"message_id":   e.MessageID,
		"url":          e.URL,
		"dry_run":      e.DryRun,
		"time_created": FormatTime(e.TimeCreated),
		"time_done":    FormatTime(e.TimeDone),
	}
}

// Freshmaker build (rebuild attempt) states.
const (
	RebuildRequestBuilding int64 = 0
	RebuildRequestDone     int64 = 1
	RebuildRequestFailed   int64 = 2
	RebuildRequestCanceled int64 = 3
)

type RebuildRequest struct {
	ID            string
	BuildRefID    *int64
	Name          string
	OriginalNVR   string
	RebuiltNVR    string
	Type          *int64
	TypeName      string
	State         *int64
	StateName     string
	StateReason   string
	URL           string
	DepOn         string
	TimeSubmitted *time.Time
	TimeCompleted *time.Time
}

func RebuildRequestRef(id string) NodeRef { return Ref(LabelRebuildRequest, Props{"id": id}) }

func (r RebuildRequest) Ref() NodeRef { return RebuildRequestRef(r.ID) }

func (r RebuildRequest) Props() Props {
	return Props{
		"build_ref_id":   int64OrNil(r.BuildRefID),
		"name":           r.Name,
		"original_nvr":   r.OriginalNVR,
		"rebuilt_nvr":    r.RebuiltNVR,
		"type":           int64OrNil(r.Type),
		"type_name":      r.TypeName,
		"state":          int64OrNil(r.State),
		"state_name":     r.StateName,
		"state_reason":   r.StateReason,
		"url":            r.URL,
		"dep_on":         r.DepOn,
		"time_submitted": FormatTime(r.TimeSubmitted),
		"time_completed": FormatTime(r.TimeCompleted),
	}
}

// Finished reports whether the attempt reached a state in which Koji holds
// a build for it.
func (r RebuildRequest) Finished() bool {
	if r.State == nil {
		return false
	}
	return *r.State == RebuildRequestDone || *r.State == RebuildRequestFailed
}

type Tag struct {
	ID   int64
	Name string
}

func (t Tag) Ref() NodeRef { return Ref(LabelTag, Props{"id": t.ID}) }

func (t Tag) Props() Props { return Props{"name": t.Name} }

type Bug struct {
	ID               string
	CreationTime     *time.Time
	ModifiedTime     *time.Time
	Priority         string
	ProductName      string
	ProductVersion   string
	Resolution       string
	Severity         string
	ShortDescription string
	Status           string
	TargetMilestone  string
}

func BugRef(id string) NodeRef { return Ref(LabelBug, Props{"id": id}) }

func (b Bug) Ref() NodeRef { return BugRef(b.ID) }

func (b Bug) Props() Props {
	return Props{
		"creation_time":     FormatTime(b.CreationTime),
		"modified_time":     FormatTime(b.ModifiedTime),
		"priority":          b.Priority,
		"product_name":      b.ProductName,
		"product_version":   b.ProductVersion,
		"resolution":        b.Resolution,
		"severity":          b.Severity,
		"short_description": b.ShortDescription,
		"status":            b.Status,
		"target_milestone":  b.TargetMilestone,
	}
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func jsonOrNil(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

func Int64Ptr(v int64) *int64 { return &v }

func BoolPtr(v bool) *bool { return &v }
