// Package domain holds the provenance graph vocabulary: node labels, natural
// keys, relationship types and the typed entities the handlers write.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Label string

const (
	LabelPerson            Label = "Person"
	LabelSourceCommit      Label = "SourceCommit"
	LabelSourceRepo        Label = "SourceRepo"
	LabelSourceBranch      Label = "SourceBranch"
	LabelBuild             Label = "Build"
	LabelContainerBuild    Label = "ContainerBuild"
	LabelModuleBuild       Label = "ModuleBuild"
	LabelAdvisory          Label = "Advisory"
	LabelContainerAdvisory Label = "ContainerAdvisory"
	LabelRebuildEvent      Label = "RebuildEvent"
	LabelRebuildRequest    Label = "RebuildRequest"
	LabelTag               Label = "Tag"
	LabelBug               Label = "Bug"
)

// BaseLabels is every label that owns a uniqueness constraint.
var BaseLabels = []Label{
	LabelPerson,
	LabelSourceCommit,
	LabelSourceRepo,
	LabelSourceBranch,
	LabelBuild,
	LabelAdvisory,
	LabelRebuildEvent,
	LabelRebuildRequest,
	LabelTag,
	LabelBug,
}

var subtypeBase = map[Label]Label{
	LabelContainerBuild:    LabelBuild,
	LabelModuleBuild:       LabelBuild,
	LabelContainerAdvisory: LabelAdvisory,
}

var keyFields = map[Label][]string{
	LabelPerson:         {"username"},
	LabelSourceCommit:   {"hash"},
	LabelSourceRepo:     {"namespace", "name"},
	LabelSourceBranch:   {"repo_namespace", "repo_name", "name"},
	LabelBuild:          {"id"},
	LabelAdvisory:       {"id"},
	LabelRebuildEvent:   {"id"},
	LabelRebuildRequest: {"id"},
	LabelTag:            {"id"},
	LabelBug:            {"id"},
}

// Base returns the label carrying the uniqueness constraint for l. Base
// labels return themselves.
func (l Label) Base() Label {
	if b, ok := subtypeBase[l]; ok {
		return b
	}
	return l
}

func (l Label) IsSubtype() bool {
	_, ok := subtypeBase[l]
	return ok
}

// KeyFields lists the natural key property names of l's base label.
func (l Label) KeyFields() []string {
	return keyFields[l.Base()]
}

func (l Label) Known() bool {
	_, ok := keyFields[l.Base()]
	return ok
}

type RelType string

const (
	RelAuthoredBy    RelType = "AUTHORED_BY"
	RelInRepo        RelType = "IN_REPO"
	RelOnBranch      RelType = "ON_BRANCH"
	RelBranchOf      RelType = "BRANCH_OF"
	RelOwnedBy       RelType = "OWNED_BY"
	RelAttachedBuild RelType = "ATTACHED_BUILD"
	RelAttachedBug   RelType = "ATTACHED_BUG"
	RelReportedBy    RelType = "REPORTED_BY"
	RelAssignedTo    RelType = "ASSIGNED_TO"
	RelQAContact     RelType = "QA_CONTACT"
	RelTriggeredBy   RelType = "TRIGGERED_BY"
	RelTriggered     RelType = "TRIGGERED"
	RelRequested     RelType = "REQUESTED"
	RelProduced      RelType = "PRODUCED"
	RelResolves      RelType = "RESOLVES"
	RelRelatesTo     RelType = "RELATES_TO"
	RelReverts       RelType = "REVERTS"
	RelTagged        RelType = "TAGGED"
	RelHasComponent  RelType = "HAS_COMPONENT"
	RelHasCommit     RelType = "HAS_COMMIT"
)

// Props are graph node or edge properties.
type Props map[string]any

// NodeRef addresses one node by its base label and natural key.
type NodeRef struct {
	Label Label
	Key   Props
}

// Ref builds a NodeRef, normalizing the label to its base.
func Ref(label Label, key Props) NodeRef {
	return NodeRef{Label: label.Base(), Key: key}
}

// Validate checks that every key field of the label is present and non-blank.
func (r NodeRef) Validate() error {
	if !r.Label.Known() {
		return fmt.Errorf("unknown label %q", r.Label)
	}
	for _, f := range r.Label.KeyFields() {
		v, ok := r.Key[f]
		if !ok || isBlank(v) {
			return fmt.Errorf("%s: missing key field %q", r.Label, f)
		}
	}
	return nil
}

// KeyString is a stable rendering of the natural key, used for logging and
// for in-process indexes.
func (r NodeRef) KeyString() string {
	fields := r.Label.KeyFields()
	if len(fields) == 0 {
		fields = make([]string, 0, len(r.Key))
		for k := range r.Key {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f, r.Key[f]))
	}
	return string(r.Label.Base()) + "{" + strings.Join(parts, ",") + "}"
}

func (r NodeRef) String() string { return r.KeyString() }

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
