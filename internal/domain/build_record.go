package domain

import (
	"fmt"
	"time"
)

// BuildRecord is the canonical build description returned by the build
// system, either resolved over RPC or carried inline in a message.
type BuildRecord struct {
	ID             int64
	PackageName    string
	Version        string
	Release        string
	Epoch          *int64
	State          *int64
	Source         string
	OwnerName      string
	StartTime      *time.Time
	CreationTime   *time.Time
	CompletionTime *time.Time
	Extra          map[string]any
}

func (r BuildRecord) NVR() string {
	return fmt.Sprintf("%s-%s-%s", r.PackageName, r.Version, r.Release)
}

// Terminal reports whether the record can no longer change. Complete builds
// are not terminal: they can still be deleted.
func (r BuildRecord) Terminal() bool {
	if r.State == nil {
		return false
	}
	switch *r.State {
	case BuildStateDeleted, BuildStateFailed, BuildStateCanceled:
		return true
	default:
		return false
	}
}

// BuildLookup identifies a build by id, by name-version-release, by the id of
// the task that produced it, or by an inline record.
type BuildLookup struct {
	ID     int64
	NVR    string
	TaskID int64
	Inline *BuildRecord
}

func LookupByID(id int64) BuildLookup { return BuildLookup{ID: id} }

func LookupByNVR(nvr string) BuildLookup { return BuildLookup{NVR: nvr} }

func LookupByTask(id int64) BuildLookup { return BuildLookup{TaskID: id} }

func LookupInline(r BuildRecord) BuildLookup { return BuildLookup{Inline: &r} }

func (l BuildLookup) String() string {
	switch {
	case l.Inline != nil:
		return fmt.Sprintf("inline:%d", l.Inline.ID)
	case l.ID != 0:
		return fmt.Sprintf("id:%d", l.ID)
	case l.NVR != "":
		return "nvr:" + l.NVR
	case l.TaskID != 0:
		return fmt.Sprintf("task:%d", l.TaskID)
	default:
		return "empty"
	}
}
