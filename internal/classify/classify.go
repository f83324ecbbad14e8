// Package classify decides which Build or Advisory subtype a record
// represents. Every predicate tolerates missing or oddly typed metadata and
// answers false instead of failing.
package classify

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/yungbote/provenance-updater/internal/domain"
)

var containerSuffixes = []string{"-container", "-docker"}

// ContainerContentType marks an advisory shipping container images.
const ContainerContentType = "docker"

// IsContainerBuild reports whether the record describes a container image
// build: either the metadata names the container task or build that
// produced it, or it carries an image section and the package name ends in
// a container suffix.
func IsContainerBuild(r domain.BuildRecord) bool {
	if r.Extra == nil {
		return false
	}
	if present(r.Extra["container_koji_task_id"]) || present(r.Extra["container_koji_build_id"]) {
		return true
	}
	if !present(r.Extra["image"]) {
		return false
	}
	for _, suffix := range containerSuffixes {
		if strings.HasSuffix(r.PackageName, suffix) {
			return true
		}
	}
	return false
}

// IsModuleBuild reports whether extra.typeinfo.module holds a module
// descriptor.
func IsModuleBuild(r domain.BuildRecord) bool {
	module, ok := lookup(r.Extra, "typeinfo", "module").(map[string]any)
	return ok && len(module) > 0
}

// BuildKindOf classifies a record. The container check wins over the
// module check.
func BuildKindOf(r domain.BuildRecord) domain.BuildKind {
	switch {
	case IsContainerBuild(r):
		return domain.BuildContainer
	case IsModuleBuild(r):
		return domain.BuildModule
	default:
		return domain.BuildPlain
	}
}

// IsOperatorImage reports whether a container build ships an operator
// manifests archive.
func IsOperatorImage(r domain.BuildRecord) bool {
	return present(lookup(r.Extra, "typeinfo", "operator-manifests", "archive"))
}

// IsContainerAdvisory reports whether the content types include container
// images. Matching ignores case and surrounding space.
func IsContainerAdvisory(contentTypes []string) bool {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, ct := range contentTypes {
		set.Add(strings.ToLower(strings.TrimSpace(ct)))
	}
	return set.Contains(ContainerContentType)
}

// AdvisoryKindOf classifies an advisory from its content types.
func AdvisoryKindOf(contentTypes []string) domain.AdvisoryKind {
	if IsContainerAdvisory(contentTypes) {
		return domain.AdvisoryContainer
	}
	return domain.AdvisoryPlain
}

// ModuleInfo is the subset of extra.typeinfo.module the graph stores.
type ModuleInfo struct {
	Name       string
	Stream     string
	Version    string
	Context    string
	MBSID      *int64
	ContentTag string
}

// Module extracts the module descriptor, or nil when the record is not a
// module build.
func Module(r domain.BuildRecord) *ModuleInfo {
	m, ok := lookup(r.Extra, "typeinfo", "module").(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	info := &ModuleInfo{
		Name:       stringOf(m["name"]),
		Stream:     stringOf(m["stream"]),
		Version:    stringOf(m["version"]),
		Context:    stringOf(m["context"]),
		ContentTag: stringOf(m["content_koji_tag"]),
	}
	if id, ok := int64Of(m["module_build_service_id"]); ok {
		info.MBSID = &id
	}
	return info
}

// OriginalNVR is the NVR of the container build before any rebuild, falling
// back to the record's own NVR.
func OriginalNVR(r domain.BuildRecord) string {
	if nvr := stringOf(lookup(r.Extra, "image", "original_nvr")); nvr != "" {
		return nvr
	}
	return r.NVR()
}

// lookup walks nested maps; any missing or non-map step yields nil.
func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[p]
	}
	return cur
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case bool:
		return t
	default:
		return true
	}
}
