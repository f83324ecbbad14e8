package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/router"
)

func plainRecord(id int64) domain.BuildRecord {
	return domain.BuildRecord{
		ID:          id,
		PackageName: "etcd",
		Version:     "3.2.22",
		Release:     "1.el7",
		State:       domain.Int64Ptr(domain.BuildStateComplete),
		OwnerName:   "mprahl",
		Source:      "git://pkgs.devel.redhat.com/rpms/etcd?#5ab7b1bc6e9ad40fbeac3e3d2b0d33dd4dff4d3a",
	}
}

func containerRecord(id int64, operator bool) domain.BuildRecord {
	r := plainRecord(id)
	r.PackageName = "etcd-container"
	r.Release = "4"
	r.Extra = map[string]any{
		"container_koji_task_id": float64(17511743),
		"image":                  map[string]any{"original_nvr": "etcd-container-3.2.22-1"},
	}
	if operator {
		r.Extra["typeinfo"] = map[string]any{
			"operator-manifests": map[string]any{"archive": "operator_manifests.zip"},
		}
	}
	return r
}

func moduleRecord(id int64, tag string) domain.BuildRecord {
	r := plainRecord(id)
	r.PackageName = "389-ds"
	r.Version = "1.4"
	r.Release = "820181127150716.1fc8b219"
	r.Extra = map[string]any{
		"typeinfo": map[string]any{
			"module": map[string]any{
				"name":                    "389-ds",
				"stream":                  "1.4",
				"version":                 "820181127150716",
				"context":                 "1fc8b219",
				"module_build_service_id": float64(1648),
				"content_koji_tag":        tag,
			},
		},
	}
	return r
}

// recordInfo renders r the way Koji embeds a build in a message.
func recordInfo(r domain.BuildRecord) map[string]any {
	info := map[string]any{
		"id":           r.ID,
		"build_id":     r.ID,
		"package_name": r.PackageName,
		"version":      r.Version,
		"release":      r.Release,
		"source":       r.Source,
		"owner_name":   r.OwnerName,
		"start_time":   "2018-06-05 14:14:58.139838",
	}
	if r.State != nil {
		info["state"] = *r.State
	}
	if r.Extra != nil {
		info["extra"] = r.Extra
	}
	return info
}

func kojiBuildMessage(state string, r domain.BuildRecord) router.Message {
	return message("brew.build."+state, nil, map[string]any{"info": recordInfo(r)})
}

func TestKojiPlainBuild(t *testing.T) {
	h := newHarness(t)
	rec := plainRecord(710916)
	h.mustProcess(t, kojiBuildMessage("complete", rec))

	ref := domain.BuildRef(710916)
	n := h.node(t, domain.LabelBuild, ref)
	require.NotNil(t, n)
	assert.Equal(t, []domain.Label{domain.LabelBuild}, n.Labels)
	assert.Equal(t, "etcd", n.Props["name"])
	assert.Equal(t, domain.BuildStateComplete, n.Props["state"])
	assert.Equal(t, "2018-06-05T14:14:58.139838Z", n.Props["start_time"])

	owner := domain.Person{Username: "mprahl"}.Ref()
	assert.True(t, h.connected(t, ref, domain.RelOwnedBy, owner))
	assert.Equal(t, "mprahl@redhat.com", h.node(t, domain.LabelPerson, owner).Props["email"])
	assert.True(t, h.connected(t, ref, domain.RelHasCommit, domain.CommitRef(CommitHash(rec.Source))))
}

func TestKojiUnparsableTimestampIsDropped(t *testing.T) {
	h := newHarness(t)
	info := recordInfo(plainRecord(710916))
	info["start_time"] = "sometime in june"
	h.mustProcess(t, message("brew.build.complete", nil, map[string]any{"info": info}))

	n := h.node(t, domain.LabelBuild, domain.BuildRef(710916))
	require.NotNil(t, n)
	assert.Nil(t, n.Props["start_time"])
	assert.Equal(t, "etcd", n.Props["name"])
}

func TestKojiStateFromTransition(t *testing.T) {
	h := newHarness(t)
	rec := plainRecord(5)
	rec.State = domain.Int64Ptr(domain.BuildStateBuilding)
	msg := kojiBuildMessage("complete", rec)
	msg.Body = []byte(`{"info":` + string(mustJSON(t, recordInfo(rec))) + `,"new":1}`)
	h.mustProcess(t, msg)
	assert.Equal(t, domain.BuildStateComplete, h.node(t, domain.LabelBuild, domain.BuildRef(5)).Props["state"])
}

func TestKojiContainerOperatorBuild(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, kojiBuildMessage("complete", containerRecord(900, true)))

	n := h.node(t, domain.LabelContainerBuild, domain.BuildRef(900))
	require.NotNil(t, n)
	assert.Equal(t, true, n.Props["operator"])
	assert.Equal(t, "etcd-container-3.2.22-1", n.Props["original_nvr"])
}

func TestKojiSubtypePromotion(t *testing.T) {
	h := newHarness(t)
	plain := plainRecord(42)
	plain.PackageName = "etcd-container"
	plain.CompletionTime = nil
	h.mustProcess(t, kojiBuildMessage("building", plain))

	container := containerRecord(42, false)
	container.Version = ""
	h.mustProcess(t, kojiBuildMessage("complete", container))

	n := h.node(t, domain.LabelBuild, domain.BuildRef(42))
	require.NotNil(t, n)
	assert.ElementsMatch(t, []domain.Label{domain.LabelBuild, domain.LabelContainerBuild}, n.Labels)
	assert.Equal(t, "3.2.22", n.Props["version"], "plain-era value retained")
	assert.Equal(t, "etcd-container-3.2.22-1", n.Props["original_nvr"])
	assert.Equal(t, 1, h.store.Count(domain.LabelBuild))

	// A later plain view of the same build never drops the subtype.
	h.mustProcess(t, kojiBuildMessage("complete", plain))
	assert.True(t, h.node(t, domain.LabelBuild, domain.BuildRef(42)).HasLabel(domain.LabelContainerBuild))
}

func TestKojiModuleComponents(t *testing.T) {
	h := newHarness(t)
	tag := "module-389-ds-1.4-820181127150716-1fc8b219"
	comp1, comp2 := plainRecord(801), plainRecord(802)
	comp2.PackageName = "389-ds-base"
	h.resolver.components[tag] = []domain.BuildRecord{comp1, comp2}

	assertIdempotent(t, h, kojiBuildMessage("complete", moduleRecord(800, tag)))

	mod := domain.BuildRef(800)
	n := h.node(t, domain.LabelModuleBuild, mod)
	require.NotNil(t, n)
	assert.Equal(t, "1fc8b219", n.Props["context"])
	assert.Equal(t, int64(1648), n.Props["mbs_id"])
	assert.Equal(t, "389-ds", n.Props["module_name"])
	assert.True(t, h.connected(t, mod, domain.RelHasComponent, domain.BuildRef(801)))
	assert.True(t, h.connected(t, mod, domain.RelHasComponent, domain.BuildRef(802)))
	assert.Equal(t, "389-ds-base", h.node(t, domain.LabelBuild, domain.BuildRef(802)).Props["name"])
}

func TestKojiModuleComponentsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = domain.Unavailable("fake", errors.New("hub down"))

	err := h.process(t, kojiBuildMessage("complete", moduleRecord(800, "module-tag")))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
	assert.Nil(t, h.node(t, domain.LabelBuild, domain.BuildRef(800)), "no partial writes")
}

func TestKojiMalformedInfo(t *testing.T) {
	h := newHarness(t)
	err := h.process(t, message("brew.build.complete", nil, map[string]any{"info": map[string]any{"package_name": "etcd"}}))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
	assert.True(t, domain.Terminal(err))
}

func TestKojiTagAndUntag(t *testing.T) {
	h := newHarness(t)
	tagMsg := message("brew.build.tag", nil, map[string]any{"build_id": 710916, "tag_id": 14, "tag": "rhel-7.5-candidate"})
	assertIdempotent(t, h, tagMsg)

	build := domain.BuildRef(710916)
	tag := domain.Tag{ID: 14}.Ref()
	assert.True(t, h.connected(t, build, domain.RelTagged, tag))
	assert.Equal(t, "rhel-7.5-candidate", h.node(t, domain.LabelTag, tag).Props["name"])

	h.mustProcess(t, message("brew.build.untag", nil, map[string]any{"build_id": 710916, "tag_id": 14, "tag": "rhel-7.5-candidate"}))
	assert.False(t, h.connected(t, build, domain.RelTagged, tag))
	assert.NotNil(t, h.node(t, domain.LabelBuild, build), "untag keeps the build")
}

func TestKojiTagRequiresIDs(t *testing.T) {
	h := newHarness(t)
	err := h.process(t, message("brew.build.tag", nil, map[string]any{"tag": "rhel-7.5-candidate", "tag_id": 14}))
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
}
