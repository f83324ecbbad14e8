package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/router"
)

func attempt(id, buildID int64, state int64, originalNVR string) map[string]any {
	a := map[string]any{
		"id":             id,
		"event_id":       2092,
		"name":           "etcd-container",
		"original_nvr":   originalNVR,
		"rebuilt_nvr":    originalNVR + ".1528187000",
		"type":           1,
		"type_name":      "IMAGE",
		"state":          state,
		"state_name":     map[int64]string{0: "BUILD", 1: "DONE", 2: "FAILED"}[state],
		"time_submitted": "2018-06-05T08:23:39Z",
		"url":            fmt.Sprintf("http://freshmaker.domain.com/api/1/builds/%d", id),
	}
	if buildID != 0 {
		a["build_id"] = buildID
	}
	return a
}

func rebuildEvent(dryRun bool, builds ...map[string]any) router.Message {
	list := make([]any, 0, len(builds))
	for _, b := range builds {
		list = append(list, b)
	}
	return message("freshmaker.event.state.changed", nil, map[string]any{
		"id":            2092,
		"event_type_id": 8,
		"message_id":    "ID:messaging-devops-broker01.web.prod.ext.phx2.redhat.com-42045-1527890187852-9:704208:0:0:1",
		"search_key":    "34625",
		"state":         1,
		"state_name":    "BUILDING",
		"state_reason":  "Waiting for composes to finish.",
		"url":           "http://freshmaker.domain.com/api/1/events/2092",
		"dry_run":       dryRun,
		"time_created":  "2018-06-05T08:23:37Z",
		"builds":        list,
	})
}

func rebuiltContainer(id int64) domain.BuildRecord {
	r := containerRecord(id, false)
	r.Release = "4.1528187000"
	return r
}

func TestFreshmakerEvent(t *testing.T) {
	h := newHarness(t, rebuiltContainer(710916))
	h.resolver.byTask[16840019] = 710916

	msg := rebuildEvent(false,
		attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1"),
		attempt(399, 16840020, domain.RebuildRequestBuilding, "etcd-container-3.2.22-2"),
		attempt(400, 0, domain.RebuildRequestDone, "etcd-container-3.2.22-3"),
	)
	assertIdempotent(t, h, msg)

	event := domain.RebuildEventRef("2092")
	n := h.node(t, domain.LabelRebuildEvent, event)
	require.NotNil(t, n)
	assert.Equal(t, int64(8), n.Props["type"])
	assert.Equal(t, int64(1), n.Props["state"])
	assert.Equal(t, "BUILDING", n.Props["state_name"])
	assert.Equal(t, false, n.Props["dry_run"])
	assert.True(t, h.connected(t, event, domain.RelTriggeredBy, domain.AdvisoryRef("34625")))

	for _, id := range []string{"398", "399", "400"} {
		assert.True(t, h.connected(t, event, domain.RelRequested, domain.RebuildRequestRef(id)), id)
	}

	build := domain.BuildRef(710916)
	b := h.node(t, domain.LabelContainerBuild, build)
	require.NotNil(t, b)
	assert.Equal(t, "etcd-container-3.2.22-1", b.Props["original_nvr"])
	assert.True(t, h.connected(t, event, domain.RelTriggered, build))
	assert.True(t, h.connected(t, domain.RebuildRequestRef("398"), domain.RelProduced, build))

	assert.Empty(t, h.store.EdgesOf(domain.RebuildRequestRef("399"), domain.RelProduced), "unfinished attempt")
	assert.Empty(t, h.store.EdgesOf(domain.RebuildRequestRef("400"), domain.RelProduced), "no task id")
	assert.Equal(t, 1, h.store.Count(domain.LabelBuild))
	assert.Equal(t, 3, h.resolver.calls, "only the finished attempt with a task is resolved")
}

func TestFreshmakerDryRunSkipped(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, rebuildEvent(true, attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1")))

	nodes, edges := h.store.Snapshot()
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
	assert.Zero(t, h.resolver.calls)
}

func TestFreshmakerTaskWithoutBuildIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, rebuildEvent(false, attempt(398, 16840019, domain.RebuildRequestFailed, "etcd-container-3.2.22-1")))

	assert.NotNil(t, h.node(t, domain.LabelRebuildRequest, domain.RebuildRequestRef("398")))
	assert.Zero(t, h.store.Count(domain.LabelBuild))
}

func TestFreshmakerResolverUnavailable(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = domain.Unavailable("fake", errors.New("hub down"))

	err := h.process(t, rebuildEvent(false, attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1")))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
	nodes, _ := h.store.Snapshot()
	assert.Empty(t, nodes)
}

func TestFreshmakerPromotesPlainBuild(t *testing.T) {
	rec := rebuiltContainer(710916)
	h := newHarness(t, rec)
	h.resolver.byTask[16840019] = 710916

	plain := rec
	plain.Extra = nil
	h.mustProcess(t, kojiBuildMessage("complete", plain))
	require.False(t, h.node(t, domain.LabelBuild, domain.BuildRef(710916)).HasLabel(domain.LabelContainerBuild))

	h.mustProcess(t, rebuildEvent(false, attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1")))
	n := h.node(t, domain.LabelBuild, domain.BuildRef(710916))
	assert.True(t, n.HasLabel(domain.LabelContainerBuild))
	assert.Equal(t, 1, h.store.Count(domain.LabelBuild))
}

func TestFreshmakerBuildStateChanged(t *testing.T) {
	h := newHarness(t, rebuiltContainer(710916))
	h.resolver.byTask[16840019] = 710916

	building := message("freshmaker.build.state.changed", nil, attempt(398, 16840019, domain.RebuildRequestBuilding, "etcd-container-3.2.22-1"))
	h.mustProcess(t, building)
	req := domain.RebuildRequestRef("398")
	assert.Equal(t, "BUILD", h.node(t, domain.LabelRebuildRequest, req).Props["state_name"])
	assert.True(t, h.connected(t, domain.RebuildEventRef("2092"), domain.RelRequested, req))
	assert.Zero(t, h.store.Count(domain.LabelBuild))

	done := message("freshmaker.build.state.changed", nil, attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1"))
	assertIdempotent(t, h, done)
	n := h.node(t, domain.LabelRebuildRequest, req)
	assert.Equal(t, "DONE", n.Props["state_name"])
	assert.Equal(t, int64(16840019), n.Props["build_ref_id"])
	assert.True(t, h.connected(t, req, domain.RelProduced, domain.BuildRef(710916)))
	assert.True(t, h.connected(t, domain.RebuildEventRef("2092"), domain.RelTriggered, domain.BuildRef(710916)))
}

func TestFreshmakerAttemptWithoutEventLinksBuild(t *testing.T) {
	h := newHarness(t, rebuiltContainer(710916))
	h.resolver.byTask[16840019] = 710916

	a := attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1")
	delete(a, "event_id")
	assertIdempotent(t, h, message("freshmaker.build.state.changed", nil, a))

	req := domain.RebuildRequestRef("398")
	require.NotNil(t, h.node(t, domain.LabelRebuildRequest, req))
	build := domain.BuildRef(710916)
	require.NotNil(t, h.node(t, domain.LabelContainerBuild, build))
	assert.True(t, h.connected(t, req, domain.RelProduced, build))
	assert.Zero(t, h.store.Count(domain.LabelRebuildEvent))
	assert.Empty(t, h.store.EdgesOf(domain.RebuildEventRef("2092"), domain.RelRequested))
}

func TestFreshmakerAttemptWithoutID(t *testing.T) {
	h := newHarness(t)
	a := attempt(398, 16840019, domain.RebuildRequestDone, "etcd-container-3.2.22-1")
	delete(a, "id")
	err := h.process(t, rebuildEvent(false, a))
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
	nodes, _ := h.store.Snapshot()
	assert.Empty(t, nodes)
}
