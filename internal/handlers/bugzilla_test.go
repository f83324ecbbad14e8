package handlers

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/router"
)

func bugzillaMessage(id, status, assignee string) router.Message {
	n, _ := strconv.ParseInt(id, 10, 64)
	return message("bugzilla.bug.modify", nil, map[string]any{
		"bug": map[string]any{
			"id":               n,
			"creation_time":    "2018-03-13T16:38:07",
			"last_change_time": "2018-06-11T12:47:56",
			"priority":         "high",
			"product":          map[string]any{"name": "Red Hat Enterprise Linux 7"},
			"version":          map[string]any{"name": "7.5"},
			"resolution":       "",
			"severity":         "medium",
			"summary":          "etcd crashes on start",
			"status":           map[string]any{"name": status},
			"target_milestone": map[string]any{"name": "rc"},
			"assigned_to":      map[string]any{"login": assignee},
			"qa_contact":       map[string]any{"login": "qa@redhat.com"},
			"reporter":         map[string]any{"login": "reporter@example.com"},
		},
	})
}

func TestBugzillaBug(t *testing.T) {
	h := newHarness(t)
	assertIdempotent(t, h, bugzillaMessage("1553155", "ASSIGNED", "mprahl@redhat.com"))

	bug := domain.BugRef("1553155")
	n := h.node(t, domain.LabelBug, bug)
	require.NotNil(t, n)
	assert.Equal(t, "2018-03-13T16:38:07Z", n.Props["creation_time"])
	assert.Equal(t, "2018-06-11T12:47:56Z", n.Props["modified_time"])
	assert.Equal(t, "Red Hat Enterprise Linux 7", n.Props["product_name"])
	assert.Equal(t, "7.5", n.Props["product_version"])
	assert.Equal(t, "rc", n.Props["target_milestone"])
	assert.Nil(t, n.Props["resolution"])

	assert.True(t, h.connected(t, bug, domain.RelAssignedTo, domain.Person{Username: "mprahl"}.Ref()))
	assert.True(t, h.connected(t, bug, domain.RelQAContact, domain.Person{Username: "qa"}.Ref()))
	assert.True(t, h.connected(t, bug, domain.RelReportedBy, domain.Person{Username: "reporter@example.com"}.Ref()))
}

func TestBugzillaReassignment(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, bugzillaMessage("1553155", "NEW", "mprahl@redhat.com"))
	h.mustProcess(t, bugzillaMessage("1553155", "ASSIGNED", "lnewman@redhat.com"))

	bug := domain.BugRef("1553155")
	edges := h.store.EdgesOf(bug, domain.RelAssignedTo)
	require.Len(t, edges, 1)
	assert.Equal(t, domain.Person{Username: "lnewman"}.Ref().KeyString(), edges[0].To.KeyString())
	assert.Equal(t, "ASSIGNED", h.node(t, domain.LabelBug, bug).Props["status"])
	assert.NotNil(t, h.node(t, domain.LabelPerson, domain.Person{Username: "mprahl"}.Ref()), "people are never removed")
}

func TestBugzillaRequiresID(t *testing.T) {
	h := newHarness(t)
	err := h.process(t, message("bugzilla.bug.create", nil, map[string]any{"bug": map[string]any{"summary": "no id"}}))
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
}
