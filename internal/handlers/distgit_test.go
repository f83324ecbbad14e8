package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/router"
)

const commitRev = "1d0c1e7a6bbcf2d4a0e8c0d1f8a4e2b3c9d7f6a5"

func distGitCommit(email, text string) router.Message {
	return message("distgit.commit", map[string]any{
		"namespace": "rpms",
		"repo":      "etcd",
		"branch":    "rhel-7.5",
		"email":     email,
		"rev":       commitRev,
	}, map[string]any{
		"message":     text,
		"author_date": "2018-04-10T13:26:32Z",
		"commit_date": "2018-04-10T13:30:00Z",
	})
}

func TestDistGitCommit(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, distGitCommit("mprahl@redhat.com", "Update to 3.2.22\n\nResolves: rhbz#1553155\nRelated: #1553156"))

	commit := domain.CommitRef(commitRev)
	n := h.node(t, domain.LabelSourceCommit, commit)
	require.NotNil(t, n)
	assert.Equal(t, "2018-04-10T13:26:32Z", n.Props["author_date"])
	assert.Contains(t, n.Props["message"], "Update to 3.2.22")

	repo := domain.SourceRepo{Namespace: "rpms", Name: "etcd"}.Ref()
	branch := domain.SourceBranch{RepoNamespace: "rpms", RepoName: "etcd", Name: "rhel-7.5"}.Ref()
	author := domain.Person{Username: "mprahl"}.Ref()

	p := h.node(t, domain.LabelPerson, author)
	require.NotNil(t, p)
	assert.Equal(t, "mprahl@redhat.com", p.Props["email"])

	assert.True(t, h.connected(t, commit, domain.RelAuthoredBy, author))
	assert.True(t, h.connected(t, commit, domain.RelInRepo, repo))
	assert.True(t, h.connected(t, commit, domain.RelOnBranch, branch))
	assert.True(t, h.connected(t, branch, domain.RelBranchOf, repo))
	assert.True(t, h.connected(t, commit, domain.RelResolves, domain.BugRef("1553155")))
	assert.True(t, h.connected(t, commit, domain.RelRelatesTo, domain.BugRef("1553156")))
	assert.Equal(t, 2, h.store.Count(domain.LabelBug))
}

func TestDistGitCommitIdempotent(t *testing.T) {
	h := newHarness(t)
	assertIdempotent(t, h, distGitCommit("mprahl@redhat.com", "Resolves: bz1 bz2\nReverted: #3"))
	assert.Len(t, h.store.EdgesOf(domain.CommitRef(commitRev), domain.RelResolves), 2)
}

func TestDistGitExternalAuthorKeepsAddress(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, distGitCommit("contributor@example.org", "typo"))
	assert.NotNil(t, h.node(t, domain.LabelPerson, domain.Person{Username: "contributor@example.org"}.Ref()))
}

func TestDistGitMissingHeaderWritesNothing(t *testing.T) {
	h := newHarness(t)
	msg := distGitCommit("mprahl@redhat.com", "Resolves: #1")
	delete(msg.Headers, "rev")

	err := h.process(t, msg)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
	nodes, edges := h.store.Snapshot()
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestBugStubThenFill(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, distGitCommit("mprahl@redhat.com", "Resolves: rhbz1553155"))

	bug := domain.BugRef("1553155")
	stub := h.node(t, domain.LabelBug, bug)
	require.NotNil(t, stub)
	assert.Empty(t, stub.Props["status"])

	h.mustProcess(t, bugzillaMessage("1553155", "NEW", "mprahl@redhat.com"))

	n := h.node(t, domain.LabelBug, bug)
	assert.Equal(t, "NEW", n.Props["status"])
	assert.Equal(t, "etcd crashes on start", n.Props["short_description"])
	assert.True(t, h.connected(t, domain.CommitRef(commitRev), domain.RelResolves, bug), "stub edges survive the fill")
	assert.Equal(t, 1, h.store.Count(domain.LabelBug))
}

func TestCommitStubThenFill(t *testing.T) {
	rec := plainRecord(7001)
	rec.Source = "git://pkgs.devel.redhat.com/rpms/etcd?#" + commitRev
	h := newHarness(t)
	h.mustProcess(t, kojiBuildMessage("complete", rec))

	commit := domain.CommitRef(commitRev)
	require.NotNil(t, h.node(t, domain.LabelSourceCommit, commit))
	assert.True(t, h.connected(t, domain.BuildRef(7001), domain.RelHasCommit, commit))

	h.mustProcess(t, distGitCommit("mprahl@redhat.com", "Rebuild"))
	n := h.node(t, domain.LabelSourceCommit, commit)
	assert.Equal(t, "Rebuild", n.Props["message"])
	assert.True(t, h.connected(t, domain.BuildRef(7001), domain.RelHasCommit, commit))
	assert.Equal(t, 1, h.store.Count(domain.LabelSourceCommit))
}
