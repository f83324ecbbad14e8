package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/domain"
)

func TestMemStoreUpsertCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := domain.Props{"id": int64(7)}

	n, created, err := s.Upsert(ctx, domain.LabelBuild, key, domain.Props{"name": "bash", "version": "5.1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []domain.Label{domain.LabelBuild}, n.Labels)

	n, created, err = s.Upsert(ctx, domain.LabelBuild, key, domain.Props{"version": "5.2", "release": nil})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "bash", n.Props["name"])
	assert.Equal(t, "5.2", n.Props["version"])
	assert.Equal(t, int64(7), n.Props["id"])
	assert.Equal(t, 1, s.Count(domain.LabelBuild))
}

func TestMemStoreSubtypeConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := domain.Props{"id": int64(7)}

	_, _, err := s.Upsert(ctx, domain.LabelBuild, key, domain.Props{"name": "etcd-container"})
	require.NoError(t, err)

	_, _, err = s.Upsert(ctx, domain.LabelContainerBuild, key, domain.Props{"operator": false})
	var conflict *KeyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []domain.Label{domain.LabelBuild}, conflict.Existing)

	found, err := s.FindByKey(ctx, domain.LabelContainerBuild, key)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, s.AddLabel(ctx, domain.BuildRef(7), domain.LabelContainerBuild))
	n, created, err := s.Upsert(ctx, domain.LabelContainerBuild, key, domain.Props{"operator": false})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, n.HasLabel(domain.LabelContainerBuild))
	assert.Equal(t, "etcd-container", n.Props["name"])
	assert.Equal(t, false, n.Props["operator"])
}

func TestMemStoreSubtypeCreateCarriesBase(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, created, err := s.Upsert(ctx, domain.LabelModuleBuild, domain.Props{"id": int64(1)}, nil)
	require.NoError(t, err)
	assert.True(t, created)

	base, err := s.FindByKey(ctx, domain.LabelBuild, domain.Props{"id": int64(1)})
	require.NoError(t, err)
	require.NotNil(t, base)
	assert.Equal(t, []domain.Label{domain.LabelBuild, domain.LabelModuleBuild}, base.Labels)

	_, _, err = s.Upsert(ctx, domain.LabelBuild, domain.Props{"id": int64(1)}, domain.Props{"name": "nodejs"})
	require.NoError(t, err, "base label upsert matches any subtype")
}

func TestMemStoreRemoveLabel(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	ref := domain.AdvisoryRef("RHBA-1")
	_, _, err := s.Upsert(ctx, domain.LabelContainerAdvisory, ref.Key, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveLabel(ctx, ref, domain.LabelContainerAdvisory))
	require.Error(t, s.RemoveLabel(ctx, ref, domain.LabelAdvisory))
	assert.Equal(t, 0, s.Count(domain.LabelContainerAdvisory))
	assert.Equal(t, 1, s.Count(domain.LabelAdvisory))

	err = s.AddLabel(ctx, domain.AdvisoryRef("missing"), domain.LabelContainerAdvisory)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestMemStoreEdges(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	adv := domain.AdvisoryRef("RHSA-2")
	build := domain.BuildRef(9)

	_, err := s.Connect(ctx, adv, domain.RelAttachedBuild, build, nil)
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, _, err = s.Upsert(ctx, domain.LabelAdvisory, adv.Key, nil)
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, domain.LabelBuild, build.Key, nil)
	require.NoError(t, err)

	created, err := s.Connect(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t1"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Connect(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t2"})
	require.NoError(t, err)
	assert.False(t, created)

	e, err := s.GetEdge(ctx, adv, domain.RelAttachedBuild, build)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "t1", e.Props["time_attached"])

	require.NoError(t, s.ReplaceEdge(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t2"}))
	assert.Len(t, s.EdgesOf(adv, domain.RelAttachedBuild), 1)
	assert.Equal(t, "t2", s.EdgesOf(adv, domain.RelAttachedBuild)[0].Props["time_attached"])

	removed, err := s.Disconnect(ctx, adv, domain.RelAttachedBuild, build)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Disconnect(ctx, adv, domain.RelAttachedBuild, build)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err := s.IsConnected(ctx, adv, domain.RelAttachedBuild, build)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStoreRejectsInvalidRefs(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, _, err := s.Upsert(ctx, domain.LabelBuild, domain.Props{}, nil)
	require.Error(t, err)
	_, _, err = s.Upsert(ctx, domain.Label("Nope"), domain.Props{"id": 1}, nil)
	require.Error(t, err)

	a := domain.BuildRef(1)
	_, err = s.Connect(ctx, a, domain.RelType("BAD TYPE"), a, nil)
	require.Error(t, err)
}

func TestMemStoreSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, _, err := s.Upsert(ctx, domain.LabelAdvisory, domain.Props{"id": "1"}, domain.Props{"content_types": []string{"rpm"}})
	require.NoError(t, err)

	nodes, _ := s.Snapshot()
	nodes["Advisory{id=1}"].Props["content_types"].([]string)[0] = "mutated"

	again, _ := s.Snapshot()
	assert.Equal(t, []string{"rpm"}, again["Advisory{id=1}"].Props["content_types"])
}

func TestMemStoreDisconnectOthers(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	bug := domain.BugRef("1")
	alice := domain.Person{Username: "alice"}.Ref()
	bob := domain.Person{Username: "bob"}.Ref()
	for _, r := range []domain.NodeRef{bug, alice, bob} {
		_, _, err := s.Upsert(ctx, r.Label, r.Key, nil)
		require.NoError(t, err)
	}
	_, err := s.Connect(ctx, bug, domain.RelAssignedTo, alice, nil)
	require.NoError(t, err)
	_, err = s.Connect(ctx, bug, domain.RelAssignedTo, bob, nil)
	require.NoError(t, err)

	removed, err := s.DisconnectOthers(ctx, bug, domain.RelAssignedTo, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	edges := s.EdgesOf(bug, domain.RelAssignedTo)
	require.Len(t, edges, 1)
	assert.Equal(t, bob.KeyString(), edges[0].To.KeyString())
}
