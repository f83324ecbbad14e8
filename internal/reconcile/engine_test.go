package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/provenance-updater/internal/data/graph"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

func newEngine(store graph.Store) *Engine {
	return New(store, logger.NewNop())
}

func TestCreateOrCorrectPromotesInPlace(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)

	plain := domain.Build{ID: 42, Name: "etcd-container", Version: "3.5", Release: "1", State: domain.Int64Ptr(domain.BuildStateComplete)}
	_, err := e.CreateOrCorrect(ctx, Spec(domain.LabelBuild, plain.Ref(), plain.Props()))
	require.NoError(t, err)

	container := domain.Build{ID: 42, Kind: domain.BuildContainer, OriginalNVR: "etcd-container-3.5-1", Operator: domain.BoolPtr(false)}
	n, err := e.CreateOrCorrect(ctx, Spec(domain.LabelContainerBuild, container.Ref(), container.Props()))
	require.NoError(t, err)

	assert.True(t, n.HasLabel(domain.LabelContainerBuild))
	assert.Equal(t, "etcd-container", n.Props["name"], "plain-era value kept")
	assert.Equal(t, "3.5", n.Props["version"])
	assert.Equal(t, "etcd-container-3.5-1", n.Props["original_nvr"])
	assert.Equal(t, false, n.Props["operator"])
	assert.Equal(t, 1, store.Count(domain.LabelBuild))
}

func TestCreateOrCorrectBaseLabelKeepsSubtype(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)

	_, err := e.CreateOrCorrect(ctx, NodeSpec{Label: domain.LabelModuleBuild, Key: domain.Props{"id": int64(5)}, Fields: domain.Props{"module_name": "nodejs"}})
	require.NoError(t, err)
	n, err := e.CreateOrCorrect(ctx, NodeSpec{Label: domain.LabelBuild, Key: domain.Props{"id": int64(5)}, Fields: domain.Props{"name": "nodejs"}})
	require.NoError(t, err)
	assert.True(t, n.HasLabel(domain.LabelModuleBuild))
	assert.Equal(t, "nodejs", n.Props["module_name"])
}

func TestMergeFieldsNeverClears(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)
	ref := domain.BugRef("1234")

	require.NoError(t, e.Stub(ctx, domain.LabelBug, ref.Key))
	_, err := e.CreateOrCorrect(ctx, Spec(domain.LabelBug, ref, domain.Props{"status": "NEW", "severity": "high"}))
	require.NoError(t, err)
	require.NoError(t, e.Stub(ctx, domain.LabelBug, ref.Key))
	n, err := e.CreateOrCorrect(ctx, Spec(domain.LabelBug, ref, domain.Props{"status": "ON_QA", "severity": "  ", "priority": nil}))
	require.NoError(t, err)

	assert.Equal(t, "ON_QA", n.Props["status"])
	assert.Equal(t, "high", n.Props["severity"])
	assert.NotContains(t, n.Props, "priority")
}

func TestMergeFields(t *testing.T) {
	got := MergeFields(domain.Props{"a": "", "b": nil, "c": "x", "d": int64(0), "e": false, "f": []string{}})
	assert.Equal(t, domain.Props{"c": "x", "d": int64(0), "e": false, "f": []string{}}, got)
}

// conflictStore reports a key conflict that no base-label lookup explains.
type conflictStore struct {
	*graph.MemStore
	findResult *graph.Node
	upserts    int
}

func (s *conflictStore) Upsert(ctx context.Context, label domain.Label, key, fields domain.Props) (*graph.Node, bool, error) {
	s.upserts++
	return nil, false, &graph.KeyConflictError{Label: label, Key: key}
}

func (s *conflictStore) FindByKey(ctx context.Context, label domain.Label, key domain.Props) (*graph.Node, error) {
	return s.findResult, nil
}

func (s *conflictStore) AddLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error {
	return nil
}

func TestCreateOrCorrectUnexplainedConflict(t *testing.T) {
	s := &conflictStore{MemStore: graph.NewMemStore()}
	_, err := newEngine(s).CreateOrCorrect(context.Background(), NodeSpec{Label: domain.LabelContainerBuild, Key: domain.Props{"id": int64(1)}})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeReconciliationConflict))
	assert.Equal(t, 1, s.upserts)
}

func TestCreateOrCorrectRetriesOnlyOnce(t *testing.T) {
	s := &conflictStore{MemStore: graph.NewMemStore(), findResult: &graph.Node{Labels: []domain.Label{domain.LabelBuild}}}
	_, err := newEngine(s).CreateOrCorrect(context.Background(), NodeSpec{Label: domain.LabelContainerBuild, Key: domain.Props{"id": int64(1)}})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeReconciliationConflict))
	assert.Equal(t, 2, s.upserts)
}

type failingStore struct{ *graph.MemStore }

func (failingStore) Upsert(context.Context, domain.Label, domain.Props, domain.Props) (*graph.Node, bool, error) {
	return nil, false, errors.New("connection reset")
}

func TestCreateOrCorrectStoreFailureIsTransient(t *testing.T) {
	_, err := newEngine(failingStore{graph.NewMemStore()}).CreateOrCorrect(context.Background(),
		NodeSpec{Label: domain.LabelTag, Key: domain.Props{"id": int64(1)}})
	assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
	assert.False(t, domain.Terminal(err))
}

func TestCreateOrCorrectRejectsMissingKey(t *testing.T) {
	_, err := newEngine(graph.NewMemStore()).CreateOrCorrect(context.Background(),
		NodeSpec{Label: domain.LabelBuild, Key: domain.Props{}})
	assert.True(t, domain.IsCode(err, domain.CodeMalformedPayload))
}

func TestDemote(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)
	ref := domain.AdvisoryRef("RHBA-2020:1")

	_, err := e.CreateOrCorrect(ctx, Spec(domain.LabelContainerAdvisory, ref, domain.Props{"advisory_name": "RHBA-2020:1"}))
	require.NoError(t, err)
	require.NoError(t, e.Demote(ctx, ref, domain.LabelContainerAdvisory))
	require.NoError(t, e.Demote(ctx, ref, domain.LabelContainerAdvisory), "second demotion is a no-op")

	n, err := store.FindByKey(ctx, domain.LabelAdvisory, ref.Key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Label{domain.LabelAdvisory}, n.Labels)
	assert.Equal(t, "RHBA-2020:1", n.Props["advisory_name"])

	assert.Error(t, e.Demote(ctx, ref, domain.LabelContainerBuild))
}

func TestConnectOrReplace(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)
	adv, build := domain.AdvisoryRef("A"), domain.BuildRef(1)
	require.NoError(t, e.Stub(ctx, domain.LabelAdvisory, adv.Key))
	require.NoError(t, e.Stub(ctx, domain.LabelBuild, build.Key))

	require.NoError(t, e.ConnectOrReplace(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t1"}))
	require.NoError(t, e.ConnectOrReplace(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t1"}))
	require.NoError(t, e.ConnectOrReplace(ctx, adv, domain.RelAttachedBuild, build, domain.Props{"time_attached": "t2"}))

	edges := store.EdgesOf(adv, domain.RelAttachedBuild)
	require.Len(t, edges, 1)
	assert.Equal(t, domain.Props{"time_attached": "t2"}, edges[0].Props)

	require.NoError(t, e.Disconnect(ctx, adv, domain.RelAttachedBuild, build))
	require.NoError(t, e.Disconnect(ctx, adv, domain.RelAttachedBuild, build))
	assert.Empty(t, store.EdgesOf(adv, domain.RelAttachedBuild))
}

func TestSameValueAcrossStoreTypes(t *testing.T) {
	assert.True(t, sameValue(int64(3), 3))
	assert.True(t, sameValue([]any{"a", "b"}, []string{"a", "b"}))
	assert.False(t, sameValue("t1", "t2"))
}

func TestConnectExclusive(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	e := newEngine(store)
	commit := domain.CommitRef("abc")
	alice, bob := domain.Person{Username: "alice"}.Ref(), domain.Person{Username: "bob"}.Ref()
	for _, r := range []domain.NodeRef{commit, alice, bob} {
		require.NoError(t, e.Stub(ctx, r.Label, r.Key))
	}

	require.NoError(t, e.ConnectExclusive(ctx, commit, domain.RelAuthoredBy, alice))
	require.NoError(t, e.ConnectExclusive(ctx, commit, domain.RelAuthoredBy, bob))
	require.NoError(t, e.ConnectExclusive(ctx, commit, domain.RelAuthoredBy, bob))

	edges := store.EdgesOf(commit, domain.RelAuthoredBy)
	require.Len(t, edges, 1)
	assert.Equal(t, bob.KeyString(), edges[0].To.KeyString())
}
