package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// MemStore is an in-process Store with the same uniqueness semantics as the
// Neo4j schema. It backs dry-run replays and tests.
type MemStore struct {
	mu    sync.Mutex
	nodes map[string]*memNode
	edges map[string]*Edge
}

type memNode struct {
	ref    domain.NodeRef
	labels map[domain.Label]struct{}
	props  domain.Props
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes: map[string]*memNode{},
		edges: map[string]*Edge{},
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Upsert(ctx context.Context, label domain.Label, key, fields domain.Props) (*Node, bool, error) {
	ref := domain.Ref(label, key)
	if err := ref.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[ref.KeyString()]
	if ok {
		if _, has := n.labels[label]; !has {
			return nil, false, &KeyConflictError{Label: label, Key: key, Existing: n.snapshot().Labels}
		}
		for k, v := range writableFields(label, fields) {
			if v == nil {
				delete(n.props, k)
				continue
			}
			n.props[k] = copyValue(v)
		}
		return n.snapshot(), false, nil
	}

	n = &memNode{
		ref:    ref,
		labels: map[domain.Label]struct{}{ref.Label: {}, label: {}},
		props:  domain.Props{},
	}
	for k, v := range key {
		n.props[k] = v
	}
	for k, v := range writableFields(label, fields) {
		if v != nil {
			n.props[k] = copyValue(v)
		}
	}
	s.nodes[ref.KeyString()] = n
	return n.snapshot(), true, nil
}

func (s *MemStore) FindByKey(ctx context.Context, label domain.Label, key domain.Props) (*Node, error) {
	ref := domain.Ref(label, key)
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[ref.KeyString()]
	if !ok {
		return nil, nil
	}
	if _, has := n.labels[label]; !has {
		return nil, nil
	}
	return n.snapshot(), nil
}

func (s *MemStore) AddLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error {
	return s.relabel(ref, label, true)
}

func (s *MemStore) RemoveLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error {
	if label == ref.Label {
		return fmt.Errorf("graph: refusing to remove base label %s", label)
	}
	return s.relabel(ref, label, false)
}

func (s *MemStore) relabel(ref domain.NodeRef, label domain.Label, add bool) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if !validIdent(string(label)) {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[ref.KeyString()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	if add {
		n.labels[label] = struct{}{}
	} else {
		delete(n.labels, label)
	}
	return nil
}

func (s *MemStore) Connect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) (bool, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.endpointsExist(from, to); err != nil {
		return false, err
	}
	id := edgeID(from, rel, to)
	if _, ok := s.edges[id]; ok {
		return false, nil
	}
	s.edges[id] = newEdge(from, rel, to, attrs)
	return true, nil
}

func (s *MemStore) Disconnect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := edgeID(from, rel, to)
	if _, ok := s.edges[id]; !ok {
		return false, nil
	}
	delete(s.edges, id)
	return true, nil
}

func (s *MemStore) DisconnectOthers(ctx context.Context, from domain.NodeRef, rel domain.RelType, keep domain.NodeRef) (int, error) {
	if err := checkEdge(from, rel, keep); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.edges {
		if e.Type != rel || e.From.KeyString() != from.KeyString() || e.To.KeyString() == keep.KeyString() {
			continue
		}
		delete(s.edges, id)
		removed++
	}
	return removed, nil
}

func (s *MemStore) ReplaceEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) error {
	if err := checkEdge(from, rel, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.endpointsExist(from, to); err != nil {
		return err
	}
	s.edges[edgeID(from, rel, to)] = newEdge(from, rel, to, attrs)
	return nil
}

func (s *MemStore) GetEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (*Edge, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeID(from, rel, to)]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Props = copyProps(e.Props)
	return &cp, nil
}

func (s *MemStore) IsConnected(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error) {
	e, err := s.GetEdge(ctx, from, rel, to)
	return e != nil, err
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

// Snapshot renders the whole graph as comparable values, keyed by the node
// key string and "from -REL-> to" for edges.
func (s *MemStore) Snapshot() (map[string]Node, map[string]domain.Props) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make(map[string]Node, len(s.nodes))
	for k, n := range s.nodes {
		nodes[k] = *n.snapshot()
	}
	edges := make(map[string]domain.Props, len(s.edges))
	for k, e := range s.edges {
		edges[k] = copyProps(e.Props)
	}
	return nodes, edges
}

// Count returns the number of nodes carrying label.
func (s *MemStore) Count(label domain.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, n := range s.nodes {
		if _, ok := n.labels[label]; ok {
			c++
		}
	}
	return c
}

// EdgesOf lists edges of type rel leaving from, ordered by target key.
func (s *MemStore) EdgesOf(from domain.NodeRef, rel domain.RelType) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Edge
	for _, e := range s.edges {
		if e.Type == rel && e.From.KeyString() == from.KeyString() {
			cp := *e
			cp.Props = copyProps(e.Props)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To.KeyString() < out[j].To.KeyString() })
	return out
}

func (s *MemStore) endpointsExist(refs ...domain.NodeRef) error {
	for _, r := range refs {
		if _, ok := s.nodes[r.KeyString()]; !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, r)
		}
	}
	return nil
}

func (n *memNode) snapshot() *Node {
	labels := make([]domain.Label, 0, len(n.labels))
	for l := range n.labels {
		labels = append(labels, l)
	}
	return &Node{Labels: sortLabels(labels), Props: copyProps(n.props)}
}

func edgeID(from domain.NodeRef, rel domain.RelType, to domain.NodeRef) string {
	return from.KeyString() + " -" + string(rel) + "-> " + to.KeyString()
}

func newEdge(from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) *Edge {
	props := domain.Props{}
	for k, v := range attrs {
		if v != nil {
			props[k] = copyValue(v)
		}
	}
	return &Edge{From: from, Type: rel, To: to, Props: props}
}

func copyProps(p domain.Props) domain.Props {
	out := make(domain.Props, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		return append([]any(nil), t...)
	default:
		return v
	}
}
