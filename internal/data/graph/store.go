package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// Store persists labeled nodes addressed by natural key and typed edges
// between them. Implementations enforce one node per base label and key.
type Store interface {
	// Upsert merges fields into the node carrying label and key, creating it
	// when absent. A node with the same key that lacks label yields a
	// *KeyConflictError and no write.
	Upsert(ctx context.Context, label domain.Label, key, fields domain.Props) (*Node, bool, error)
	// FindByKey returns the node carrying label with the key, or nil.
	FindByKey(ctx context.Context, label domain.Label, key domain.Props) (*Node, error)
	AddLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error
	RemoveLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error

	// Connect creates the edge when absent and reports whether it did.
	// Attributes of an existing edge are left untouched.
	Connect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) (bool, error)
	// Disconnect removes the edge and reports whether one existed.
	Disconnect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error)
	// DisconnectOthers removes every rel edge leaving from that does not end
	// at keep, and reports how many it removed.
	DisconnectOthers(ctx context.Context, from domain.NodeRef, rel domain.RelType, keep domain.NodeRef) (int, error)
	// ReplaceEdge deletes any existing edge and creates one with attrs.
	ReplaceEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) error
	// GetEdge returns the edge or nil.
	GetEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (*Edge, error)
	IsConnected(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error)

	Ping(ctx context.Context) error
}

var ErrNodeNotFound = errors.New("graph: node not found")

// KeyConflictError reports that a node with the key exists under a
// different subtype than the one requested.
type KeyConflictError struct {
	Label    domain.Label
	Key      domain.Props
	Existing []domain.Label
	Cause    error
}

func (e *KeyConflictError) Error() string {
	ref := domain.Ref(e.Label, e.Key)
	if len(e.Existing) == 0 {
		return fmt.Sprintf("graph: key conflict upserting %s as %s", ref, e.Label)
	}
	return fmt.Sprintf("graph: key conflict upserting %s as %s (existing labels %v)", ref, e.Label, e.Existing)
}

func (e *KeyConflictError) Unwrap() error { return e.Cause }

type Node struct {
	Labels []domain.Label
	Props  domain.Props
}

func (n *Node) HasLabel(l domain.Label) bool {
	if n == nil {
		return false
	}
	for _, have := range n.Labels {
		if have == l {
			return true
		}
	}
	return false
}

type Edge struct {
	From  domain.NodeRef
	Type  domain.RelType
	To    domain.NodeRef
	Props domain.Props
}

func sortLabels(labels []domain.Label) []domain.Label {
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// writableFields drops key fields, which are fixed by the key itself.
func writableFields(label domain.Label, fields domain.Props) domain.Props {
	out := make(domain.Props, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, f := range label.KeyFields() {
		delete(out, f)
	}
	return out
}

func checkEdge(from domain.NodeRef, rel domain.RelType, to domain.NodeRef) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if !validIdent(string(rel)) {
		return fmt.Errorf("graph: invalid relationship type %q", rel)
	}
	return nil
}
