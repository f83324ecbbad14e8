// Package reconcile keeps one correctly labeled node per natural key and
// maintains edges idempotently on top of a graph.Store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/yungbote/provenance-updater/internal/data/graph"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

type Engine struct {
	store graph.Store
	log   *logger.Logger
}

func New(store graph.Store, log *logger.Logger) *Engine {
	return &Engine{store: store, log: log.With("component", "Reconciler")}
}

// NodeSpec is a node write: the target label (base or subtype), its natural
// key and the incoming fields.
type NodeSpec struct {
	Label  domain.Label
	Key    domain.Props
	Fields domain.Props
}

func (s NodeSpec) Ref() domain.NodeRef { return domain.Ref(s.Label, s.Key) }

// Spec is a helper for entities that expose Ref and Props.
func Spec(label domain.Label, ref domain.NodeRef, fields domain.Props) NodeSpec {
	return NodeSpec{Label: label, Key: ref.Key, Fields: fields}
}

// CreateOrCorrect upserts the node under spec.Label. When a node with the
// key already exists under another subtype, the label is added to that node
// and the upsert retried once.
func (e *Engine) CreateOrCorrect(ctx context.Context, spec NodeSpec) (*graph.Node, error) {
	ref := spec.Ref()
	if err := ref.Validate(); err != nil {
		return nil, domain.Malformed("reconcile.upsert", "%v", err)
	}
	fields := MergeFields(spec.Fields)

	node, created, err := e.store.Upsert(ctx, spec.Label, spec.Key, fields)
	if err == nil {
		if created {
			e.log.Debug("node created", "node", ref.String(), "label", spec.Label)
		}
		return node, nil
	}
	var conflict *graph.KeyConflictError
	if !errors.As(err, &conflict) {
		return nil, storeError("upsert", err)
	}

	existing, err := e.store.FindByKey(ctx, ref.Label, spec.Key)
	if err != nil {
		return nil, storeError("find", err)
	}
	if existing == nil {
		return nil, domain.NewError(domain.CodeReconciliationConflict, "reconcile.upsert",
			fmt.Sprintf("%s violates uniqueness but no %s node holds the key", ref, ref.Label), conflict)
	}

	if err := e.store.AddLabel(ctx, ref, spec.Label); err != nil {
		return nil, storeError("add label", err)
	}
	e.log.Info("node promoted", "node", ref.String(), "from", existing.Labels, "to", spec.Label)

	node, _, err = e.store.Upsert(ctx, spec.Label, spec.Key, fields)
	if err != nil {
		if errors.As(err, &conflict) {
			return nil, domain.NewError(domain.CodeReconciliationConflict, "reconcile.upsert",
				fmt.Sprintf("%s still conflicts after promotion to %s", ref, spec.Label), err)
		}
		return nil, storeError("upsert", err)
	}
	return node, nil
}

// Stub makes sure a node with the key exists without touching its fields.
func (e *Engine) Stub(ctx context.Context, label domain.Label, key domain.Props) error {
	_, err := e.CreateOrCorrect(ctx, NodeSpec{Label: label, Key: key})
	return err
}

// Find returns the node holding ref's key under label, or nil.
func (e *Engine) Find(ctx context.Context, label domain.Label, ref domain.NodeRef) (*graph.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, domain.Malformed("reconcile.find", "%v", err)
	}
	n, err := e.store.FindByKey(ctx, label, ref.Key)
	if err != nil {
		return nil, storeError("find", err)
	}
	return n, nil
}

// Demote removes a subtype label from an existing node. It is a no-op when
// the node does not carry the label.
func (e *Engine) Demote(ctx context.Context, ref domain.NodeRef, subtype domain.Label) error {
	if !subtype.IsSubtype() || subtype.Base() != ref.Label {
		return domain.NewError(domain.CodeInternal, "reconcile.demote",
			fmt.Sprintf("%s is not a subtype of %s", subtype, ref.Label), nil)
	}
	n, err := e.store.FindByKey(ctx, subtype, ref.Key)
	if err != nil {
		return storeError("find", err)
	}
	if n == nil {
		return nil
	}
	if err := e.store.RemoveLabel(ctx, ref, subtype); err != nil {
		return storeError("remove label", err)
	}
	e.log.Info("node demoted", "node", ref.String(), "removed", subtype)
	return nil
}

// ConnectIfAbsent creates the edge unless one already exists.
func (e *Engine) ConnectIfAbsent(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) error {
	if err := validateRefs(from, to); err != nil {
		return err
	}
	if _, err := e.store.Connect(ctx, from, rel, to, MergeFields(attrs)); err != nil {
		return storeError("connect", err)
	}
	return nil
}

// ConnectOrReplace makes the edge carry exactly attrs, recreating it when
// an existing edge's attributes differ.
func (e *Engine) ConnectOrReplace(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) error {
	if err := validateRefs(from, to); err != nil {
		return err
	}
	attrs = MergeFields(attrs)
	existing, err := e.store.GetEdge(ctx, from, rel, to)
	if err != nil {
		return storeError("get edge", err)
	}
	if existing == nil {
		return e.ConnectIfAbsent(ctx, from, rel, to, attrs)
	}
	if sameProps(existing.Props, attrs) {
		return nil
	}
	if err := e.store.ReplaceEdge(ctx, from, rel, to, attrs); err != nil {
		return storeError("replace edge", err)
	}
	e.log.Debug("edge replaced", "from", from.String(), "rel", rel, "to", to.String())
	return nil
}

// ConnectExclusive makes to the only rel target of from. It is used for
// single-valued facts such as a bug's assignee.
func (e *Engine) ConnectExclusive(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) error {
	if err := e.ConnectIfAbsent(ctx, from, rel, to, nil); err != nil {
		return err
	}
	removed, err := e.store.DisconnectOthers(ctx, from, rel, to)
	if err != nil {
		return storeError("disconnect others", err)
	}
	if removed > 0 {
		e.log.Debug("stale edges removed", "from", from.String(), "rel", rel, "removed", removed)
	}
	return nil
}

// Disconnect removes the edge if present.
func (e *Engine) Disconnect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) error {
	if err := validateRefs(from, to); err != nil {
		return err
	}
	if _, err := e.store.Disconnect(ctx, from, rel, to); err != nil {
		return storeError("disconnect", err)
	}
	return nil
}

// MergeFields drops nil and blank-string values so that a missing incoming
// value never clears a stored one.
func MergeFields(in domain.Props) domain.Props {
	out := make(domain.Props, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func sameProps(stored, want domain.Props) bool {
	if len(stored) != len(want) {
		return false
	}
	for k, w := range want {
		s, ok := stored[k]
		if !ok || !sameValue(s, w) {
			return false
		}
	}
	return true
}

// sameValue compares values across the store's type widening: Neo4j hands
// back integers as int64 and lists as []any.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func validateRefs(refs ...domain.NodeRef) error {
	for _, r := range refs {
		if err := r.Validate(); err != nil {
			return domain.Malformed("reconcile.edge", "%v", err)
		}
	}
	return nil
}

// storeError classifies a store failure. Unknown failures are treated as
// transient so the message is redelivered.
func storeError(op string, err error) error {
	if errors.Is(err, graph.ErrNodeNotFound) {
		return domain.Wrap(domain.CodeInternal, "reconcile."+op, err)
	}
	return domain.Wrap(domain.CodeUpstreamUnavailable, "reconcile."+op, err)
}
