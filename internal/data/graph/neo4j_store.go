package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/platform/neo4jdb"
)

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Neo4jStore implements Store on Neo4j. Each call runs in its own managed
// transaction; sessions share the client's bookmark manager so later calls
// observe earlier commits.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: log.With("component", "Neo4jStore")}
}

var _ Store = (*Neo4jStore)(nil)

func (s *Neo4jStore) Upsert(ctx context.Context, label domain.Label, key, fields domain.Props) (*Node, bool, error) {
	ref := domain.Ref(label, key)
	if err := ref.Validate(); err != nil {
		return nil, false, err
	}
	match, params := nodePattern("n", ref, label)
	params["props"] = map[string]any(writableFields(label, fields))

	q := `
MERGE ` + match + `
ON CREATE SET n.__created = true
SET n += $props
WITH n, coalesce(n.__created, false) AS created
REMOVE n.__created
RETURN labels(n) AS labels, properties(n) AS props, created
`
	var (
		node    *Node
		created bool
	)
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node = recordNode(rec)
		created, _, err = neo4j.GetRecordValue[bool](rec, "created")
		return nil, err
	})
	if err != nil {
		if isConstraintViolation(err) {
			conflict := &KeyConflictError{Label: label, Key: key, Cause: err}
			if existing, ferr := s.FindByKey(ctx, ref.Label, key); ferr == nil && existing != nil {
				conflict.Existing = existing.Labels
			}
			return nil, false, conflict
		}
		return nil, false, fmt.Errorf("neo4j upsert %s: %w", ref, err)
	}
	return node, created, nil
}

func (s *Neo4jStore) FindByKey(ctx context.Context, label domain.Label, key domain.Props) (*Node, error) {
	ref := domain.Ref(label, key)
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	match, params := nodePattern("n", ref, label)
	q := `MATCH ` + match + ` RETURN labels(n) AS labels, properties(n) AS props LIMIT 1`

	var node *Node
	_, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			node = recordNode(res.Record())
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j find %s: %w", ref, err)
	}
	return node, nil
}

func (s *Neo4jStore) AddLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error {
	return s.relabel(ctx, ref, label, "SET")
}

func (s *Neo4jStore) RemoveLabel(ctx context.Context, ref domain.NodeRef, label domain.Label) error {
	if label == ref.Label {
		return fmt.Errorf("graph: refusing to remove base label %s", label)
	}
	return s.relabel(ctx, ref, label, "REMOVE")
}

func (s *Neo4jStore) relabel(ctx context.Context, ref domain.NodeRef, label domain.Label, verb string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if !validIdent(string(label)) {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	match, params := nodePattern("n", ref, ref.Label)
	q := `MATCH ` + match + ` ` + verb + ` n:` + string(label) + ` RETURN count(n) AS matched`
	matched, err := s.writeCount(ctx, q, params, "matched")
	if err != nil {
		return fmt.Errorf("neo4j %s label %s on %s: %w", strings.ToLower(verb), label, ref, err)
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	return nil
}

func (s *Neo4jStore) Connect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) (bool, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return false, err
	}
	pattern, params := edgeEndpoints(from, to)
	params["attrs"] = nonNil(attrs)
	q := pattern + `
MERGE (a)-[r:` + string(rel) + `]->(b)
ON CREATE SET r += $attrs, r.__created = true
WITH r, coalesce(r.__created, false) AS created
REMOVE r.__created
RETURN created
`
	var (
		found   bool
		created bool
	)
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			found = true
			created, _, _ = neo4j.GetRecordValue[bool](res.Record(), "created")
		}
		return nil, res.Err()
	})
	if err != nil {
		return false, fmt.Errorf("neo4j connect %s -%s-> %s: %w", from, rel, to, err)
	}
	if !found {
		return false, fmt.Errorf("%w: %s or %s", ErrNodeNotFound, from, to)
	}
	return created, nil
}

func (s *Neo4jStore) Disconnect(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return false, err
	}
	am, params := nodePattern("a", from, from.Label)
	bm, bparams := nodePattern("b", to, to.Label)
	for k, v := range bparams {
		params[k] = v
	}
	q := `MATCH ` + am + `-[r:` + string(rel) + `]->` + bm + ` DELETE r RETURN count(r) AS removed`
	removed, err := s.writeCount(ctx, q, params, "removed")
	if err != nil {
		return false, fmt.Errorf("neo4j disconnect %s -%s-> %s: %w", from, rel, to, err)
	}
	return removed > 0, nil
}

func (s *Neo4jStore) DisconnectOthers(ctx context.Context, from domain.NodeRef, rel domain.RelType, keep domain.NodeRef) (int, error) {
	if err := checkEdge(from, rel, keep); err != nil {
		return 0, err
	}
	pattern, params := edgeEndpoints(from, keep)
	q := pattern + `
MATCH (a)-[r:` + string(rel) + `]->(other)
WHERE other <> b
DELETE r
RETURN count(r) AS removed
`
	removed, err := s.writeCount(ctx, q, params, "removed")
	if err != nil {
		return 0, fmt.Errorf("neo4j disconnect others %s -%s-> !%s: %w", from, rel, keep, err)
	}
	return int(removed), nil
}

func (s *Neo4jStore) ReplaceEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef, attrs domain.Props) error {
	if err := checkEdge(from, rel, to); err != nil {
		return err
	}
	pattern, params := edgeEndpoints(from, to)
	params["attrs"] = nonNil(attrs)
	q := pattern + `
OPTIONAL MATCH (a)-[old:` + string(rel) + `]->(b)
DELETE old
WITH DISTINCT a, b
CREATE (a)-[r:` + string(rel) + `]->(b)
SET r = $attrs
RETURN count(r) AS created
`
	created, err := s.writeCount(ctx, q, params, "created")
	if err != nil {
		return fmt.Errorf("neo4j replace %s -%s-> %s: %w", from, rel, to, err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s or %s", ErrNodeNotFound, from, to)
	}
	return nil
}

func (s *Neo4jStore) GetEdge(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (*Edge, error) {
	if err := checkEdge(from, rel, to); err != nil {
		return nil, err
	}
	am, params := nodePattern("a", from, from.Label)
	bm, bparams := nodePattern("b", to, to.Label)
	for k, v := range bparams {
		params[k] = v
	}
	q := `MATCH ` + am + `-[r:` + string(rel) + `]->` + bm + ` RETURN properties(r) AS props LIMIT 1`

	var edge *Edge
	_, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			props, _, _ := neo4j.GetRecordValue[map[string]any](res.Record(), "props")
			edge = &Edge{From: from, Type: rel, To: to, Props: domain.Props(props)}
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j get edge %s -%s-> %s: %w", from, rel, to, err)
	}
	return edge, nil
}

func (s *Neo4jStore) IsConnected(ctx context.Context, from domain.NodeRef, rel domain.RelType, to domain.NodeRef) (bool, error) {
	e, err := s.GetEdge(ctx, from, rel, to)
	return e != nil, err
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (s *Neo4jStore) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

func (s *Neo4jStore) writeCount(ctx context.Context, q string, params map[string]any, column string) (int64, error) {
	var n int64
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _, err = neo4j.GetRecordValue[int64](rec, column)
		return nil, err
	})
	return n, err
}

// nodePattern renders "(v:Label {k: $v_k, ...})" for ref's key under label.
func nodePattern(v string, ref domain.NodeRef, label domain.Label) (string, map[string]any) {
	fields := ref.Label.KeyFields()
	params := make(map[string]any, len(fields)+2)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		p := v + "_" + f
		parts = append(parts, f+": $"+p)
		params[p] = ref.Key[f]
	}
	labels := ":" + string(ref.Label)
	if label != ref.Label {
		labels += ":" + string(label)
	}
	return "(" + v + labels + " {" + strings.Join(parts, ", ") + "})", params
}

func edgeEndpoints(from, to domain.NodeRef) (string, map[string]any) {
	am, params := nodePattern("a", from, from.Label)
	bm, bparams := nodePattern("b", to, to.Label)
	for k, v := range bparams {
		params[k] = v
	}
	return "MATCH " + am + "\nMATCH " + bm, params
}

func recordNode(rec *neo4j.Record) *Node {
	rawLabels, _, _ := neo4j.GetRecordValue[[]any](rec, "labels")
	props, _, _ := neo4j.GetRecordValue[map[string]any](rec, "props")
	labels := make([]domain.Label, 0, len(rawLabels))
	for _, l := range rawLabels {
		if s, ok := l.(string); ok {
			labels = append(labels, domain.Label(s))
		}
	}
	return &Node{Labels: sortLabels(labels), Props: domain.Props(props)}
}

func nonNil(p domain.Props) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == constraintViolationCode
}
