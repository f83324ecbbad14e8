package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// SchemaStatements returns one uniqueness constraint per base label on its
// natural key.
func SchemaStatements() []string {
	stmts := make([]string, 0, len(domain.BaseLabels))
	for _, l := range domain.BaseLabels {
		fields := l.KeyFields()
		props := make([]string, 0, len(fields))
		for _, f := range fields {
			props = append(props, "n."+f)
		}
		require := props[0]
		if len(props) > 1 {
			require = "(" + strings.Join(props, ", ") + ")"
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE %s IS UNIQUE",
			constraintName(l), l, require,
		))
	}
	return stmts
}

// ConstraintNames lists the constraint names SchemaStatements creates.
func ConstraintNames() []string {
	names := make([]string, 0, len(domain.BaseLabels))
	for _, l := range domain.BaseLabels {
		names = append(names, constraintName(l))
	}
	return names
}

func constraintName(l domain.Label) string {
	return toSnake(string(l)) + "_key_unique"
}

// MissingConstraints returns the uniqueness constraints that are not in the
// database. Without them MERGE on a promoted label pattern cannot detect an
// existing node under its base label.
func (s *Neo4jStore) MissingConstraints(ctx context.Context) ([]string, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "SHOW CONSTRAINTS YIELD name RETURN name", nil)
		if err != nil {
			return nil, err
		}
		var names []string
		for res.Next(ctx) {
			if name, ok := res.Record().Values[0].(string); ok {
				names = append(names, name)
			}
		}
		return names, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j show constraints: %w", err)
	}
	present, _ := out.([]string)
	return missingNames(ConstraintNames(), present), nil
}

func missingNames(want, have []string) []string {
	seen := make(map[string]struct{}, len(have))
	for _, n := range have {
		seen[n] = struct{}{}
	}
	var missing []string
	for _, n := range want {
		if _, ok := seen[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// EnsureSchema creates the uniqueness constraints. Statements are
// idempotent.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, q := range SchemaStatements() {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
		s.log.Debug("neo4j constraint ensured", "statement", q)
	}
	return nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
