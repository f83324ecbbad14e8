// Package koji resolves build references against a Koji hub.
package koji

import (
	"context"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// Resolver turns a build reference into its canonical record. A missing
// build is a not_found error; transport failures are upstream_unavailable.
type Resolver interface {
	Resolve(ctx context.Context, ref domain.BuildLookup) (*domain.BuildRecord, error)
	// ModuleComponents lists the builds tagged into a module's content tag.
	ModuleComponents(ctx context.Context, tag string) ([]domain.BuildRecord, error)
}
