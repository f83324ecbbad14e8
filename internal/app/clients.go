package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/provenance-updater/internal/clients/errata"
	"github.com/yungbote/provenance-updater/internal/clients/koji"
	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/platform/neo4jdb"
	"github.com/yungbote/provenance-updater/internal/platform/redisdb"
)

type Clients struct {
	Neo4j  *neo4jdb.Client
	Redis  *redis.Client
	Koji   *koji.Client
	Builds koji.Resolver
	Errata errata.Lookup
}

// wireClients dials the upstream services. Neo4j is skipped when withGraph is
// false and Redis when no address is configured.
func wireClients(ctx context.Context, cfg *config.Config, withGraph bool, log *logger.Logger, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Neo4j
	if withGraph {
		nc, err := neo4jdb.New(ctx, cfg.Neo4j, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init neo4j: %w", err)
		}
		out.Neo4j = nc
	}

	// Koji
	kc, err := koji.NewClient(cfg.Koji, log, metrics)
	if err != nil {
		out.Close(ctx)
		return Clients{}, fmt.Errorf("init koji client: %w", err)
	}
	out.Koji = kc
	out.Builds = kc

	// Redis build cache
	if cfg.Redis.Addr != "" {
		rdb, err := redisdb.New(ctx, cfg.Redis, log)
		if err != nil {
			out.Close(ctx)
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.Builds = koji.NewCachingResolver(kc, rdb, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL, log)
	}

	// Errata
	ec, err := errata.New(cfg.Errata, log, metrics)
	if err != nil {
		out.Close(ctx)
		return Clients{}, fmt.Errorf("init errata client: %w", err)
	}
	out.Errata = ec

	return out, nil
}

func (c Clients) Close(ctx context.Context) {
	if c.Koji != nil {
		_ = c.Koji.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
