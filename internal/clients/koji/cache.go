package koji

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// CachingResolver serves deleted, failed and canceled builds from Redis.
// Builds that can still change, complete ones included, are always resolved
// upstream. Cache failures fall back
// to the wrapped resolver.
type CachingResolver struct {
	next   Resolver
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

var _ Resolver = (*CachingResolver)(nil)

func NewCachingResolver(next Resolver, rdb *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *CachingResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachingResolver{next: next, rdb: rdb, prefix: prefix, ttl: ttl, log: log.With("component", "KojiCache")}
}

func (c *CachingResolver) Resolve(ctx context.Context, ref domain.BuildLookup) (*domain.BuildRecord, error) {
	if ref.Inline != nil {
		return c.next.Resolve(ctx, ref)
	}
	if ref.TaskID != 0 {
		if id, ok := c.cachedTask(ctx, ref.TaskID); ok {
			ref = domain.LookupByID(id)
		}
	}
	key := c.buildKey(ref)
	if key != "" {
		if r, ok := c.cachedBuild(ctx, key); ok {
			return r, nil
		}
	}

	r, err := c.next.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ref.TaskID != 0 {
		c.set(ctx, c.taskKey(ref.TaskID), strconv.FormatInt(r.ID, 10))
	}
	if r.Terminal() {
		if payload, err := json.Marshal(r); err == nil {
			c.set(ctx, c.buildKey(domain.LookupByID(r.ID)), payload)
			c.set(ctx, c.buildKey(domain.LookupByNVR(r.NVR())), payload)
		}
	}
	return r, nil
}

// ModuleComponents is not cached: tag contents change over time.
func (c *CachingResolver) ModuleComponents(ctx context.Context, tag string) ([]domain.BuildRecord, error) {
	return c.next.ModuleComponents(ctx, tag)
}

func (c *CachingResolver) cachedBuild(ctx context.Context, key string) (*domain.BuildRecord, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("build cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var r domain.BuildRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		c.log.Warn("build cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &r, true
}

func (c *CachingResolver) cachedTask(ctx context.Context, taskID int64) (int64, bool) {
	id, err := c.rdb.Get(ctx, c.taskKey(taskID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("task cache read failed", "task_id", taskID, "error", err)
		}
		return 0, false
	}
	return id, true
}

func (c *CachingResolver) set(ctx context.Context, key string, value any) {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Warn("build cache write failed", "key", key, "error", err)
	}
}

func (c *CachingResolver) buildKey(ref domain.BuildLookup) string {
	switch {
	case ref.ID != 0:
		return fmt.Sprintf("%skoji:build:id:%d", c.prefix, ref.ID)
	case ref.NVR != "":
		return c.prefix + "koji:build:nvr:" + ref.NVR
	default:
		return ""
	}
}

func (c *CachingResolver) taskKey(taskID int64) string {
	return fmt.Sprintf("%skoji:task:%d", c.prefix, taskID)
}
