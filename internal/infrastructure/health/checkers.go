package health

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/offline-cache/internal/core/ports"
	infraDB "github.com/avatarctic/offline-cache/internal/infrastructure/db"
)

// dbHealthChecker wraps the database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string                    { return "database" }
func (d *dbHealthChecker) Check(ctx context.Context) error { return d.db.DB.PingContext(ctx) }

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client redis.UniversalClient }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Pinger is anything that can probe its remote end.
type Pinger interface {
	Ping(ctx context.Context) error
}

type upstreamHealthChecker struct{ upstream Pinger }

func (u *upstreamHealthChecker) Name() string                    { return "upstream" }
func (u *upstreamHealthChecker) Check(ctx context.Context) error { return u.upstream.Ping(ctx) }

// NewDBHealthChecker creates a health checker for the database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.UniversalClient) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewUpstreamHealthChecker reports whether the origin behind the cache answers.
func NewUpstreamHealthChecker(upstream Pinger) ports.HealthChecker {
	return &upstreamHealthChecker{upstream: upstream}
}
