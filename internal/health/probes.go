package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresProbe pings the database pool.
func PostgresProbe(db Pinger) Probe {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}

// RedisProbe pings the Redis server.
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
