package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window limiter shared by every API instance through Redis.
type RedisLimiter struct {
	l *limiter.Limiter
}

// NewRedisLimiter allows max requests per window and key.
func NewRedisLimiter(client redis.UniversalClient, prefix string, window time.Duration, max int64) (*RedisLimiter, error) {
	if max <= 0 || window <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid rate %d per %s", max, window)
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return &RedisLimiter{l: limiter.New(store, limiter.Rate{Period: window, Limit: max})}, nil
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := r.l.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
