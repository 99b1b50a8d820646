// Package lock serialises work across processes with short Redis leases.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lease could not be taken within the wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            redis.UniversalClient
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock retries before giving up. Zero waits
	// until the context is done.
	MaxWait time.Duration
}

func (l Locker) key(name string) string {
	if l.Prefix == "" {
		return "lock:" + name
	}
	return l.Prefix + name
}

// WithLock executes fn while holding the lease for name. The lease is released
// when fn returns, whatever its result, and expires on its own after ttl if the
// process dies.
func (l Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	key := l.key(name)
	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(waitCtx, key, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return ErrNotAcquired
			}
			return err
		}
		if ok {
			defer l.release(key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotAcquired
		case <-timer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
