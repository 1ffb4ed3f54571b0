// Package lock provides an advisory mutual-exclusion lock keyed by an
// arbitrary string, used to serialize provisioning runs for one public id.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires a named lock. The returned release func is safe to call
// more than once and never blocks longer than a single round trip.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop grants every acquisition. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete
// release.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrLockNotAcquired, key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{name}, token).Err()
	}, nil
}
