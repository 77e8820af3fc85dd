package failures

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "drip:send_failures:"

// RedisTracker shares counts across worker processes. Keys expire after TTL
// so an account that stops sending does not stay flagged forever.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (t *RedisTracker) Fail(ctx context.Context, accountID string) (int, error) {
	key := keyPrefix + accountID
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (t *RedisTracker) Reset(ctx context.Context, accountID string) error {
	return t.client.Del(ctx, keyPrefix+accountID).Err()
}

var _ Tracker = (*RedisTracker)(nil)
