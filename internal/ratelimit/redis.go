package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter shared by every server instance pointing at
// the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a limiter from a redis:// URL and verifies connectivity.
func NewRedis(ctx context.Context, url string, limit int, window time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFromClient(client, limit, window), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: "fmaa:rate_limit:", limit: limit, window: window}
}

// incrWindow counts one event and starts the window on the first one. The
// PTTL check also repairs a key left without expiry.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key
	count, err := incrWindow.Run(ctx, r.client, []string{k}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("count %s: %w", k, err)
	}
	return count <= int64(r.limit), nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
