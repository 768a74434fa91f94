package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is the optional shared cache tier, selected when a Redis address is
// configured. It lets several harvester processes share hot payloads.
type Redis struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis wraps an existing client. Callers own connectivity checks.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis builds the client for an address and verifies it responds.
func DialRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedis(client), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	r.client.Set(ctx, key, value, ttl)
}

func (r *Redis) Invalidate(ctx context.Context, key string) {
	r.client.Del(ctx, key)
}

func (r *Redis) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

func (r *Redis) Close() {
	r.client.Close()
}
