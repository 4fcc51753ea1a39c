package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV is the shared persisted cache tier for multi-instance
// deployments. Expiry is handled server-side through native TTLs.
type RedisKV struct {
	client *redis.Client
}

var _ KV = (*RedisKV)(nil)

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisKV{client: client}, nil
}

// Ping implements KV.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get implements KV.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return val, true, nil
}

// Set implements KV.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePrefix implements KV by scanning; SCAN keeps the server responsive
// where a KEYS sweep would not.
func (r *RedisKV) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("cache delete prefix %q: %w", prefix, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %q: %w", prefix, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache delete prefix %q: %w", prefix, err)
		}
	}
	return nil
}

// PurgeExpired implements KV; Redis expires entries itself.
func (r *RedisKV) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Close implements KV.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
