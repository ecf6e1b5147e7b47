package kvcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection knobs for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix separates this application's keys from other users of the
	// same Redis instance. Defaults to "quill:cache:".
	KeyPrefix string
	// TTL bounds how long entries live; zero means no expiry.
	TTL time.Duration
}

// Redis is a Store backed by a Redis instance so cached state survives
// process restarts and is visible across devices.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "quill:cache:"
	}

	return &Redis{rdb: rdb, prefix: prefix, ttl: cfg.TTL}, nil
}

// Close releases the underlying connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, prefix string) error {
	for _, pattern := range clearPatterns(r.prefix, prefix) {
		iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("redis clear %s: %w", prefix, err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}
	}
	return nil
}

// clearPatterns translates a dotted prefix into scan patterns with the same
// boundary as Memory.Clear: the key itself plus everything below it, never a
// sibling that merely shares the leading characters.
func clearPatterns(keyPrefix, prefix string) []string {
	if prefix == "" {
		return []string{keyPrefix + "*"}
	}
	return []string{keyPrefix + prefix, keyPrefix + prefix + ".*"}
}
