package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a KV backed by a redis server, for sharing state between
// machines.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to the server at url and checks it answers.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Get returns the value for key, or nil if the key is missing.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores key without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
