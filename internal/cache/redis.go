package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hintquest/apiserver/config"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

// RedisClient wraps a go-redis client.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient constructs a Redis client from config and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	addr := strings.ReplaceAll(strings.TrimSpace(cfg.Addr), " ", "")
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return value, err
}

func (r *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Client exposes the underlying go-redis client.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
