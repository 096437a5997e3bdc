package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hintquest/apiserver/config"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend defines the key/value operations used by the app.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Cache wraps a backend with a stable API.
type Cache struct {
	backend Backend
}

// New constructs a Cache wrapper for the provided backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// NewFromConfig connects to Redis when an address is configured and falls
// back to an in-process cache otherwise.
func NewFromConfig(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return New(NewMemoryClient()), nil
	}
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client), nil
}

// Get returns the cached value or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.backend.Get(ctx, key)
}

// Set stores value under key. A zero ttl keeps the value until it is replaced.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.backend.Set(ctx, key, value, ttl)
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// Close closes the underlying backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
