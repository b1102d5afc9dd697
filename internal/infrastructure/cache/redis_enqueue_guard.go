package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

const defaultGuardPrefix = "connector:enqueue:"

// RedisEnqueueGuard implements EnqueueGuard using Redis.
// Claims are shared by every connector instance pointed at the same Redis.
type RedisEnqueueGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisEnqueueGuard connects to Redis and creates a guard
func NewRedisEnqueueGuard(cfg RedisConfig) (*RedisEnqueueGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisEnqueueGuard{
		client:    client,
		keyPrefix: defaultGuardPrefix,
	}, nil
}

// NewRedisEnqueueGuardWithClient creates a guard with an existing Redis client
func NewRedisEnqueueGuardWithClient(client *redis.Client, keyPrefix string) *RedisEnqueueGuard {
	if keyPrefix == "" {
		keyPrefix = defaultGuardPrefix
	}
	return &RedisEnqueueGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim sets the key with SETNX; it returns false while an earlier claim is alive
func (g *RedisEnqueueGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim enqueue key: %w", err)
	}
	return ok, nil
}

// Release deletes the claim
func (g *RedisEnqueueGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release enqueue key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (g *RedisEnqueueGuard) Close() error {
	return g.client.Close()
}

// Ping checks the Redis connection
func (g *RedisEnqueueGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

var _ integration.EnqueueGuard = (*RedisEnqueueGuard)(nil)
