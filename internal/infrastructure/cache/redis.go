package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisRateCache shares cached rates between service instances. Values are
// JSON encoded RateResponse documents with a Redis TTL.
type RedisRateCache struct {
	client redis.UniversalClient
	logger *logging.Logger
}

// NewRedisRateCache creates a cache on an existing client. The caller keeps
// ownership of the client.
func NewRedisRateCache(client redis.UniversalClient, logger *logging.Logger) *RedisRateCache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RedisRateCache{client: client, logger: logger.WithComponent("rate-cache")}
}

// Get retrieves a rate; redis.Nil is a miss
func (c *RedisRateCache) Get(ctx context.Context, key string) (*domain.RateResponse, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rate from cache: %w", err)
	}

	var rate domain.RateResponse
	if err := json.Unmarshal(data, &rate); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Dropping corrupted cache entry", "key", key)
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}
	return &rate, true, nil
}

// Set stores a rate with the given TTL
func (c *RedisRateCache) Set(ctx context.Context, key string, rate domain.RateResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("failed to marshal rate: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set rate in cache: %w", err)
	}
	return nil
}

// Forget deletes a cached rate
func (c *RedisRateCache) Forget(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete rate from cache: %w", err)
	}
	return nil
}

// HealthCheck pings Redis
func (c *RedisRateCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ domain.RateCache = (*RedisRateCache)(nil)
