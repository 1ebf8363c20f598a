package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanBatchSize = 100
	// DefaultKeyPrefix namespaces rate keys in a shared Redis
	DefaultKeyPrefix = "customs:fx:"
	defaultPingTimeout = 5 * time.Second
)

// RedisRateCache stores exchange rates in Redis so every engine instance shares them.
// Expiry is delegated to Redis key TTLs.
type RedisRateCache struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	logger     *zap.Logger

	hits   int64
	misses int64
}

// RedisRateCacheOption configures a RedisRateCache
type RedisRateCacheOption func(*RedisRateCache)

// WithKeyPrefix sets the key namespace
func WithKeyPrefix(prefix string) RedisRateCacheOption {
	return func(c *RedisRateCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(logger *zap.Logger) RedisRateCacheOption {
	return func(c *RedisRateCache) {
		c.logger = logger
	}
}

// NewRedisClient connects to Redis and verifies the connection with a PING
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewRedisRateCache connects to Redis and owns the resulting client
func NewRedisRateCache(ctx context.Context, cfg config.RedisConfig, opts ...RedisRateCacheOption) (*RedisRateCache, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := NewRedisRateCacheWithClient(client, opts...)
	c.ownsClient = true
	return c, nil
}

// NewRedisRateCacheWithClient wraps an existing client. The caller keeps ownership of it.
func NewRedisRateCacheWithClient(client *redis.Client, opts ...RedisRateCacheOption) *RedisRateCache {
	c := &RedisRateCache{
		client: client,
		prefix: DefaultKeyPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisRateCache) key(country valueobject.CountryCode) string {
	return c.prefix + string(country)
}

// Get returns the cached rate, or nil on a miss.
// A corrupt entry is deleted and reported as an error.
func (c *RedisRateCache) Get(ctx context.Context, country valueobject.CountryCode) (*exchange.ExchangeRate, error) {
	key := c.key(country)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&c.misses, 1)
		c.logger.Debug("Redis rate cache miss", zap.String("country", string(country)))
		return nil, nil
	}
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, fmt.Errorf("failed to get rate for %s from Redis: %w", country, err)
	}

	var rate exchange.ExchangeRate
	if err := json.Unmarshal(data, &rate); err != nil {
		atomic.AddInt64(&c.misses, 1)
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to decode cached rate for %s: %w", country, err)
	}

	atomic.AddInt64(&c.hits, 1)
	return &rate, nil
}

// Set writes a rate with the given TTL
func (c *RedisRateCache) Set(ctx context.Context, rate exchange.ExchangeRate, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("failed to encode rate for %s: %w", rate.OriginCountry, err)
	}
	if err := c.client.Set(ctx, c.key(rate.OriginCountry), data, ttl).Err(); err != nil {
		c.logger.Error("Failed to cache exchange rate in Redis",
			zap.String("country", string(rate.OriginCountry)),
			zap.Error(err))
		return fmt.Errorf("failed to set rate for %s in Redis: %w", rate.OriginCountry, err)
	}
	return nil
}

// Delete evicts one country
func (c *RedisRateCache) Delete(ctx context.Context, country valueobject.CountryCode) error {
	if err := c.client.Del(ctx, c.key(country)).Err(); err != nil {
		return fmt.Errorf("failed to delete rate for %s from Redis: %w", country, err)
	}
	return nil
}

// Clear deletes every key under the prefix, scanning in batches
func (c *RedisRateCache) Clear(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan rate keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete rate keys: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("Cleared Redis rate cache", zap.String("prefix", c.prefix), zap.Int("deleted", deleted))
	return nil
}

// Count returns the number of rate keys currently stored
func (c *RedisRateCache) Count(ctx context.Context) (int64, error) {
	var cursor uint64
	var n int64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", defaultScanBatchSize).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan rate keys: %w", err)
		}
		n += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

// Stats returns the hit and miss counters of this process.
// Entries is not tracked here; use Count.
func (c *RedisRateCache) Stats() exchange.CacheStats {
	return exchange.CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}

// Client returns the underlying client
func (c *RedisRateCache) Client() *redis.Client {
	return c.client
}

// Close closes the client if the cache created it
func (c *RedisRateCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var _ exchange.RateCache = (*RedisRateCache)(nil)
