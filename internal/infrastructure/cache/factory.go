package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Backend names accepted in exchange_rate.cache_backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// RateCache is an exchange.RateCache that holds resources
type RateCache interface {
	exchange.RateCache
	io.Closer
}

// RateCacheFactory builds the configured rate cache
type RateCacheFactory struct {
	rates                 config.ExchangeRateConfig
	redis                 config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RateCacheFactoryOption configures the factory
type RateCacheFactoryOption func(*RateCacheFactory)

// WithLogger sets the logger handed to every cache
func WithLogger(logger *zap.Logger) RateCacheFactoryOption {
	return func(f *RateCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the in-memory cache.
// Default is true.
func WithInMemoryFallback(allow bool) RateCacheFactoryOption {
	return func(f *RateCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRateCacheFactory creates a factory
func NewRateCacheFactory(rates config.ExchangeRateConfig, redis config.RedisConfig, opts ...RateCacheFactoryOption) *RateCacheFactory {
	f := &RateCacheFactory{
		rates:                 rates,
		redis:                 redis,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the backend named in the config.
// For the tiered backend the invalidation subscription runs until ctx ends.
func (f *RateCacheFactory) Create(ctx context.Context) (RateCache, error) {
	switch f.rates.CacheBackend {
	case "", BackendMemory:
		f.logger.Info("Using in-memory exchange rate cache")
		return f.CreateInMemory(), nil
	case BackendRedis, BackendTiered:
		c, err := f.createShared(ctx, f.rates.CacheBackend == BackendTiered)
		if err == nil {
			return c, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis rate cache required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory exchange rate cache. "+
			"Rates will not be shared between instances.",
			zap.Error(err))
		return f.CreateInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown rate cache backend %q", f.rates.CacheBackend)
	}
}

// CreateInMemory builds a process-local cache
func (f *RateCacheFactory) CreateInMemory() *InMemoryRateCache {
	return NewInMemoryRateCache(WithInMemoryLogger(f.logger.Named("rate_cache")))
}

func (f *RateCacheFactory) createShared(ctx context.Context, tiered bool) (RateCache, error) {
	l2, err := NewRedisRateCache(ctx, f.redis,
		WithKeyPrefix(f.rates.CachePrefix),
		WithRedisLogger(f.logger.Named("rate_cache.redis")),
	)
	if err != nil {
		return nil, err
	}
	if !tiered {
		f.logger.Info("Using Redis exchange rate cache", zap.String("addr", f.redis.Addr()))
		return l2, nil
	}

	invalidator := NewRateCacheInvalidator(l2.Client(),
		WithInvalidatorChannel(f.rates.CachePrefix+"invalidate"),
		WithInvalidatorLogger(f.logger.Named("rate_cache.invalidation")),
	)
	tieredCache := NewTieredRateCache(f.CreateInMemory(), l2, invalidator,
		WithTieredLogger(f.logger.Named("rate_cache.tiered")),
	)
	go func() {
		if err := tieredCache.StartInvalidationSubscription(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("Rate invalidation subscription ended", zap.Error(err))
		}
	}()
	f.logger.Info("Using tiered exchange rate cache", zap.String("addr", f.redis.Addr()))
	return tieredCache, nil
}
