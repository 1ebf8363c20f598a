package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultL1TTL bounds how long an instance serves a rate without consulting Redis
const DefaultL1TTL = time.Minute

// TieredRateCache reads through a local L1 in front of a shared Redis L2.
// Writes go to both tiers; Clear is broadcast so peers drop their L1 as well.
type TieredRateCache struct {
	l1          *InMemoryRateCache
	l2          *RedisRateCache
	invalidator *RateCacheInvalidator
	l1TTL       time.Duration
	instanceID  string
	logger      *zap.Logger

	l1Hits   int64
	l2Hits   int64
	l2Misses int64
}

// TieredRateCacheOption configures a TieredRateCache
type TieredRateCacheOption func(*TieredRateCache)

// WithL1TTL sets the local tier TTL
func WithL1TTL(ttl time.Duration) TieredRateCacheOption {
	return func(c *TieredRateCache) {
		if ttl > 0 {
			c.l1TTL = ttl
		}
	}
}

// WithTieredLogger sets the logger
func WithTieredLogger(logger *zap.Logger) TieredRateCacheOption {
	return func(c *TieredRateCache) {
		c.logger = logger
	}
}

// NewTieredRateCache combines the tiers. invalidator may be nil for a single instance.
func NewTieredRateCache(l1 *InMemoryRateCache, l2 *RedisRateCache, invalidator *RateCacheInvalidator, opts ...TieredRateCacheOption) *TieredRateCache {
	c := &TieredRateCache{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		l1TTL:       DefaultL1TTL,
		instanceID:  uuid.NewString(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInvalidationSubscription listens for peer evictions until ctx ends. It blocks.
func (c *TieredRateCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.handleInvalidation)
}

func (c *TieredRateCache) handleInvalidation(msg InvalidationMessage) {
	if msg.Origin == c.instanceID {
		return
	}
	ctx := context.Background()
	switch msg.Action {
	case InvalidationEvict:
		_ = c.l1.Delete(ctx, msg.Country)
	case InvalidationClear:
		_ = c.l1.Clear(ctx)
	default:
		c.logger.Warn("Unknown rate invalidation action", zap.String("action", string(msg.Action)))
	}
}

// Get checks L1, then L2. An L2 hit repopulates L1.
func (c *TieredRateCache) Get(ctx context.Context, country valueobject.CountryCode) (*exchange.ExchangeRate, error) {
	if rate, _ := c.l1.Get(ctx, country); rate != nil {
		atomic.AddInt64(&c.l1Hits, 1)
		return rate, nil
	}

	rate, err := c.l2.Get(ctx, country)
	if err != nil {
		atomic.AddInt64(&c.l2Misses, 1)
		return nil, err
	}
	if rate == nil {
		atomic.AddInt64(&c.l2Misses, 1)
		return nil, nil
	}
	atomic.AddInt64(&c.l2Hits, 1)
	_ = c.l1.Set(ctx, *rate, c.l1TTL)
	return rate, nil
}

// Set writes L2 first, then L1 with the shorter of the two TTLs
func (c *TieredRateCache) Set(ctx context.Context, rate exchange.ExchangeRate, ttl time.Duration) error {
	if err := c.l2.Set(ctx, rate, ttl); err != nil {
		return err
	}
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	return c.l1.Set(ctx, rate, l1TTL)
}

// Clear empties both tiers and tells peers to empty their L1
func (c *TieredRateCache) Clear(ctx context.Context) error {
	_ = c.l1.Clear(ctx)
	err := c.l2.Clear(ctx)
	if c.invalidator != nil {
		pubErr := c.invalidator.Publish(ctx, InvalidationMessage{Action: InvalidationClear, Origin: c.instanceID})
		err = errors.Join(err, pubErr)
	}
	return err
}

// Stats reports a hit when either tier served the rate and a miss when neither did
func (c *TieredRateCache) Stats() exchange.CacheStats {
	return exchange.CacheStats{
		Hits:    atomic.LoadInt64(&c.l1Hits) + atomic.LoadInt64(&c.l2Hits),
		Misses:  atomic.LoadInt64(&c.l2Misses),
		Entries: c.l1.Stats().Entries,
	}
}

// Close stops the subscription and releases both tiers
func (c *TieredRateCache) Close() error {
	var errs []error
	if c.invalidator != nil {
		errs = append(errs, c.invalidator.Close())
	}
	errs = append(errs, c.l1.Close(), c.l2.Close())
	return errors.Join(errs...)
}

var _ exchange.RateCache = (*TieredRateCache)(nil)
