package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	// DefaultRateTTL is used when Set is called with a zero TTL
	DefaultRateTTL = 10 * time.Minute
)

// InMemoryRateCache keeps exchange rates in process memory.
// It is the default cache and the L1 tier of TieredRateCache.
type InMemoryRateCache struct {
	rates   sync.Map // map[valueobject.CountryCode]*rateEntry
	logger  *zap.Logger
	now     func() time.Time
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type rateEntry struct {
	rate      exchange.ExchangeRate
	expiresAt time.Time
}

func (e *rateEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// InMemoryRateCacheOption configures an InMemoryRateCache
type InMemoryRateCacheOption func(*InMemoryRateCache)

// WithInMemoryLogger sets the logger
func WithInMemoryLogger(logger *zap.Logger) InMemoryRateCacheOption {
	return func(c *InMemoryRateCache) {
		c.logger = logger
	}
}

// WithInMemoryClock overrides time.Now for expiry checks
func WithInMemoryClock(now func() time.Time) InMemoryRateCacheOption {
	return func(c *InMemoryRateCache) {
		c.now = now
	}
}

// NewInMemoryRateCache creates the cache and starts its expiry sweeper. Call Close to stop it.
func NewInMemoryRateCache(opts ...InMemoryRateCacheOption) *InMemoryRateCache {
	c := &InMemoryRateCache{
		logger: zap.NewNop(),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()
	return c
}

// Get returns the cached rate, or nil on a miss or an expired entry
func (c *InMemoryRateCache) Get(_ context.Context, country valueobject.CountryCode) (*exchange.ExchangeRate, error) {
	if value, ok := c.rates.Load(country); ok {
		entry := value.(*rateEntry)
		if !entry.isExpired(c.now()) {
			atomic.AddInt64(&c.hits, 1)
			rate := entry.rate
			return &rate, nil
		}
		c.rates.CompareAndDelete(country, value)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("Rate cache miss", zap.String("country", string(country)))
	return nil, nil
}

// Set stores a rate under its origin country
func (c *InMemoryRateCache) Set(_ context.Context, rate exchange.ExchangeRate, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	c.rates.Store(rate.OriginCountry, &rateEntry{rate: rate, expiresAt: c.now().Add(ttl)})
	c.logger.Debug("Cached exchange rate",
		zap.String("country", string(rate.OriginCountry)),
		zap.String("currency", string(rate.Currency)),
		zap.Duration("ttl", ttl))
	return nil
}

// Delete evicts one country
func (c *InMemoryRateCache) Delete(_ context.Context, country valueobject.CountryCode) error {
	c.rates.Delete(country)
	return nil
}

// Clear evicts every rate
func (c *InMemoryRateCache) Clear(_ context.Context) error {
	c.rates.Range(func(key, _ any) bool {
		c.rates.Delete(key)
		return true
	})
	c.logger.Info("Cleared in-memory rate cache")
	return nil
}

// Stats returns hit, miss and live entry counts
func (c *InMemoryRateCache) Stats() exchange.CacheStats {
	now := c.now()
	var entries int64
	c.rates.Range(func(_, value any) bool {
		if !value.(*rateEntry).isExpired(now) {
			entries++
		}
		return true
	})
	return exchange.CacheStats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: entries,
	}
}

// Size returns the number of unexpired rates
func (c *InMemoryRateCache) Size() int {
	return int(c.Stats().Entries)
}

// Close stops the expiry sweeper. It is safe to call more than once.
func (c *InMemoryRateCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

func (c *InMemoryRateCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

func (c *InMemoryRateCache) doCleanup() {
	now := c.now()
	removed := 0
	c.rates.Range(func(key, value any) bool {
		if value.(*rateEntry).isExpired(now) {
			c.rates.CompareAndDelete(key, value)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Removed expired exchange rates", zap.Int("removed", removed))
	}
}

var _ exchange.RateCache = (*InMemoryRateCache)(nil)
