package customs

import (
	"context"
	"sync"
	"time"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Sources
// =============================================================================

// MockExchangeRateSource is a mock implementation of exchange.ExchangeRateSource
type MockExchangeRateSource struct {
	mock.Mock
}

func (m *MockExchangeRateSource) GetRate(ctx context.Context, country valueobject.CountryCode) (exchange.RateQuote, error) {
	args := m.Called(ctx, country)
	return args.Get(0).(exchange.RateQuote), args.Error(1)
}

// MockTaxClassificationSource is a mock implementation of customs.TaxClassificationSource
type MockTaxClassificationSource struct {
	mock.Mock
}

func (m *MockTaxClassificationSource) GetClassification(ctx context.Context, code string) (*customs.TaxClassification, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customs.TaxClassification), args.Error(1)
}

// MockDestinationTaxRegimeSource is a mock implementation of customs.DestinationTaxRegimeSource
type MockDestinationTaxRegimeSource struct {
	mock.Mock
}

func (m *MockDestinationTaxRegimeSource) GetRegime(ctx context.Context, country valueobject.CountryCode) (customs.TaxSystem, error) {
	args := m.Called(ctx, country)
	return args.Get(0).(customs.TaxSystem), args.Error(1)
}

// stubRateCache is a map-backed exchange.RateCache ignoring TTLs
type stubRateCache struct {
	mu     sync.Mutex
	rates  map[valueobject.CountryCode]exchange.ExchangeRate
	hits   int64
	misses int64
}

func newStubRateCache() *stubRateCache {
	return &stubRateCache{rates: make(map[valueobject.CountryCode]exchange.ExchangeRate)}
}

func (c *stubRateCache) Get(_ context.Context, country valueobject.CountryCode) (*exchange.ExchangeRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rate, ok := c.rates[country]
	if !ok {
		c.misses++
		return nil, nil
	}
	c.hits++
	return &rate, nil
}

func (c *stubRateCache) Set(_ context.Context, rate exchange.ExchangeRate, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[rate.OriginCountry] = rate
	return nil
}

func (c *stubRateCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = make(map[valueobject.CountryCode]exchange.ExchangeRate)
	return nil
}

func (c *stubRateCache) Stats() exchange.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return exchange.CacheStats{Hits: c.hits, Misses: c.misses, Entries: int64(len(c.rates))}
}

// =============================================================================
// Fixtures
// =============================================================================

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func liveQuote(country valueobject.CountryCode, currency valueobject.Currency, rate string) exchange.RateQuote {
	return exchange.RateQuote{
		Rate: exchange.ExchangeRate{
			OriginCountry: country,
			Currency:      currency,
			RateFromUSD:   dec(rate),
			RetrievedAt:   fixedNow,
		},
		Source: exchange.CacheSourceLive,
	}
}
