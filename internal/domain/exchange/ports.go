package exchange

import (
	"context"
	"time"

	"github.com/erp/customs/internal/domain/shared/valueobject"
)

// ExchangeRateSource returns the USD rate for a country's currency.
// Implementations return an error wrapping ErrExchangeRateUnavailable when no rate can be produced.
type ExchangeRateSource interface {
	GetRate(ctx context.Context, country valueobject.CountryCode) (RateQuote, error)
}

// RateCache stores exchange rates keyed by origin country.
//
// Implementations must be safe for concurrent use. A write is a plain upsert;
// concurrent writers for one country store equivalent values within a TTL window.
type RateCache interface {
	// Get returns the cached rate for a country.
	// Returns nil, nil on a cache miss.
	Get(ctx context.Context, country valueobject.CountryCode) (*ExchangeRate, error)

	// Set stores a rate. A zero ttl means the implementation default.
	Set(ctx context.Context, rate ExchangeRate, ttl time.Duration) error

	// Clear removes every cached rate.
	Clear(ctx context.Context) error

	// Stats returns hit/miss counters since creation or the last Clear
	Stats() CacheStats
}

// CacheStats holds rate cache statistics
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int64 `json:"entries"`
}

// HitRatio returns hits / (hits + misses), or 0 when nothing was looked up
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
