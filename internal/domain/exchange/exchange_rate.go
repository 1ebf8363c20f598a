package exchange

import (
	"fmt"
	"time"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ErrExchangeRateUnavailable is returned by a source that cannot produce a rate for a country
var ErrExchangeRateUnavailable = shared.NewDomainError("EXCHANGE_RATE_UNAVAILABLE", "Exchange rate unavailable")

// ErrInvalidExchangeRate is returned for zero or negative rates
var ErrInvalidExchangeRate = shared.NewDomainError("INVALID_EXCHANGE_RATE", "Exchange rate must be positive")

// CacheSource tags where a rate used in a conversion came from
type CacheSource string

const (
	// CacheSourceCached means the rate was served from the rate cache
	CacheSourceCached CacheSource = "cached"
	// CacheSourceLive means the rate was fetched from the rate source for this call
	CacheSourceLive CacheSource = "live"
	// CacheSourceFallback means the static fallback table was used
	CacheSourceFallback CacheSource = "fallback"
)

// IsValid checks if the cache source is one of the known values
func (s CacheSource) IsValid() bool {
	switch s {
	case CacheSourceCached, CacheSourceLive, CacheSourceFallback:
		return true
	default:
		return false
	}
}

// String returns the string representation of the cache source
func (s CacheSource) String() string {
	return string(s)
}

// ExchangeRate expresses "1 USD = RateFromUSD units of Currency" for a country
type ExchangeRate struct {
	OriginCountry valueobject.CountryCode `json:"origin_country"`
	Currency      valueobject.Currency    `json:"currency_code"`
	RateFromUSD   decimal.Decimal         `json:"rate_from_usd"`
	RetrievedAt   time.Time               `json:"retrieved_at"`
}

// NewExchangeRate creates a rate, rejecting non-positive values
func NewExchangeRate(country valueobject.CountryCode, currency valueobject.Currency, rate decimal.Decimal, retrievedAt time.Time) (ExchangeRate, error) {
	if !rate.IsPositive() {
		return ExchangeRate{}, ErrInvalidExchangeRate.WithMessage(
			fmt.Sprintf("rate %s for %s must be greater than zero", rate.String(), currency))
	}
	if currency == "" {
		return ExchangeRate{}, valueobject.ErrInvalidCurrency.WithMessage("currency cannot be empty")
	}
	return ExchangeRate{
		OriginCountry: country,
		Currency:      currency,
		RateFromUSD:   rate,
		RetrievedAt:   retrievedAt,
	}, nil
}

// Convert multiplies a USD amount by the rate without rounding
func (r ExchangeRate) Convert(usdAmount decimal.Decimal) decimal.Decimal {
	return usdAmount.Mul(r.RateFromUSD)
}

// RateQuote is a rate together with the provenance reported by the source
type RateQuote struct {
	Rate   ExchangeRate
	Source CacheSource
}
