package exchange

import (
	"time"

	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ConversionResult is the outcome of converting one USD amount into an origin currency.
// It is produced fresh for every call and never mutated afterwards.
type ConversionResult struct {
	USDAmount           decimal.Decimal            `json:"usd_amount"`
	OriginCountry       valueobject.CountryCode    `json:"origin_country"`
	OriginCurrency      valueobject.Currency       `json:"origin_currency"`
	ConvertedAmount     decimal.Decimal            `json:"converted_amount"`
	ExchangeRate        decimal.Decimal            `json:"exchange_rate"`
	ConversionTimestamp time.Time                  `json:"conversion_timestamp"`
	RoundingMethod      valueobject.RoundingMethod `json:"rounding_method"`
	CacheSource         CacheSource                `json:"cache_source"`
	// Warning is set when the conversion degraded to the fallback table
	Warning string `json:"warning,omitempty"`
}

// IsFallback reports whether the static fallback table was used
func (r ConversionResult) IsFallback() bool {
	return r.CacheSource == CacheSourceFallback
}

// ConvertedMoney returns the converted amount as Money in the origin currency
func (r ConversionResult) ConvertedMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(r.ConvertedAmount, r.OriginCurrency)
	return m
}

// ConversionRequest is one entry of a batch conversion
type ConversionRequest struct {
	USDAmount     decimal.Decimal
	OriginCountry valueobject.CountryCode
	ItemID        string
}

// ConversionValidation compares a conversion against an expected figure
type ConversionValidation struct {
	IsValid          bool             `json:"is_valid"`
	PercentageError  decimal.Decimal  `json:"percentage_error"`
	ExpectedAmount   decimal.Decimal  `json:"expected_amount"`
	TolerancePercent decimal.Decimal  `json:"tolerance_pct"`
	Conversion       ConversionResult `json:"conversion"`
}
