package exchange

import (
	"time"

	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FallbackRates is a static USD rate table keyed by currency code.
// It is used only when the live source cannot answer.
type FallbackRates map[valueobject.Currency]decimal.Decimal

// DefaultFallbackRates returns the built-in table.
// Values are approximate and only meant to keep conversions in the right order of magnitude;
// operators pin current figures with customs.fallback_rates.
func DefaultFallbackRates() FallbackRates {
	return FallbackRates{
		valueobject.USD: decimal.NewFromInt(1),
		valueobject.NPR: decimal.NewFromInt(133),
		valueobject.INR: decimal.NewFromInt(83),
		valueobject.EUR: decimal.RequireFromString("0.92"),
		valueobject.GBP: decimal.RequireFromString("0.79"),
		valueobject.JPY: decimal.NewFromInt(150),
		valueobject.CNY: decimal.RequireFromString("7.2"),
		"BDT":           decimal.NewFromInt(110),
		"PKR":           decimal.NewFromInt(280),
		"LKR":           decimal.NewFromInt(300),
		"BTN":           decimal.NewFromInt(83),
		"AFN":           decimal.NewFromInt(70),
		"MVR":           decimal.RequireFromString("15.4"),
		"MMK":           decimal.NewFromInt(2100),
		"KRW":           decimal.NewFromInt(1380),
		"IDR":           decimal.NewFromInt(16300),
		"VND":           decimal.NewFromInt(25400),
		"THB":           decimal.NewFromInt(35),
		"PHP":           decimal.NewFromInt(57),
		"MYR":           decimal.RequireFromString("4.5"),
		"SGD":           decimal.RequireFromString("1.34"),
		"HKD":           decimal.RequireFromString("7.8"),
		"TWD":           decimal.NewFromInt(31),
		"AED":           decimal.RequireFromString("3.67"),
		"SAR":           decimal.RequireFromString("3.75"),
		"ILS":           decimal.RequireFromString("3.7"),
		"TRY":           decimal.NewFromInt(34),
		"EGP":           decimal.NewFromInt(48),
		"KES":           decimal.NewFromInt(129),
		"NGN":           decimal.NewFromInt(1500),
		"ZAR":           decimal.NewFromInt(18),
		"CHF":           decimal.RequireFromString("0.88"),
		"SEK":           decimal.RequireFromString("10.5"),
		"NOK":           decimal.RequireFromString("10.8"),
		"DKK":           decimal.RequireFromString("6.9"),
		"PLN":           decimal.RequireFromString("3.9"),
		"CZK":           decimal.NewFromInt(23),
		"HUF":           decimal.NewFromInt(360),
		"RUB":           decimal.NewFromInt(90),
		"BRL":           decimal.RequireFromString("5.5"),
		"MXN":           decimal.NewFromInt(18),
		"ARS":           decimal.NewFromInt(1000),
		"CLP":           decimal.NewFromInt(950),
		"COP":           decimal.NewFromInt(4000),
		"PEN":           decimal.RequireFromString("3.75"),
		"AUD":           decimal.RequireFromString("1.52"),
		"NZD":           decimal.RequireFromString("1.65"),
		"CAD":           decimal.RequireFromString("1.36"),
	}
}

// Merge returns a copy of the table with overrides applied.
// Non-positive overrides are ignored.
func (f FallbackRates) Merge(overrides map[valueobject.Currency]decimal.Decimal) FallbackRates {
	out := make(FallbackRates, len(f)+len(overrides))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range overrides {
		if v.IsPositive() {
			out[k] = v
		}
	}
	return out
}

// Lookup returns the fallback rate for the country's currency.
// Currencies missing from the table are treated as 1:1 with USD; ok reports whether the table had an entry.
func (f FallbackRates) Lookup(country valueobject.CountryCode, currency valueobject.Currency, now time.Time) (rate ExchangeRate, ok bool) {
	value, ok := f[currency]
	if !ok || !value.IsPositive() {
		value = decimal.NewFromInt(1)
		ok = false
	}
	return ExchangeRate{
		OriginCountry: country,
		Currency:      currency,
		RateFromUSD:   value,
		RetrievedAt:   now,
	}, ok
}
