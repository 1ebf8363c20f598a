package valueobject

import (
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/shared"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// ErrInvalidCountry is returned for codes that are not ISO 3166-1 alpha-2 countries
var ErrInvalidCountry = shared.NewDomainError("INVALID_COUNTRY", "Invalid country code")

// CountryCode is an upper-case ISO 3166-1 alpha-2 country code
type CountryCode string

// ParseCountryCode validates and normalizes a two-letter country code
func ParseCountryCode(s string) (CountryCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 2 {
		return "", ErrInvalidCountry.WithMessage(fmt.Sprintf("country code %q must have two letters", s))
	}
	region, err := language.ParseRegion(code)
	if err != nil || !region.IsCountry() {
		return "", ErrInvalidCountry.WithMessage(fmt.Sprintf("unknown country code %q", s))
	}
	return CountryCode(region.String()), nil
}

// MustParseCountryCode is like ParseCountryCode but panics on error.
// Intended for constants and tests.
func MustParseCountryCode(s string) CountryCode {
	c, err := ParseCountryCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the code
func (c CountryCode) String() string {
	return string(c)
}

// CurrencyForCountry returns the currency currently tendered in the country
func CurrencyForCountry(c CountryCode) (Currency, error) {
	region, err := language.ParseRegion(string(c))
	if err != nil {
		return "", ErrInvalidCountry.WithMessage(fmt.Sprintf("unknown country code %q", c))
	}
	unit, ok := currency.FromRegion(region)
	if !ok {
		return "", ErrInvalidCurrency.WithMessage(fmt.Sprintf("no currency known for country %s", c))
	}
	return Currency(unit.String()), nil
}
