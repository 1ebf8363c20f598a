package customs

import (
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// QuoteItem is one line of a quote, priced in the origin currency
type QuoteItem struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price_origin_currency"`
	ClassificationCode string          `json:"classification_code"`
}

// NewQuoteItem validates and creates a quote item
func NewQuoteItem(id, name string, price decimal.Decimal, classificationCode string) (QuoteItem, error) {
	if strings.TrimSpace(id) == "" {
		return QuoteItem{}, shared.ErrInvalidInput.WithMessage("item id cannot be empty")
	}
	if price.IsNegative() {
		return QuoteItem{}, valueobject.ErrInvalidAmount.WithMessage(
			fmt.Sprintf("item %s price %s cannot be negative", id, price.String()))
	}
	if strings.TrimSpace(classificationCode) == "" {
		return QuoteItem{}, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("item %s has no classification code", id))
	}
	return QuoteItem{
		ID:                 id,
		Name:               name,
		Price:              price,
		ClassificationCode: strings.TrimSpace(classificationCode),
	}, nil
}

// TaxCalculationContext is shared by every item of one quote
type TaxCalculationContext struct {
	OriginCountry      valueobject.CountryCode
	DestinationCountry valueobject.CountryCode
	// RegimeOverrides take precedence over the destination regime source
	RegimeOverrides map[valueobject.CountryCode]TaxSystem
	// RoundingMethod is optional; empty means the conversion service default
	RoundingMethod valueobject.RoundingMethod
}

// Validate checks the context countries
func (c TaxCalculationContext) Validate() error {
	if _, err := valueobject.ParseCountryCode(string(c.OriginCountry)); err != nil {
		return fmt.Errorf("origin country: %w", err)
	}
	if _, err := valueobject.ParseCountryCode(string(c.DestinationCountry)); err != nil {
		return fmt.Errorf("destination country: %w", err)
	}
	for country, system := range c.RegimeOverrides {
		if !system.IsValid() {
			return ErrInvalidRegime.WithMessage(fmt.Sprintf("override for %s has unknown tax system %q", country, system))
		}
	}
	if c.RoundingMethod != "" && !c.RoundingMethod.IsValid() {
		return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown rounding method %q", c.RoundingMethod))
	}
	return nil
}

// RegimeOverride returns the override for the destination, if any
func (c TaxCalculationContext) RegimeOverride() (TaxSystem, bool) {
	system, ok := c.RegimeOverrides[c.DestinationCountry]
	return system, ok
}

// Quote is one batch work unit: a set of items sharing a calculation context
type Quote struct {
	ID      string                `json:"id"`
	Items   []QuoteItem           `json:"items"`
	Context TaxCalculationContext `json:"-"`
}

// UnitID identifies the quote within a batch run
func (q Quote) UnitID() string {
	return q.ID
}
