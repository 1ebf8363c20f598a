package customs

import (
	"fmt"
	"strings"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrClassificationNotFound is returned when no classification exists for a product code
var ErrClassificationNotFound = shared.NewDomainError("CLASSIFICATION_NOT_FOUND", "Tax classification not found")

// ErrInvalidClassification is returned for malformed classification records
var ErrInvalidClassification = shared.NewDomainError("INVALID_CLASSIFICATION", "Invalid tax classification")

// TaxRates holds the percentage rates of a classification.
// A nil value-added rate means the classification does not define it.
type TaxRates struct {
	CustomsPct  decimal.Decimal  `json:"customs_pct"`
	GSTPct      *decimal.Decimal `json:"gst_pct,omitempty"`
	VATPct      *decimal.Decimal `json:"vat_pct,omitempty"`
	SalesTaxPct *decimal.Decimal `json:"sales_tax_pct,omitempty"`
}

// RateFor returns the value-added rate the given tax system applies, or zero
func (r TaxRates) RateFor(system TaxSystem) decimal.Decimal {
	var rate *decimal.Decimal
	switch system {
	case TaxSystemGST:
		rate = r.GSTPct
	case TaxSystemVAT:
		rate = r.VATPct
	case TaxSystemSalesTax:
		rate = r.SalesTaxPct
	}
	if rate == nil {
		return decimal.Zero
	}
	return *rate
}

// TaxClassification is a product classification record (HSN-like code)
type TaxClassification struct {
	Code                       string           `json:"code"`
	Category                   string           `json:"category"`
	MinimumValuationUSD        *decimal.Decimal `json:"minimum_valuation_usd,omitempty"`
	RequiresCurrencyConversion bool             `json:"requires_currency_conversion"`
	Rates                      TaxRates         `json:"rates"`
	Confidence                 float64          `json:"classification_confidence"`
}

// NewTaxClassification validates a classification record.
// A record with requires_currency_conversion but no minimum valuation is rejected.
func NewTaxClassification(
	code, category string,
	minimumValuationUSD *decimal.Decimal,
	requiresConversion bool,
	rates TaxRates,
	confidence float64,
) (*TaxClassification, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidClassification.WithMessage("classification code cannot be empty")
	}
	if minimumValuationUSD == nil && requiresConversion {
		return nil, ErrInvalidClassification.WithMessage(
			fmt.Sprintf("classification %s requires currency conversion but has no minimum valuation", code))
	}
	if minimumValuationUSD != nil && minimumValuationUSD.IsNegative() {
		return nil, ErrInvalidClassification.WithMessage(
			fmt.Sprintf("classification %s has negative minimum valuation %s", code, minimumValuationUSD.String()))
	}
	if rates.CustomsPct.IsNegative() {
		return nil, ErrInvalidClassification.WithMessage(fmt.Sprintf("classification %s has negative customs rate", code))
	}
	for name, rate := range map[string]*decimal.Decimal{
		"gst":       rates.GSTPct,
		"vat":       rates.VATPct,
		"sales tax": rates.SalesTaxPct,
	} {
		if rate != nil && rate.IsNegative() {
			return nil, ErrInvalidClassification.WithMessage(fmt.Sprintf("classification %s has negative %s rate", code, name))
		}
	}
	if confidence < 0 || confidence > 1 {
		return nil, ErrInvalidClassification.WithMessage(
			fmt.Sprintf("classification %s confidence %.2f outside [0,1]", code, confidence))
	}

	return &TaxClassification{
		Code:                       code,
		Category:                   strings.TrimSpace(category),
		MinimumValuationUSD:        minimumValuationUSD,
		RequiresCurrencyConversion: requiresConversion,
		Rates:                      rates,
		Confidence:                 confidence,
	}, nil
}

// NeedsMinimumValuation reports whether the statutory floor must be converted and compared
func (c *TaxClassification) NeedsMinimumValuation() bool {
	return c.MinimumValuationUSD != nil && c.RequiresCurrencyConversion
}
