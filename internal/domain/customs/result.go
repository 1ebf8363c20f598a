package customs

import (
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ValuationMethod records how the taxable amount of an item was chosen
type ValuationMethod string

const (
	// ValuationOriginalPrice means no minimum valuation applied to the item
	ValuationOriginalPrice ValuationMethod = "original_price"
	// ValuationMinimum means the converted statutory floor replaced the price
	ValuationMinimum ValuationMethod = "minimum_valuation"
	// ValuationHigherOfBoth means the price met or exceeded the floor
	ValuationHigherOfBoth ValuationMethod = "higher_of_both"
)

// CustomsCalculation is the customs duty breakdown of one item
type CustomsCalculation struct {
	BasisAmount decimal.Decimal `json:"basis_amount"`
	RatePct     decimal.Decimal `json:"rate_pct"`
	Amount      decimal.Decimal `json:"amount_origin_currency"`
}

// ItemTaxResult is the outcome of one item's calculation.
// A recalculation produces a new value.
type ItemTaxResult struct {
	ItemID                     string                     `json:"item_id"`
	ClassificationCode         string                     `json:"classification_code"`
	Currency                   valueobject.Currency       `json:"currency"`
	ValuationMethod            ValuationMethod            `json:"valuation_method"`
	TaxableAmount              decimal.Decimal            `json:"taxable_amount_origin_currency"`
	OriginalPrice              decimal.Decimal            `json:"original_price_origin_currency"`
	MinimumValuationConversion *exchange.ConversionResult `json:"minimum_valuation_conversion,omitempty"`
	Customs                    CustomsCalculation         `json:"customs_calculation"`
	TaxSystem                  TaxSystem                  `json:"tax_system"`
	DestinationTaxRatePct      decimal.Decimal            `json:"destination_tax_rate_pct"`
	SalesTaxAmount             decimal.Decimal            `json:"sales_tax_amount"`
	DestinationTaxAmount       decimal.Decimal            `json:"destination_tax_amount"`
	TotalTaxes                 decimal.Decimal            `json:"total_taxes"`
	Warnings                   []string                   `json:"warnings"`
	CalculatedAt               time.Time                  `json:"calculated_at"`
}

// MinimumValuationApplied reports whether the floor replaced the actual price
func (r ItemTaxResult) MinimumValuationApplied() bool {
	return r.ValuationMethod == ValuationMinimum
}

// QuoteTaxSummary aggregates a list of item results
type QuoteTaxSummary struct {
	TotalItems                 int             `json:"total_items"`
	ItemsWithMinimumValuation  int             `json:"items_with_minimum_valuation"`
	CurrencyConversionsApplied int             `json:"currency_conversions_applied"`
	FallbackConversions        int             `json:"fallback_conversions"`
	TotalTaxes                 decimal.Decimal `json:"total_taxes"`
}

// Summarize aggregates item results without any I/O
func Summarize(results []ItemTaxResult) QuoteTaxSummary {
	summary := QuoteTaxSummary{
		TotalItems: len(results),
		TotalTaxes: decimal.Zero,
	}
	for _, r := range results {
		if r.MinimumValuationApplied() {
			summary.ItemsWithMinimumValuation++
		}
		if r.MinimumValuationConversion != nil {
			summary.CurrencyConversionsApplied++
			if r.MinimumValuationConversion.IsFallback() {
				summary.FallbackConversions++
			}
		}
		summary.TotalTaxes = summary.TotalTaxes.Add(r.TotalTaxes)
	}
	return summary
}

// QuoteTaxResult is the outcome of processing a whole quote
type QuoteTaxResult struct {
	QuoteID   string          `json:"quote_id"`
	TaxSystem TaxSystem       `json:"tax_system"`
	Items     []ItemTaxResult `json:"items"`
	Summary   QuoteTaxSummary `json:"summary"`
	Failures  []ItemFailure   `json:"failures,omitempty"`
}
