package customs

import (
	"testing"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuoteItem(t *testing.T) {
	item, err := NewQuoteItem("item-1", "Phone", decimal.NewFromInt(500), " 8517 ")
	require.NoError(t, err)
	assert.Equal(t, "8517", item.ClassificationCode)

	_, err = NewQuoteItem("", "Phone", decimal.NewFromInt(500), "8517")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewQuoteItem("item-1", "Phone", decimal.NewFromInt(-1), "8517")
	assert.ErrorIs(t, err, valueobject.ErrInvalidAmount)

	_, err = NewQuoteItem("item-1", "Phone", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTaxCalculationContext_Validate(t *testing.T) {
	valid := TaxCalculationContext{OriginCountry: "NP", DestinationCountry: "IN"}
	assert.NoError(t, valid.Validate())

	badOrigin := TaxCalculationContext{OriginCountry: "XX1", DestinationCountry: "IN"}
	assert.ErrorIs(t, badOrigin.Validate(), valueobject.ErrInvalidCountry)

	badOverride := TaxCalculationContext{
		OriginCountry:      "NP",
		DestinationCountry: "IN",
		RegimeOverrides:    map[valueobject.CountryCode]TaxSystem{"IN": "excise"},
	}
	assert.ErrorIs(t, badOverride.Validate(), ErrInvalidRegime)

	badRounding := TaxCalculationContext{OriginCountry: "NP", DestinationCountry: "IN", RoundingMethod: "sideways"}
	assert.ErrorIs(t, badRounding.Validate(), shared.ErrInvalidInput)
}

func TestTaxCalculationContext_RegimeOverride(t *testing.T) {
	ctx := TaxCalculationContext{
		OriginCountry:      "NP",
		DestinationCountry: "IN",
		RegimeOverrides:    map[valueobject.CountryCode]TaxSystem{"IN": TaxSystemVAT},
	}
	system, ok := ctx.RegimeOverride()
	assert.True(t, ok)
	assert.Equal(t, TaxSystemVAT, system)

	ctx.DestinationCountry = "US"
	_, ok = ctx.RegimeOverride()
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	results := []ItemTaxResult{
		{
			ItemID:                     "a",
			ValuationMethod:            ValuationMinimum,
			MinimumValuationConversion: &exchange.ConversionResult{CacheSource: exchange.CacheSourceLive},
			TotalTaxes:                 decimal.RequireFromString("438.9"),
		},
		{
			ItemID:                     "b",
			ValuationMethod:            ValuationHigherOfBoth,
			MinimumValuationConversion: &exchange.ConversionResult{CacheSource: exchange.CacheSourceFallback},
			TotalTaxes:                 decimal.NewFromInt(16000),
		},
		{
			ItemID:          "c",
			ValuationMethod: ValuationOriginalPrice,
			TotalTaxes:      decimal.Zero,
		},
	}

	summary := Summarize(results)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 1, summary.ItemsWithMinimumValuation)
	assert.Equal(t, 2, summary.CurrencyConversionsApplied)
	assert.Equal(t, 1, summary.FallbackConversions)
	assert.Equal(t, "16438.9", summary.TotalTaxes.String())

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.TotalItems)
	assert.True(t, empty.TotalTaxes.IsZero())
}

func TestQuote_UnitID(t *testing.T) {
	assert.Equal(t, "Q-1", Quote{ID: "Q-1"}.UnitID())
}
