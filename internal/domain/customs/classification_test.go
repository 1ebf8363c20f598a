package customs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNewTaxClassification(t *testing.T) {
	rates := TaxRates{CustomsPct: decimal.NewFromInt(20), VATPct: dec("13")}

	tests := []struct {
		name       string
		code       string
		minimum    *decimal.Decimal
		requires   bool
		rates      TaxRates
		confidence float64
		wantErr    bool
	}{
		{name: "with minimum valuation", code: "8517", minimum: dec("10"), requires: true, rates: rates, confidence: 0.9},
		{name: "minimum present but conversion not required", code: "8517", minimum: dec("10"), rates: rates, confidence: 1},
		{name: "no minimum", code: "4901", rates: TaxRates{}, confidence: 0.5},
		{name: "empty code", code: "  ", rates: rates, wantErr: true},
		{name: "conversion required without minimum", code: "6109", requires: true, rates: rates, wantErr: true},
		{name: "negative minimum", code: "6109", minimum: dec("-1"), requires: true, rates: rates, wantErr: true},
		{name: "negative customs", code: "6109", rates: TaxRates{CustomsPct: decimal.NewFromInt(-5)}, wantErr: true},
		{name: "negative gst", code: "6109", rates: TaxRates{GSTPct: dec("-18")}, wantErr: true},
		{name: "confidence above one", code: "6109", rates: rates, confidence: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewTaxClassification(tt.code, "electronics", tt.minimum, tt.requires, tt.rates, tt.confidence)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidClassification)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.minimum != nil && tt.requires, c.NeedsMinimumValuation())
		})
	}
}

func TestTaxRates_RateFor(t *testing.T) {
	rates := TaxRates{
		CustomsPct:  decimal.NewFromInt(10),
		GSTPct:      dec("18"),
		VATPct:      dec("13"),
		SalesTaxPct: nil,
	}

	assert.Equal(t, "18", rates.RateFor(TaxSystemGST).String())
	assert.Equal(t, "13", rates.RateFor(TaxSystemVAT).String())
	assert.True(t, rates.RateFor(TaxSystemSalesTax).IsZero())
	assert.True(t, rates.RateFor(TaxSystemNone).IsZero())
}

func TestParseTaxSystem(t *testing.T) {
	tests := []struct {
		input   string
		want    TaxSystem
		wantErr bool
	}{
		{input: "GST", want: TaxSystemGST},
		{input: "vat", want: TaxSystemVAT},
		{input: "sales-tax", want: TaxSystemSalesTax},
		{input: "SalesTax", want: TaxSystemSalesTax},
		{input: "", want: TaxSystemNone},
		{input: "none", want: TaxSystemNone},
		{input: "excise", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTaxSystem(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRegime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, AllTaxSystems(), 4)
}

func TestItemErrors(t *testing.T) {
	notFound := ItemFailure{ItemID: "a", Err: ErrClassificationNotFound.WithMessage("no classification for 9999")}
	transient := ItemFailure{ItemID: "b", Err: fmt.Errorf("lookup classification: %w", errors.New("connection reset"))}

	errs := ItemErrors{notFound, transient}
	assert.ErrorIs(t, errs, ErrClassificationNotFound)
	assert.Contains(t, errs.Error(), "2 items failed")
	assert.Contains(t, errs.Error(), "item a")
	assert.False(t, errs.AllPermanent())

	only := ItemErrors{notFound, {ItemID: "c", Err: shared.ErrInvalidInput}}
	assert.True(t, only.AllPermanent())
	assert.Equal(t, "item a: no classification for 9999", ItemErrors{notFound}.Error())

	var failure ItemFailure
	require.True(t, errors.As(error(errs), &failure))
	assert.Equal(t, "a", failure.ItemID)
}
