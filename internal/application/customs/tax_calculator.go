package customs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinimumValuationConverter converts a USD statutory minimum into an origin currency
type MinimumValuationConverter interface {
	ConvertMinimumValuation(ctx context.Context, usdAmount decimal.Decimal, originCountry valueobject.CountryCode, opts ...ConvertOption) (exchange.ConversionResult, error)
}

// CalculatorOption configures a PerItemTaxCalculator
type CalculatorOption func(*PerItemTaxCalculator)

// WithCalculatorLogger sets the logger
func WithCalculatorLogger(l *zap.Logger) CalculatorOption {
	return func(c *PerItemTaxCalculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSourceTimeout bounds each classification and regime lookup. Zero disables the bound.
func WithSourceTimeout(timeout time.Duration) CalculatorOption {
	return func(c *PerItemTaxCalculator) {
		c.sourceTimeout = timeout
	}
}

// WithCalculatorClock overrides time.Now
func WithCalculatorClock(clock func() time.Time) CalculatorOption {
	return func(c *PerItemTaxCalculator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// PerItemTaxCalculator decides each item's taxable value and computes its tax breakdown
type PerItemTaxCalculator struct {
	classifications customs.TaxClassificationSource
	regimes         customs.DestinationTaxRegimeSource
	converter       MinimumValuationConverter
	sourceTimeout   time.Duration
	logger          *zap.Logger
	metrics         *telemetry.CustomsMetrics
	now             func() time.Time
}

// NewPerItemTaxCalculator creates a calculator
func NewPerItemTaxCalculator(
	classifications customs.TaxClassificationSource,
	regimes customs.DestinationTaxRegimeSource,
	converter MinimumValuationConverter,
	opts ...CalculatorOption,
) *PerItemTaxCalculator {
	c := &PerItemTaxCalculator{
		classifications: classifications,
		regimes:         regimes,
		converter:       converter,
		sourceTimeout:   DefaultLookupTimeout,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("calculator")
	return c
}

// SetMetrics sets the metrics collector
func (c *PerItemTaxCalculator) SetMetrics(m *telemetry.CustomsMetrics) {
	c.metrics = m
}

// CalculateItemTax computes one item's valuation and taxes.
// An unknown classification code fails with ErrClassificationNotFound.
func (c *PerItemTaxCalculator) CalculateItemTax(ctx context.Context, item customs.QuoteItem, tctx customs.TaxCalculationContext) (customs.ItemTaxResult, error) {
	if err := tctx.Validate(); err != nil {
		return customs.ItemTaxResult{}, err
	}
	system, err := c.ResolveRegime(ctx, tctx)
	if err != nil {
		return customs.ItemTaxResult{}, err
	}
	return c.calculate(ctx, item, tctx, system)
}

// CalculateMultipleItemTaxes calculates every item independently, in input order.
// The regime is resolved once. Item failures are returned together as customs.ItemErrors
// after all items were attempted, alongside the successful results.
func (c *PerItemTaxCalculator) CalculateMultipleItemTaxes(ctx context.Context, items []customs.QuoteItem, tctx customs.TaxCalculationContext) ([]customs.ItemTaxResult, error) {
	_, results, err := c.calculateAll(ctx, items, tctx)
	return results, err
}

// Summarize aggregates item results
func (c *PerItemTaxCalculator) Summarize(results []customs.ItemTaxResult) customs.QuoteTaxSummary {
	return customs.Summarize(results)
}

// ResolveRegime returns the destination's tax system. A context override wins over the source.
func (c *PerItemTaxCalculator) ResolveRegime(ctx context.Context, tctx customs.TaxCalculationContext) (customs.TaxSystem, error) {
	if system, ok := tctx.RegimeOverride(); ok {
		return system, nil
	}
	if c.regimes == nil {
		return customs.TaxSystemNone, nil
	}

	lookupCtx, cancel := c.bounded(ctx)
	defer cancel()
	system, err := c.regimes.GetRegime(lookupCtx, tctx.DestinationCountry)
	if err != nil {
		return "", fmt.Errorf("resolve tax regime for %s: %w", tctx.DestinationCountry, err)
	}
	if !system.IsValid() {
		return "", customs.ErrInvalidRegime.WithMessage(
			fmt.Sprintf("regime source returned %q for %s", system, tctx.DestinationCountry))
	}
	return system, nil
}

func (c *PerItemTaxCalculator) calculateAll(ctx context.Context, items []customs.QuoteItem, tctx customs.TaxCalculationContext) (customs.TaxSystem, []customs.ItemTaxResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "PerItemTaxCalculator", "CalculateMultipleItemTaxes",
		telemetry.WithAttribute(telemetry.SpanAttrItemCount, len(items)),
		telemetry.WithAttribute(telemetry.SpanAttrDestination, string(tctx.DestinationCountry)),
	)
	defer span.End()

	if err := tctx.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return "", nil, err
	}
	system, err := c.ResolveRegime(ctx, tctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", nil, err
	}

	results := make([]customs.ItemTaxResult, 0, len(items))
	var failures customs.ItemErrors
	for _, item := range items {
		result, err := c.calculate(ctx, item, tctx, system)
		if err != nil {
			failures = append(failures, customs.ItemFailure{ItemID: item.ID, Err: err})
			continue
		}
		results = append(results, result)
	}

	telemetry.SetAttributes(span, "failed_items", len(failures))
	if len(failures) > 0 {
		telemetry.RecordError(span, failures)
		return system, results, failures
	}
	telemetry.SetOK(span)
	return system, results, nil
}

func (c *PerItemTaxCalculator) calculate(ctx context.Context, item customs.QuoteItem, tctx customs.TaxCalculationContext, system customs.TaxSystem) (customs.ItemTaxResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "PerItemTaxCalculator", "CalculateItemTax",
		telemetry.WithAttribute(telemetry.SpanAttrItemID, item.ID),
		telemetry.WithAttribute(telemetry.SpanAttrClassificationCode, item.ClassificationCode),
	)
	defer span.End()

	result, err := c.valuate(ctx, item, tctx, system)
	if err != nil {
		c.metrics.RecordItemFailure(ctx)
		telemetry.RecordError(span, err)
		logger.Ctx(ctx, c.logger).Debug("Item tax calculation failed",
			zap.String("item_id", item.ID),
			zap.String("classification_code", item.ClassificationCode),
			zap.Error(err),
		)
		return customs.ItemTaxResult{}, err
	}

	c.metrics.RecordItemCalculated(ctx, string(result.ValuationMethod), string(result.TaxSystem))
	telemetry.SetAttributes(span, telemetry.SpanAttrValuationMethod, string(result.ValuationMethod))
	telemetry.SetOK(span)
	return result, nil
}

func (c *PerItemTaxCalculator) valuate(ctx context.Context, item customs.QuoteItem, tctx customs.TaxCalculationContext, system customs.TaxSystem) (customs.ItemTaxResult, error) {
	if item.Price.IsNegative() {
		return customs.ItemTaxResult{}, valueobject.ErrInvalidAmount.WithMessage(
			fmt.Sprintf("price %s cannot be negative", item.Price.String()))
	}
	if strings.TrimSpace(item.ClassificationCode) == "" {
		return customs.ItemTaxResult{}, shared.ErrInvalidInput.WithMessage("classification code is empty")
	}

	classification, err := c.classification(ctx, item.ClassificationCode)
	if err != nil {
		return customs.ItemTaxResult{}, err
	}
	currency, err := valueobject.CurrencyForCountry(tctx.OriginCountry)
	if err != nil {
		return customs.ItemTaxResult{}, err
	}

	result := customs.ItemTaxResult{
		ItemID:             item.ID,
		ClassificationCode: classification.Code,
		Currency:           currency,
		ValuationMethod:    customs.ValuationOriginalPrice,
		TaxableAmount:      item.Price,
		OriginalPrice:      item.Price,
		TaxSystem:          system,
		Warnings:           []string{},
		CalculatedAt:       c.now(),
	}

	if classification.NeedsMinimumValuation() {
		var opts []ConvertOption
		if tctx.RoundingMethod != "" {
			opts = append(opts, WithRounding(tctx.RoundingMethod))
		}
		conversion, err := c.converter.ConvertMinimumValuation(ctx, *classification.MinimumValuationUSD, tctx.OriginCountry, opts...)
		if err != nil {
			return customs.ItemTaxResult{}, fmt.Errorf("convert minimum valuation: %w", err)
		}
		result.MinimumValuationConversion = &conversion
		result.Currency = conversion.OriginCurrency
		if conversion.Warning != "" {
			result.Warnings = append(result.Warnings, conversion.Warning)
		}

		// ties keep the declared price
		if item.Price.LessThan(conversion.ConvertedAmount) {
			result.ValuationMethod = customs.ValuationMinimum
			result.TaxableAmount = conversion.ConvertedAmount
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"minimum valuation applied: declared price %s %s is below the statutory minimum of USD %s (%s %s at rate %s)",
				item.Price.String(), conversion.OriginCurrency,
				conversion.USDAmount.String(),
				conversion.ConvertedAmount.String(), conversion.OriginCurrency,
				conversion.ExchangeRate.String(),
			))
		} else {
			result.ValuationMethod = customs.ValuationHigherOfBoth
		}
	}

	taxable, err := valueobject.NewMoney(result.TaxableAmount, result.Currency)
	if err != nil {
		return customs.ItemTaxResult{}, err
	}
	customsPct := classification.Rates.CustomsPct
	duty := taxable.CalculatePercentage(customsPct).RoundTo(valueobject.RoundingNearest)
	result.Customs = customs.CustomsCalculation{
		BasisAmount: taxable.Amount(),
		RatePct:     customsPct,
		Amount:      duty.Amount(),
	}

	valueAddedPct := classification.Rates.RateFor(system)
	result.DestinationTaxRatePct = valueAddedPct
	valueAddedBase, err := taxable.Add(duty)
	if err != nil {
		return customs.ItemTaxResult{}, err
	}
	valueAdded := valueAddedBase.CalculatePercentage(valueAddedPct).RoundTo(valueobject.RoundingNearest)

	result.SalesTaxAmount = decimal.Zero
	result.DestinationTaxAmount = decimal.Zero
	switch {
	case system == customs.TaxSystemSalesTax:
		result.SalesTaxAmount = valueAdded.Amount()
	case system.IsDestinationTax():
		result.DestinationTaxAmount = valueAdded.Amount()
	}
	result.TotalTaxes = result.Customs.Amount.Add(result.SalesTaxAmount).Add(result.DestinationTaxAmount)

	if customsPct.IsZero() && valueAddedPct.IsZero() {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"no taxes calculated: classification %s is zero-rated under %s", classification.Code, system))
	}
	return result, nil
}

func (c *PerItemTaxCalculator) classification(ctx context.Context, code string) (*customs.TaxClassification, error) {
	if c.classifications == nil {
		return nil, customs.ErrClassificationNotFound.WithMessage("no classification source configured")
	}
	lookupCtx, cancel := c.bounded(ctx)
	defer cancel()

	classification, err := c.classifications.GetClassification(lookupCtx, code)
	if err != nil {
		return nil, fmt.Errorf("classification %s: %w", code, err)
	}
	if classification == nil {
		return nil, customs.ErrClassificationNotFound.WithMessage(fmt.Sprintf("no classification for code %s", code))
	}
	return classification, nil
}

func (c *PerItemTaxCalculator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.sourceTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.sourceTimeout)
}
