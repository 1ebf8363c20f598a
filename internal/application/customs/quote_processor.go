package customs

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// QuoteResultHandler receives the final outcome of a quote
type QuoteResultHandler func(ctx context.Context, result customs.QuoteTaxResult)

// QuoteProcessorOption configures a QuoteProcessor
type QuoteProcessorOption func(*QuoteProcessor)

// WithResultHandler registers a handler for final quote outcomes.
// It is not called for attempts that will be retried.
func WithResultHandler(h QuoteResultHandler) QuoteProcessorOption {
	return func(p *QuoteProcessor) {
		p.onResult = h
	}
}

// WithProcessorLogger sets the logger
func WithProcessorLogger(l *zap.Logger) QuoteProcessorOption {
	return func(p *QuoteProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// QuoteProcessor is the per-quote batch step: resolve the regime once,
// calculate every item, summarize, and classify failures for the driver.
type QuoteProcessor struct {
	calculator *PerItemTaxCalculator
	logger     *zap.Logger
	onResult   QuoteResultHandler
}

// NewQuoteProcessor creates a quote processor
func NewQuoteProcessor(calculator *PerItemTaxCalculator, opts ...QuoteProcessorOption) *QuoteProcessor {
	p := &QuoteProcessor{
		calculator: calculator,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("quote")
	return p
}

// ProcessQuote calculates every item of the quote.
// Item failures come back as customs.ItemErrors next to the partial result.
func (p *QuoteProcessor) ProcessQuote(ctx context.Context, quote customs.Quote) (customs.QuoteTaxResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "QuoteProcessor", "ProcessQuote",
		telemetry.WithAttribute(telemetry.SpanAttrQuoteID, quote.ID),
		telemetry.WithAttribute(telemetry.SpanAttrItemCount, len(quote.Items)),
	)
	defer span.End()

	out := customs.QuoteTaxResult{QuoteID: quote.ID}
	if strings.TrimSpace(quote.ID) == "" {
		err := shared.ErrInvalidInput.WithMessage("quote id cannot be empty")
		telemetry.RecordError(span, err)
		return out, err
	}

	system, results, err := p.calculator.calculateAll(ctx, quote.Items, quote.Context)
	out.TaxSystem = system
	out.Items = results
	out.Summary = customs.Summarize(results)

	var itemErrs customs.ItemErrors
	if errors.As(err, &itemErrs) {
		out.Failures = itemErrs
	}

	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}
	if p.onResult != nil && (err == nil || permanent(err)) {
		p.onResult(ctx, out)
	}

	logger.Ctx(ctx, p.logger).Debug("Quote processed",
		zap.String("quote_id", quote.ID),
		zap.String("tax_system", string(system)),
		zap.Int("items", len(quote.Items)),
		zap.Int("calculated", len(results)),
		zap.Int("failed", len(out.Failures)),
		zap.String("total_taxes", out.Summary.TotalTaxes.String()),
	)
	return out, err
}

// Process implements batch.Processor for quotes.
// Failures caused only by bad input are marked permanent so the driver does not retry them.
func (p *QuoteProcessor) Process(ctx context.Context, quote customs.Quote) (batch.UnitReport, error) {
	result, err := p.ProcessQuote(ctx, quote)
	report := batch.UnitReport{
		ItemsProcessed:  len(quote.Items),
		ItemsSuccessful: len(result.Items),
	}
	if err == nil {
		return report, nil
	}
	if permanent(err) {
		return report, batch.Permanent(err)
	}
	return report, err
}

func permanent(err error) bool {
	var itemErrs customs.ItemErrors
	if errors.As(err, &itemErrs) {
		return itemErrs.AllPermanent()
	}
	return customs.IsPermanentItemError(err)
}
