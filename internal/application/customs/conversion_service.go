package customs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultRateCacheTTL bounds how long a looked-up rate is reused
const DefaultRateCacheTTL = 10 * time.Minute

// DefaultLookupTimeout bounds a single rate source call
const DefaultLookupTimeout = 5 * time.Second

// ConversionServiceOption configures a CurrencyConversionService
type ConversionServiceOption func(*CurrencyConversionService)

// WithRateCache sets the rate cache. Without one every conversion asks the source.
func WithRateCache(cache exchange.RateCache) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		s.cache = cache
	}
}

// WithCacheTTL sets the cache TTL for looked-up rates
func WithCacheTTL(ttl time.Duration) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithFallbackRates replaces the fallback table
func WithFallbackRates(rates exchange.FallbackRates) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		if len(rates) > 0 {
			s.fallback = rates
		}
	}
}

// WithDefaultRounding sets the rounding used when a call does not choose one
func WithDefaultRounding(method valueobject.RoundingMethod) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		if method.IsValid() {
			s.rounding = method
		}
	}
}

// WithLookupTimeout bounds every rate source call. Zero disables the bound.
func WithLookupTimeout(timeout time.Duration) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		s.lookupTimeout = timeout
	}
}

// WithConversionLogger sets the logger
func WithConversionLogger(l *zap.Logger) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConversionClock overrides time.Now
func WithConversionClock(clock func() time.Time) ConversionServiceOption {
	return func(s *CurrencyConversionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ConvertOption adjusts a single conversion
type ConvertOption func(*convertOptions)

type convertOptions struct {
	rounding valueobject.RoundingMethod
}

// WithRounding selects the rounding method for one call. Invalid methods are ignored.
func WithRounding(method valueobject.RoundingMethod) ConvertOption {
	return func(o *convertOptions) {
		if method.IsValid() {
			o.rounding = method
		}
	}
}

// CurrencyConversionService converts USD statutory minimums into origin currencies.
//
// A rate lookup failure never fails a conversion: the static fallback table is used
// and the result is tagged CacheSourceFallback with a warning.
type CurrencyConversionService struct {
	source        exchange.ExchangeRateSource
	cache         exchange.RateCache
	fallback      exchange.FallbackRates
	rounding      valueobject.RoundingMethod
	cacheTTL      time.Duration
	lookupTimeout time.Duration
	logger        *zap.Logger
	metrics       *telemetry.CustomsMetrics
	now           func() time.Time
	lookups       singleflight.Group
}

// NewCurrencyConversionService creates a conversion service over a rate source
func NewCurrencyConversionService(source exchange.ExchangeRateSource, opts ...ConversionServiceOption) *CurrencyConversionService {
	s := &CurrencyConversionService{
		source:        source,
		fallback:      exchange.DefaultFallbackRates(),
		rounding:      valueobject.DefaultRoundingMethod,
		cacheTTL:      DefaultRateCacheTTL,
		lookupTimeout: DefaultLookupTimeout,
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("conversion")
	return s
}

// SetMetrics sets the metrics collector
func (s *CurrencyConversionService) SetMetrics(m *telemetry.CustomsMetrics) {
	s.metrics = m
}

// resolvedRate is the rate chosen for a country plus its provenance
type resolvedRate struct {
	rate    exchange.ExchangeRate
	source  exchange.CacheSource
	warning string
}

// ConvertMinimumValuation converts a USD amount into the origin country's currency.
// Only invalid input returns an error; rate lookup failures degrade to the fallback table.
func (s *CurrencyConversionService) ConvertMinimumValuation(
	ctx context.Context,
	usdAmount decimal.Decimal,
	originCountry valueobject.CountryCode,
	opts ...ConvertOption,
) (exchange.ConversionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CurrencyConversionService", "ConvertMinimumValuation",
		telemetry.WithAttribute(telemetry.SpanAttrCountry, string(originCountry)),
	)
	defer span.End()

	country, err := s.validate(usdAmount, originCountry)
	if err != nil {
		telemetry.RecordError(span, err)
		return exchange.ConversionResult{}, err
	}

	resolved := s.resolveRate(ctx, country)
	result := s.apply(usdAmount, resolved, s.options(opts))
	s.metrics.RecordConversion(ctx, string(result.CacheSource))

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCurrency, string(result.OriginCurrency),
		telemetry.SpanAttrCacheSource, string(result.CacheSource),
	)
	telemetry.SetOK(span)
	return result, nil
}

// ConvertMultiple converts every request, preserving input order.
// Each distinct origin country is looked up at most once per call, and a failed
// lookup only sends that country's conversions to the fallback table.
// Invalid requests fail the whole call before any lookup.
func (s *CurrencyConversionService) ConvertMultiple(
	ctx context.Context,
	requests []exchange.ConversionRequest,
	opts ...ConvertOption,
) ([]exchange.ConversionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CurrencyConversionService", "ConvertMultiple",
		telemetry.WithAttribute(telemetry.SpanAttrItemCount, len(requests)),
	)
	defer span.End()

	countries := make([]valueobject.CountryCode, len(requests))
	distinct := make(map[valueobject.CountryCode]struct{})
	for i, req := range requests {
		country, err := s.validate(req.USDAmount, req.OriginCountry)
		if err != nil {
			err = fmt.Errorf("conversion %d (item %s): %w", i, req.ItemID, err)
			telemetry.RecordError(span, err)
			return nil, err
		}
		countries[i] = country
		distinct[country] = struct{}{}
	}

	order := make([]valueobject.CountryCode, 0, len(distinct))
	for country := range distinct {
		order = append(order, country)
	}
	resolved := make([]resolvedRate, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, country := range order {
		g.Go(func() error {
			resolved[i] = s.resolveRate(gctx, country)
			return nil
		})
	}
	_ = g.Wait()

	rates := make(map[valueobject.CountryCode]resolvedRate, len(order))
	for i, country := range order {
		rates[country] = resolved[i]
	}

	options := s.options(opts)
	results := make([]exchange.ConversionResult, len(requests))
	for i, req := range requests {
		results[i] = s.apply(req.USDAmount, rates[countries[i]], options)
		s.metrics.RecordConversion(ctx, string(results[i].CacheSource))
	}

	telemetry.SetAttributes(span, "distinct_countries", len(order))
	telemetry.SetOK(span)
	return results, nil
}

// ValidateConversion recomputes a conversion and compares it with an expected figure.
// The percentage error is |converted - expected| / expected * 100.
func (s *CurrencyConversionService) ValidateConversion(
	ctx context.Context,
	usdAmount decimal.Decimal,
	originCountry valueobject.CountryCode,
	expectedAmount decimal.Decimal,
	tolerancePct decimal.Decimal,
) (exchange.ConversionValidation, error) {
	if tolerancePct.IsNegative() {
		return exchange.ConversionValidation{}, shared.ErrInvalidInput.WithMessage("tolerance cannot be negative")
	}
	if expectedAmount.IsNegative() {
		return exchange.ConversionValidation{}, valueobject.ErrInvalidAmount.WithMessage("expected amount cannot be negative")
	}

	conversion, err := s.ConvertMinimumValuation(ctx, usdAmount, originCountry)
	if err != nil {
		return exchange.ConversionValidation{}, err
	}

	diff := conversion.ConvertedAmount.Sub(expectedAmount).Abs()
	var pctError decimal.Decimal
	switch {
	case expectedAmount.IsZero() && diff.IsZero():
		pctError = decimal.Zero
	case expectedAmount.IsZero():
		pctError = decimal.NewFromInt(100)
	default:
		pctError = diff.Div(expectedAmount).Mul(decimal.NewFromInt(100)).Round(4)
	}

	validation := exchange.ConversionValidation{
		IsValid:          pctError.LessThanOrEqual(tolerancePct),
		PercentageError:  pctError,
		ExpectedAmount:   expectedAmount,
		TolerancePercent: tolerancePct,
		Conversion:       conversion,
	}
	if !validation.IsValid {
		logger.Ctx(ctx, s.logger).Warn("Conversion outside tolerance",
			zap.String("country", string(conversion.OriginCountry)),
			zap.String("converted", conversion.ConvertedAmount.String()),
			zap.String("expected", expectedAmount.String()),
			zap.String("percentage_error", pctError.String()),
			zap.String("cache_source", string(conversion.CacheSource)),
		)
	}
	return validation, nil
}

// ClearCache drops every cached rate
func (s *CurrencyConversionService) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear rate cache: %w", err)
	}
	s.logger.Info("Exchange rate cache cleared")
	return nil
}

// RefreshRate fetches the live rate for a country and rewrites the cache entry.
// Unlike conversions it never degrades to the fallback table.
func (s *CurrencyConversionService) RefreshRate(ctx context.Context, country valueobject.CountryCode) (exchange.ExchangeRate, error) {
	country, err := valueobject.ParseCountryCode(string(country))
	if err != nil {
		return exchange.ExchangeRate{}, err
	}
	resolved, err := s.sharedLookup(ctx, country)
	if err != nil {
		return exchange.ExchangeRate{}, err
	}
	return resolved.rate, nil
}

// CacheStats returns the rate cache counters, or zero stats without a cache
func (s *CurrencyConversionService) CacheStats() exchange.CacheStats {
	if s.cache == nil {
		return exchange.CacheStats{}
	}
	return s.cache.Stats()
}

func (s *CurrencyConversionService) validate(usdAmount decimal.Decimal, country valueobject.CountryCode) (valueobject.CountryCode, error) {
	if usdAmount.IsNegative() {
		return "", valueobject.ErrInvalidAmount.WithMessage(
			fmt.Sprintf("usd amount %s cannot be negative", usdAmount.String()))
	}
	return valueobject.ParseCountryCode(string(country))
}

func (s *CurrencyConversionService) options(opts []ConvertOption) convertOptions {
	o := convertOptions{rounding: s.rounding}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *CurrencyConversionService) apply(usdAmount decimal.Decimal, r resolvedRate, o convertOptions) exchange.ConversionResult {
	converted := o.rounding.Apply(r.rate.Convert(usdAmount), r.rate.Currency.MinorUnits())
	return exchange.ConversionResult{
		USDAmount:           usdAmount,
		OriginCountry:       r.rate.OriginCountry,
		OriginCurrency:      r.rate.Currency,
		ConvertedAmount:     converted,
		ExchangeRate:        r.rate.RateFromUSD,
		ConversionTimestamp: s.now(),
		RoundingMethod:      o.rounding,
		CacheSource:         r.source,
		Warning:             r.warning,
	}
}

// resolveRate returns the cached rate, then the live rate, then the fallback rate.
// Concurrent misses for one country share a single source call.
func (s *CurrencyConversionService) resolveRate(ctx context.Context, country valueobject.CountryCode) resolvedRate {
	if rate, ok := s.cached(ctx, country); ok {
		return resolvedRate{rate: rate, source: exchange.CacheSourceCached}
	}

	resolved, err := s.sharedLookup(ctx, country)
	if err == nil {
		return resolved
	}
	return s.fallbackRate(ctx, country, err)
}

// sharedLookup joins the in-flight source call for a country or starts one.
// The call is detached from the caller that started it and bounded by lookupTimeout,
// so a cancelled caller only abandons its own wait.
func (s *CurrencyConversionService) sharedLookup(ctx context.Context, country valueobject.CountryCode) (resolvedRate, error) {
	if err := ctx.Err(); err != nil {
		return resolvedRate{}, err
	}
	detached := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(string(country), func() (any, error) {
		return s.lookup(detached, country)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return resolvedRate{}, res.Err
		}
		return res.Val.(resolvedRate), nil
	case <-ctx.Done():
		return resolvedRate{}, ctx.Err()
	}
}

func (s *CurrencyConversionService) cached(ctx context.Context, country valueobject.CountryCode) (exchange.ExchangeRate, bool) {
	if s.cache == nil {
		return exchange.ExchangeRate{}, false
	}
	rate, err := s.cache.Get(ctx, country)
	if err != nil {
		logger.Ctx(ctx, s.logger).Warn("Rate cache read failed", zap.String("country", string(country)), zap.Error(err))
		s.metrics.RecordRateCacheLookup(ctx, string(country), false)
		return exchange.ExchangeRate{}, false
	}
	s.metrics.RecordRateCacheLookup(ctx, string(country), rate != nil)
	if rate == nil {
		return exchange.ExchangeRate{}, false
	}
	return *rate, true
}

func (s *CurrencyConversionService) lookup(ctx context.Context, country valueobject.CountryCode) (resolvedRate, error) {
	if s.source == nil {
		return resolvedRate{}, exchange.ErrExchangeRateUnavailable.WithMessage("no exchange rate source configured")
	}
	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}

	quote, err := s.source.GetRate(ctx, country)
	if err != nil {
		return resolvedRate{}, err
	}
	if !quote.Rate.RateFromUSD.IsPositive() || quote.Rate.Currency == "" {
		return resolvedRate{}, exchange.ErrInvalidExchangeRate.WithMessage(
			fmt.Sprintf("source returned unusable rate %s %s for %s", quote.Rate.RateFromUSD.String(), quote.Rate.Currency, country))
	}
	quote.Rate.OriginCountry = country
	source := quote.Source
	if source != exchange.CacheSourceCached {
		source = exchange.CacheSourceLive
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, quote.Rate, s.cacheTTL); err != nil {
			logger.Ctx(ctx, s.logger).Warn("Rate cache write failed", zap.String("country", string(country)), zap.Error(err))
		}
	}
	return resolvedRate{rate: quote.Rate, source: source}, nil
}

func (s *CurrencyConversionService) fallbackRate(ctx context.Context, country valueobject.CountryCode, cause error) resolvedRate {
	currency, err := valueobject.CurrencyForCountry(country)
	if err != nil {
		currency = valueobject.USD
	}
	rate, known := s.fallback.Lookup(country, currency, s.now())

	var warning string
	if known {
		warning = fmt.Sprintf("exchange rate for %s unavailable; using fallback rate %s %s per USD",
			country, rate.RateFromUSD.String(), currency)
	} else {
		warning = fmt.Sprintf("exchange rate for %s unavailable and no fallback rate for %s; converted 1:1 with USD",
			country, currency)
	}

	level := zap.WarnLevel
	if errors.Is(cause, context.Canceled) {
		level = zap.DebugLevel
	}
	logger.Ctx(ctx, s.logger).Log(level, "Using fallback exchange rate",
		zap.String("country", string(country)),
		zap.String("currency", string(currency)),
		zap.String("rate", rate.RateFromUSD.String()),
		zap.Bool("table_entry", known),
		zap.Error(cause),
	)
	return resolvedRate{rate: rate, source: exchange.CacheSourceFallback, warning: warning}
}
