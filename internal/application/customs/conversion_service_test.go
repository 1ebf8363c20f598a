package customs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestConversionService(t *testing.T, source exchange.ExchangeRateSource, opts ...ConversionServiceOption) *CurrencyConversionService {
	t.Helper()
	opts = append([]ConversionServiceOption{
		WithConversionLogger(zaptest.NewLogger(t)),
		WithConversionClock(fixedClock),
	}, opts...)
	return NewCurrencyConversionService(source, opts...)
}

func TestConvertMinimumValuation_LiveRate(t *testing.T) {
	source := new(MockExchangeRateSource)
	source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
		Return(liveQuote("NP", valueobject.NPR, "133"), nil).Once()
	svc := newTestConversionService(t, source)

	result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "NP")

	require.NoError(t, err)
	assert.True(t, result.ConvertedAmount.Equal(dec("1330")), "got %s", result.ConvertedAmount)
	assert.Equal(t, valueobject.NPR, result.OriginCurrency)
	assert.Equal(t, valueobject.CountryCode("NP"), result.OriginCountry)
	assert.True(t, result.ExchangeRate.Equal(dec("133")))
	assert.Equal(t, exchange.CacheSourceLive, result.CacheSource)
	assert.Equal(t, valueobject.RoundingUp, result.RoundingMethod)
	assert.Equal(t, fixedNow, result.ConversionTimestamp)
	assert.Empty(t, result.Warning)
	source.AssertExpectations(t)
}

func TestConvertMinimumValuation_Rounding(t *testing.T) {
	tests := []struct {
		name     string
		country  valueobject.CountryCode
		currency valueobject.Currency
		rate     string
		method   valueobject.RoundingMethod
		want     string
	}{
		{"up to paise", "IN", valueobject.INR, "83.125", valueobject.RoundingUp, "83.13"},
		{"down to paise", "IN", valueobject.INR, "83.125", valueobject.RoundingDown, "83.12"},
		{"nearest half away from zero", "IN", valueobject.INR, "83.125", valueobject.RoundingNearest, "83.13"},
		{"yen has no minor unit", "JP", valueobject.JPY, "150.4", valueobject.RoundingUp, "151"},
		{"yen down", "JP", valueobject.JPY, "150.4", valueobject.RoundingDown, "150"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockExchangeRateSource)
			source.On("GetRate", mock.Anything, tt.country).Return(liveQuote(tt.country, tt.currency, tt.rate), nil)
			svc := newTestConversionService(t, source)

			result, err := svc.ConvertMinimumValuation(context.Background(), dec("1"), tt.country, WithRounding(tt.method))

			require.NoError(t, err)
			assert.True(t, result.ConvertedAmount.Equal(dec(tt.want)), "got %s", result.ConvertedAmount)
			assert.Equal(t, tt.method, result.RoundingMethod)
		})
	}
}

func TestConvertMinimumValuation_DefaultRoundingOption(t *testing.T) {
	source := new(MockExchangeRateSource)
	source.On("GetRate", mock.Anything, valueobject.CountryCode("IN")).Return(liveQuote("IN", valueobject.INR, "83.125"), nil)
	svc := newTestConversionService(t, source, WithDefaultRounding(valueobject.RoundingDown))

	result, err := svc.ConvertMinimumValuation(context.Background(), dec("1"), "IN")

	require.NoError(t, err)
	assert.True(t, result.ConvertedAmount.Equal(dec("83.12")))
	assert.Equal(t, valueobject.RoundingDown, result.RoundingMethod)
}

func TestConvertMinimumValuation_Fallback(t *testing.T) {
	t.Run("known currency uses the fallback table", func(t *testing.T) {
		source := new(MockExchangeRateSource)
		source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
			Return(exchange.RateQuote{}, errors.New("connection refused"))
		cache := newStubRateCache()
		svc := newTestConversionService(t, source, WithRateCache(cache))

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "NP")

		require.NoError(t, err)
		assert.Equal(t, exchange.CacheSourceFallback, result.CacheSource)
		assert.True(t, result.ExchangeRate.Equal(dec("133")))
		assert.True(t, result.ConvertedAmount.Equal(dec("1330")))
		assert.Contains(t, result.Warning, "fallback")
		assert.True(t, result.IsFallback())
		assert.Zero(t, cache.Stats().Entries, "fallback rates are not cached")
	})

	t.Run("high-denomination currency uses the table", func(t *testing.T) {
		source := new(MockExchangeRateSource)
		source.On("GetRate", mock.Anything, valueobject.CountryCode("KR")).
			Return(exchange.RateQuote{}, errors.New("timeout"))
		svc := newTestConversionService(t, source)

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "KR")

		require.NoError(t, err)
		assert.Equal(t, exchange.CacheSourceFallback, result.CacheSource)
		assert.Equal(t, valueobject.Currency("KRW"), result.OriginCurrency)
		assert.True(t, result.ConvertedAmount.Equal(dec("13800")), result.ConvertedAmount.String())
		assert.NotContains(t, result.Warning, "1:1")
	})

	t.Run("unknown currency converts one to one", func(t *testing.T) {
		source := new(MockExchangeRateSource)
		source.On("GetRate", mock.Anything, valueobject.CountryCode("GH")).
			Return(exchange.RateQuote{}, errors.New("timeout"))
		svc := newTestConversionService(t, source)

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "GH")

		require.NoError(t, err)
		assert.Equal(t, exchange.CacheSourceFallback, result.CacheSource)
		assert.Equal(t, valueobject.Currency("GHS"), result.OriginCurrency)
		assert.True(t, result.ExchangeRate.Equal(dec("1")))
		assert.True(t, result.ConvertedAmount.Equal(dec("10")))
		assert.Contains(t, result.Warning, "1:1")
	})

	t.Run("configured override", func(t *testing.T) {
		source := new(MockExchangeRateSource)
		source.On("GetRate", mock.Anything, valueobject.CountryCode("GH")).
			Return(exchange.RateQuote{}, errors.New("timeout"))
		rates := exchange.DefaultFallbackRates().Merge(map[valueobject.Currency]decimal.Decimal{"GHS": dec("15")})
		svc := newTestConversionService(t, source, WithFallbackRates(rates))

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "GH")

		require.NoError(t, err)
		assert.True(t, result.ConvertedAmount.Equal(dec("150")))
		assert.NotContains(t, result.Warning, "1:1")
	})

	t.Run("unusable rate from source", func(t *testing.T) {
		source := new(MockExchangeRateSource)
		source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
			Return(liveQuote("NP", valueobject.NPR, "0"), nil)
		svc := newTestConversionService(t, source)

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "NP")

		require.NoError(t, err)
		assert.Equal(t, exchange.CacheSourceFallback, result.CacheSource)
	})

	t.Run("no source configured", func(t *testing.T) {
		svc := newTestConversionService(t, nil)

		result, err := svc.ConvertMinimumValuation(context.Background(), dec("10"), "NP")

		require.NoError(t, err)
		assert.Equal(t, exchange.CacheSourceFallback, result.CacheSource)
	})
}

func TestConvertMinimumValuation_Cache(t *testing.T) {
	source := new(MockExchangeRateSource)
	source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
		Return(liveQuote("NP", valueobject.NPR, "133"), nil).Once()
	cache := newStubRateCache()
	svc := newTestConversionService(t, source, WithRateCache(cache))
	ctx := context.Background()

	first, err := svc.ConvertMinimumValuation(ctx, dec("10"), "NP")
	require.NoError(t, err)
	second, err := svc.ConvertMinimumValuation(ctx, dec("20"), "NP")
	require.NoError(t, err)

	assert.Equal(t, exchange.CacheSourceLive, first.CacheSource)
	assert.Equal(t, exchange.CacheSourceCached, second.CacheSource)
	assert.True(t, second.ConvertedAmount.Equal(dec("2660")))
	source.AssertNumberOfCalls(t, "GetRate", 1)

	stats := svc.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	require.NoError(t, svc.ClearCache(ctx))
	assert.Zero(t, svc.CacheStats().Entries)
}

func TestRefreshRate(t *testing.T) {
	source := new(MockExchangeRateSource)
	source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
		Return(liveQuote("NP", valueobject.NPR, "133"), nil).Once()
	source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
		Return(liveQuote("NP", valueobject.NPR, "134"), nil).Once()
	source.On("GetRate", mock.Anything, valueobject.CountryCode("IN")).
		Return(exchange.RateQuote{}, exchange.ErrExchangeRateUnavailable).Once()
	cache := newStubRateCache()
	svc := newTestConversionService(t, source, WithRateCache(cache))
	ctx := context.Background()

	_, err := svc.ConvertMinimumValuation(ctx, dec("1"), "NP")
	require.NoError(t, err)

	// refresh bypasses the cached 133
	rate, err := svc.RefreshRate(ctx, "np")
	require.NoError(t, err)
	assert.True(t, rate.RateFromUSD.Equal(dec("134")))

	result, err := svc.ConvertMinimumValuation(ctx, dec("1"), "NP")
	require.NoError(t, err)
	assert.Equal(t, exchange.CacheSourceCached, result.CacheSource)
	assert.True(t, result.ConvertedAmount.Equal(dec("134")))

	_, err = svc.RefreshRate(ctx, "IN")
	assert.ErrorIs(t, err, exchange.ErrExchangeRateUnavailable)
	_, err = svc.RefreshRate(ctx, "XX1")
	assert.ErrorIs(t, err, valueobject.ErrInvalidCountry)
	source.AssertExpectations(t)
}

// gatedSource holds every GetRate until release is closed and honours ctx while waiting
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSource) GetRate(ctx context.Context, country valueobject.CountryCode) (exchange.RateQuote, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return liveQuote(country, valueobject.NPR, "140"), nil
	case <-ctx.Done():
		return exchange.RateQuote{}, ctx.Err()
	}
}

func TestConvertMinimumValuation_CancelledCallerLeavesSharedLookup(t *testing.T) {
	source := newGatedSource()
	svc := newTestConversionService(t, source, WithLookupTimeout(5*time.Second))

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan exchange.ConversionResult, 1)
	go func() {
		r, _ := svc.ConvertMinimumValuation(ctxA, dec("1"), "NP")
		resA <- r
	}()
	<-source.started

	resB := make(chan exchange.ConversionResult, 1)
	go func() {
		r, _ := svc.ConvertMinimumValuation(context.Background(), dec("1"), "NP")
		resB <- r
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case a := <-resA:
		assert.Equal(t, exchange.CacheSourceFallback, a.CacheSource)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(source.release)
	select {
	case b := <-resB:
		assert.Equal(t, exchange.CacheSourceLive, b.CacheSource)
		assert.True(t, b.ExchangeRate.Equal(dec("140")), "got %s", b.ExchangeRate)
		assert.Empty(t, b.Warning)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never finished")
	}
}

func TestRefreshRate_CancelledContext(t *testing.T) {
	source := newGatedSource()
	svc := newTestConversionService(t, source)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RefreshRate(ctx, "NP")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, source.calls.Load())
}

func TestConvertMinimumValuation_InvalidInput(t *testing.T) {
	source := new(MockExchangeRateSource)
	svc := newTestConversionService(t, source)
	ctx := context.Background()

	_, err := svc.ConvertMinimumValuation(ctx, dec("-1"), "NP")
	assert.ErrorIs(t, err, valueobject.ErrInvalidAmount)

	_, err = svc.ConvertMinimumValuation(ctx, dec("10"), "NPL")
	assert.ErrorIs(t, err, valueobject.ErrInvalidCountry)

	source.AssertNotCalled(t, "GetRate", mock.Anything, mock.Anything)
}

func TestConvertMultiple(t *testing.T) {
	source := new(MockExchangeRateSource)
	source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).
		Return(liveQuote("NP", valueobject.NPR, "133"), nil).Once()
	source.On("GetRate", mock.Anything, valueobject.CountryCode("IN")).
		Return(exchange.RateQuote{}, errors.New("upstream 503")).Once()
	svc := newTestConversionService(t, source)

	results, err := svc.ConvertMultiple(context.Background(), []exchange.ConversionRequest{
		{USDAmount: dec("10"), OriginCountry: "NP", ItemID: "a"},
		{USDAmount: dec("5"), OriginCountry: "IN", ItemID: "b"},
		{USDAmount: dec("1"), OriginCountry: "np", ItemID: "c"},
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].ConvertedAmount.Equal(dec("1330")))
	assert.Equal(t, exchange.CacheSourceLive, results[0].CacheSource)
	assert.Equal(t, exchange.CacheSourceFallback, results[1].CacheSource)
	assert.True(t, results[1].ConvertedAmount.Equal(dec("415")))
	assert.True(t, results[2].ConvertedAmount.Equal(dec("133")))
	source.AssertExpectations(t)
}

func TestConvertMultiple_InvalidRequest(t *testing.T) {
	source := new(MockExchangeRateSource)
	svc := newTestConversionService(t, source)

	_, err := svc.ConvertMultiple(context.Background(), []exchange.ConversionRequest{
		{USDAmount: dec("10"), OriginCountry: "NP", ItemID: "a"},
		{USDAmount: dec("-5"), OriginCountry: "NP", ItemID: "b"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, valueobject.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "item b")
	source.AssertNotCalled(t, "GetRate", mock.Anything, mock.Anything)
}

func TestValidateConversion(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		tolerance string
		valid     bool
		pctError  string
	}{
		{"exact match", "1330", "0", true, "0"},
		{"within tolerance", "1300", "5", true, "2.3077"},
		{"outside tolerance", "1300", "1", false, "2.3077"},
		{"zero expected", "0", "50", false, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockExchangeRateSource)
			source.On("GetRate", mock.Anything, valueobject.CountryCode("NP")).Return(liveQuote("NP", valueobject.NPR, "133"), nil)
			svc := newTestConversionService(t, source)

			v, err := svc.ValidateConversion(context.Background(), dec("10"), "NP", dec(tt.expected), dec(tt.tolerance))

			require.NoError(t, err)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.True(t, v.PercentageError.Equal(dec(tt.pctError)), "got %s", v.PercentageError)
			assert.True(t, v.Conversion.ConvertedAmount.Equal(dec("1330")))
		})
	}

	t.Run("negative tolerance", func(t *testing.T) {
		svc := newTestConversionService(t, new(MockExchangeRateSource))
		_, err := svc.ValidateConversion(context.Background(), dec("10"), "NP", dec("1330"), dec("-1"))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
