package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/customs/internal/infrastructure/telemetry"
	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartServiceSpan(context.Background(), "conversion", "convert_minimum_valuation",
		telemetry.WithAttribute(telemetry.SpanAttrCountry, "NP"),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, 3, 42, "ignored")
	telemetry.AddEvent(span, "fallback_used", telemetry.SpanAttrCurrency, "NPR")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "conversion.convert_minimum_valuation", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "NP", attrs[telemetry.SpanAttrCountry])
	assert.Equal(t, "3", attrs[telemetry.SpanAttrItemCount])
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "fallback_used", spans[0].Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "calculator.calculate_item_tax")
	telemetry.RecordError(span, errors.New("classification not found"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "classification not found", spans[0].Status().Description)

	// nil-safe
	telemetry.RecordError(nil, errors.New("x"))
	telemetry.RecordError(span, nil)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, tp.EnableSpanProfiles())
	assert.NoError(t, tp.EnableSpanProfiles())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewCustomsMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	m, err := telemetry.NewCustomsMetrics(telemetry.CustomsMetricsConfig{Meter: meter, Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordConversion(ctx, "live")
		m.RecordItemCalculated(ctx, "minimum_valuation", "vat")
		m.RecordItemFailure(ctx)
		m.RecordBatchUnit(ctx, "succeeded", 150*time.Millisecond)
		m.RecordUnitsInFlight(ctx, 4)
		m.RecordRateCacheLookup(ctx, "NP", true)
		m.RecordRateCacheLookup(ctx, "NP", false)
	})
}

func TestNewCustomsMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewCustomsMetrics(telemetry.CustomsMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "NewCustomsMetrics: meter cannot be nil", err.Error())
}

func TestCustomsMetrics_NilReceiver(t *testing.T) {
	var m *telemetry.CustomsMetrics
	assert.NotPanics(t, func() {
		m.RecordConversion(context.Background(), "fallback")
		m.RecordBatchUnit(context.Background(), "failed", time.Second)
		m.RecordRateCacheLookup(context.Background(), "IN", true)
	})
}

func TestNewProfiler(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, nil)
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("requires server address", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "customs"}, nil)
		assert.ErrorContains(t, err, "server address")
	})

	t.Run("requires application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, nil)
		assert.ErrorContains(t, err, "application name")
	})
}

func TestParseProfileTypes(t *testing.T) {
	types, err := telemetry.ParseProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileInuseSpace}, types)

	types, err = telemetry.ParseProfileTypes([]string{"CPU", " goroutines "})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileGoroutines}, types)

	_, err = telemetry.ParseProfileTypes([]string{"heap"})
	assert.Error(t, err)
}

func TestLoggerProvider_BridgeDisabledReturnsBase(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	lp, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	bridged := lp.Bridge(base, zapcore.WarnLevel)
	bridged.Info("hello")
	assert.Equal(t, 1, logs.Len())
	assert.NoError(t, lp.Shutdown(context.Background()))

	var nilProvider *telemetry.LoggerProvider
	assert.Same(t, base, nilProvider.Bridge(base, zapcore.InfoLevel))
}
