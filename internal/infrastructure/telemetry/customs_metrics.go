package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// CustomsMetrics records conversion, calculation and batch metrics.
// All methods are safe to call on a nil receiver.
type CustomsMetrics struct {
	logger *zap.Logger

	conversionsTotal     *Counter
	itemsCalculatedTotal *Counter
	itemFailuresTotal    *Counter
	batchUnitsTotal      *Counter
	batchUnitDuration    *Histogram
	rateCacheHitsTotal   *Counter
	rateCacheMissesTotal *Counter
	batchUnitsInFlight   *Gauge
}

// CustomsMetricsConfig holds configuration for customs metrics.
type CustomsMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewCustomsMetrics creates and registers every customs instrument.
func NewCustomsMetrics(cfg CustomsMetricsConfig) (*CustomsMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &CustomsMetrics{logger: logger}
	var err error

	if m.conversionsTotal, err = NewCounter(cfg.Meter,
		"customs_conversions_total",
		"Minimum valuation conversions by rate source",
		"{conversions}",
	); err != nil {
		return nil, err
	}
	if m.itemsCalculatedTotal, err = NewCounter(cfg.Meter,
		"customs_items_calculated_total",
		"Items whose taxes were calculated, by valuation method",
		"{items}",
	); err != nil {
		return nil, err
	}
	if m.itemFailuresTotal, err = NewCounter(cfg.Meter,
		"customs_item_failures_total",
		"Items whose tax calculation failed",
		"{items}",
	); err != nil {
		return nil, err
	}
	if m.batchUnitsTotal, err = NewCounter(cfg.Meter,
		"customs_batch_units_total",
		"Batch work units finished, by status",
		"{units}",
	); err != nil {
		return nil, err
	}
	if m.batchUnitDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "customs_batch_unit_duration_seconds",
		Description: "Wall time of one batch work unit including retries",
		Unit:        "s",
		Boundaries:  UnitDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.rateCacheHitsTotal, err = NewCounter(cfg.Meter,
		"customs_rate_cache_hits_total",
		"Exchange rate lookups served from cache",
		"{lookups}",
	); err != nil {
		return nil, err
	}
	if m.rateCacheMissesTotal, err = NewCounter(cfg.Meter,
		"customs_rate_cache_misses_total",
		"Exchange rate lookups that went to the rate source",
		"{lookups}",
	); err != nil {
		return nil, err
	}
	if m.batchUnitsInFlight, err = NewGauge(cfg.Meter,
		"customs_batch_units_in_flight",
		"Batch work units currently running",
		"{units}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordConversion counts one conversion tagged with its rate source.
func (m *CustomsMetrics) RecordConversion(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.conversionsTotal.Inc(ctx, AttrCacheSource.String(source))
}

// RecordItemCalculated counts one successful item calculation.
func (m *CustomsMetrics) RecordItemCalculated(ctx context.Context, method, taxSystem string) {
	if m == nil {
		return
	}
	m.itemsCalculatedTotal.Inc(ctx, AttrValuationMethod.String(method), AttrTaxSystem.String(taxSystem))
}

// RecordItemFailure counts one failed item calculation.
func (m *CustomsMetrics) RecordItemFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.itemFailuresTotal.Inc(ctx)
}

// RecordBatchUnit counts a finished unit and records its duration.
func (m *CustomsMetrics) RecordBatchUnit(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchUnitsTotal.Inc(ctx, AttrUnitStatus.String(status))
	m.batchUnitDuration.RecordDuration(ctx, d, AttrUnitStatus.String(status))
}

// RecordUnitsInFlight records how many units are currently running.
func (m *CustomsMetrics) RecordUnitsInFlight(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.batchUnitsInFlight.Record(ctx, n)
}

// RecordRateCacheLookup counts a rate cache hit or miss.
func (m *CustomsMetrics) RecordRateCacheLookup(ctx context.Context, country string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.rateCacheHitsTotal.Inc(ctx, AttrCountry.String(country))
		return
	}
	m.rateCacheMissesTotal.Inc(ctx, AttrCountry.String(country))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewCustomsMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
