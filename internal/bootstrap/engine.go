package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appcustoms "github.com/erp/customs/internal/application/customs"
	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/erp/customs/internal/infrastructure/cache"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/erp/customs/internal/infrastructure/exchangerate"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/migration"
	"github.com/erp/customs/internal/infrastructure/persistence"
	"github.com/erp/customs/internal/infrastructure/persistence/models"
	"github.com/erp/customs/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Engine is the wired valuation engine
type Engine struct {
	DB          *persistence.Database
	RateCache   cache.RateCache
	Metrics     *telemetry.CustomsMetrics
	Conversions *appcustoms.CurrencyConversionService
	Calculator  *appcustoms.PerItemTaxCalculator
	Processor   *appcustoms.QuoteProcessor
	Results     *appcustoms.RunResultStore
	Driver      *batch.Driver[customs.Quote]
	Defaults    batch.Options

	logger *zap.Logger
}

type engineOptions struct {
	meter  metric.Meter
	source exchange.ExchangeRateSource
	schema bool
}

// EngineOption configures NewEngine
type EngineOption func(*engineOptions)

// WithMeter records customs metrics on the given meter
func WithMeter(m metric.Meter) EngineOption {
	return func(o *engineOptions) {
		o.meter = m
	}
}

// WithRateSource replaces the HTTP exchange rate client
func WithRateSource(s exchange.ExchangeRateSource) EngineOption {
	return func(o *engineOptions) {
		o.source = s
	}
}

// WithSchema brings the reference tables up to date before use
func WithSchema(apply bool) EngineOption {
	return func(o *engineOptions) {
		o.schema = apply
	}
}

// NewEngine connects the reference database and rate cache and wires the services on top
func NewEngine(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		logger: log,
		Defaults: batch.Options{
			Concurrency:   cfg.Batch.Concurrency,
			RetryAttempts: cfg.Batch.RetryAttempts,
			RetryDelay:    cfg.Batch.RetryDelay,
			UnitTimeout:   cfg.Batch.UnitTimeout,
		},
	}

	gormLog := logger.NewGormLogger(log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithTracing(telemetry.GormTracingConfig{
			Enabled:               cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			IncludeQueryVariables: cfg.Telemetry.DBLogFullSQL,
		}),
		persistence.WithDatabaseLogger(log),
	)
	if err != nil {
		return nil, err
	}
	e.DB = db

	if o.schema {
		if err := ApplySchema(cfg.Database.Driver, db, log); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	e.RateCache, err = cache.NewRateCacheFactory(cfg.ExchangeRate, cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	if o.meter != nil {
		e.Metrics, err = telemetry.NewCustomsMetrics(telemetry.CustomsMetricsConfig{Meter: o.meter, Logger: log})
		if err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	overrides, err := cfg.Customs.FallbackOverrides()
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	source := o.source
	if source == nil {
		source = exchangerate.NewClientFromConfig(cfg.ExchangeRate, exchangerate.WithLogger(log))
	}

	e.Conversions = appcustoms.NewCurrencyConversionService(source,
		appcustoms.WithRateCache(e.RateCache),
		appcustoms.WithCacheTTL(cfg.ExchangeRate.CacheTTL),
		appcustoms.WithFallbackRates(exchange.DefaultFallbackRates().Merge(overrides)),
		appcustoms.WithDefaultRounding(cfg.Customs.Rounding()),
		appcustoms.WithLookupTimeout(cfg.Customs.LookupTimeout),
		appcustoms.WithConversionLogger(log),
	)
	e.Conversions.SetMetrics(e.Metrics)

	e.Calculator = appcustoms.NewPerItemTaxCalculator(
		persistence.NewGormTaxClassificationSource(db.DB, log),
		persistence.NewGormDestinationTaxRegimeSource(db.DB, log),
		e.Conversions,
		appcustoms.WithCalculatorLogger(log),
		appcustoms.WithSourceTimeout(cfg.Customs.LookupTimeout),
	)
	e.Calculator.SetMetrics(e.Metrics)

	e.Results = appcustoms.NewRunResultStore()
	e.Processor = appcustoms.NewQuoteProcessor(e.Calculator,
		appcustoms.WithResultHandler(e.Results.Record),
		appcustoms.WithProcessorLogger(log),
	)
	e.Driver = batch.NewDriver[customs.Quote](e.Processor,
		batch.WithLogger(log),
		batch.WithMetrics(e.Metrics),
	)
	return e, nil
}

// Close releases the rate cache, progress subscribers and database
func (e *Engine) Close() error {
	var errs []error
	if e.Driver != nil {
		e.Driver.Close()
	}
	if e.RateCache != nil {
		errs = append(errs, e.RateCache.Close())
	}
	if e.DB != nil {
		errs = append(errs, e.DB.Close())
	}
	return errors.Join(errs...)
}

// ApplySchema creates or upgrades the reference tables.
// Postgres runs the embedded migrations; sqlite, used for local runs and tests, is auto-migrated.
func ApplySchema(driver string, db *persistence.Database, log *zap.Logger) error {
	if driver == persistence.DriverSQLite {
		if err := db.DB.AutoMigrate(&models.TaxClassificationModel{}, &models.DestinationTaxRegimeModel{}); err != nil {
			return fmt.Errorf("auto-migrate reference tables: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, log)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared connection
	return m.Up()
}
