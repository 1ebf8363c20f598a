package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormTracingConfig configures database span instrumentation.
type GormTracingConfig struct {
	Enabled bool
	// DBName is reported as db.name on spans
	DBName string
	// IncludeQueryVariables exposes bound values in span statements
	IncludeQueryVariables bool
}

// InstrumentGorm registers the otelgorm plugin so every query produces a span.
func InstrumentGorm(db *gorm.DB, cfg GormTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []otelgorm.Option
	if cfg.DBName != "" {
		opts = append(opts, otelgorm.WithDBName(cfg.DBName))
	}
	if !cfg.IncludeQueryVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_name", cfg.DBName),
		zap.Bool("query_variables", cfg.IncludeQueryVariables),
	)
	return nil
}
