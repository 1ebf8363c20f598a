package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/erp/customs/internal/bootstrap"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// environment is everything a command needs, opened from configuration
type environment struct {
	cfg    *config.Config
	log    *zap.Logger
	tel    *bootstrap.Telemetry
	engine *bootstrap.Engine
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load()
}

func openEnvironment(ctx context.Context, g *globalFlags, opts ...bootstrap.EngineOption) (*environment, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	// stdout carries command output
	output := cfg.Log.Output
	if output == "" || output == "stdout" {
		output = "stderr"
	}
	base, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	tel, err := bootstrap.SetupTelemetry(ctx, cfg, base)
	if err != nil {
		_ = logger.Sync(base)
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	opts = append([]bootstrap.EngineOption{bootstrap.WithMeter(tel.MeterFor("customs"))}, opts...)
	engine, err := bootstrap.NewEngine(ctx, cfg, tel.Logger, opts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		_ = logger.Sync(base)
		return nil, fmt.Errorf("initializing valuation engine: %w", err)
	}

	return &environment{cfg: cfg, log: tel.Logger, tel: tel, engine: engine}, nil
}

func (e *environment) seed(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	result, err := persistence.SeedReferenceData(ctx, e.engine.DB, f, e.log)
	if err != nil {
		return err
	}
	e.log.Info("Reference data seeded",
		zap.String("file", path),
		zap.Int("classifications", result.Classifications),
		zap.Int("regimes", result.Regimes),
	)
	return nil
}

// Close releases the engine and flushes telemetry
func (e *environment) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := errors.Join(e.engine.Close(), e.tel.Shutdown(shutdownCtx))
	_ = logger.Sync(e.log)
	return err
}
