package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/customs/internal/bootstrap"
	"github.com/erp/customs/internal/infrastructure/auth"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/infrastructure/scheduler"
	"github.com/erp/customs/internal/interfaces/http/handler"
	"github.com/erp/customs/internal/interfaces/http/middleware"
	"github.com/erp/customs/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Customs Valuation Engine API
//	@version		1.0
//	@description	Minimum valuation conversion, per-item customs and VAT calculation, and quote batch runs.
//
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {token}"
func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := bootstrap.SetupTelemetry(ctx, cfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := tel.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log.Info("Starting customs valuation API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	engine, err := bootstrap.NewEngine(ctx, cfg, log,
		bootstrap.WithMeter(tel.MeterFor("customs")),
		bootstrap.WithSchema(cfg.App.Env != "production"),
	)
	if err != nil {
		log.Fatal("Failed to initialize valuation engine", zap.Error(err))
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("Error closing valuation engine", zap.Error(err))
		}
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	r.Use(
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		logger.GinMiddleware(log),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(tel.MeterFor("http"), log),
		middleware.Secure(),
		middleware.CORS(middleware.DefaultCORSConfig()),
	)

	system := handler.NewSystemHandler(cfg.App.Name, version, log).
		AddCheck("database", func(context.Context) error { return engine.DB.Ping() })

	// validated by config.Load
	refreshCountries, _ := cfg.ExchangeRate.RefreshCountryCodes()
	if len(refreshCountries) > 0 {
		refresher := scheduler.NewRateRefresher(scheduler.RateRefresherConfig{
			Countries:   refreshCountries,
			Interval:    cfg.ExchangeRate.RefreshInterval,
			PassTimeout: cfg.ExchangeRate.RefreshInterval,
		}, engine.Conversions, log)
		if err := refresher.Start(ctx); err != nil {
			log.Fatal("Failed to start rate refresher", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := refresher.Stop(stopCtx); err != nil {
				log.Warn("Rate refresher did not stop cleanly", zap.Error(err))
			}
		}()
		system.AddJob("rate_refresher", refresher.GetStatus)
	}

	customsHandler := handler.NewCustomsHandler(engine.Conversions, engine.Processor, log)
	batchHandler := handler.NewBatchHandler(engine.Driver, engine.Results, engine.Defaults, log)

	var operatorAuth gin.HandlerFunc
	tokens, err := auth.NewOperatorTokenService(cfg.Auth)
	switch {
	case err == nil:
		operatorAuth = middleware.RequireOperator(tokens, log)
		customsHandler.Protect(operatorAuth)
		batchHandler.Protect(operatorAuth)
	case errors.Is(err, auth.ErrAuthDisabled):
		log.Warn("auth.secret is not set; cache and batch admin routes are unauthenticated")
	default:
		log.Fatal("Failed to initialize operator tokens", zap.Error(err))
	}

	var docsAuth gin.HandlerFunc
	if cfg.Swagger.RequireAuth {
		docsAuth = operatorAuth
	}

	router.NewRouter(r,
		router.WithGroupMiddleware(middleware.BodyLimit(cfg.HTTP.MaxBodySize)),
		router.WithDocs(middleware.DocsAccess(middleware.DocsConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}, docsAuth)),
	).
		Register(system).
		Register(customsHandler).
		Register(batchHandler).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        r,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	// a running batch gets the same grace period as open requests
	engine.Driver.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	select {
	case <-engine.Driver.Done():
	case <-shutdownCtx.Done():
		log.Warn("Batch run still in flight at exit", zap.String("run_id", engine.Driver.Snapshot().RunID))
	}

	log.Info("Server exited gracefully")
}
