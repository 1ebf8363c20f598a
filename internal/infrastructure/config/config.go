package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Auth         AuthConfig
	Swagger      SwaggerConfig
	ExchangeRate ExchangeRateConfig
	Customs      CustomsConfig
	Batch        BatchConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string // database name, or file path for sqlite
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds admin HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// AuthConfig holds the operator token settings for state-changing admin routes.
// An empty Secret leaves those routes open.
type AuthConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// SwaggerConfig holds the API documentation endpoint configuration
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool     // require an operator token to read the docs
	AllowedIPs  []string // IPs or CIDRs; empty allows all
}

// ExchangeRateConfig holds the live rate source and rate cache settings
type ExchangeRateConfig struct {
	BaseURL      string        // e.g. https://open.er-api.com/v6/latest
	Timeout      time.Duration // per-request timeout
	CacheTTL     time.Duration
	CacheBackend string // memory, redis or tiered
	CachePrefix  string // redis key prefix
	// RefreshCountries are re-fetched every RefreshInterval to keep the cache warm; empty disables refresh
	RefreshCountries []string
	RefreshInterval  time.Duration
}

// CustomsConfig holds valuation engine settings
type CustomsConfig struct {
	RoundingMethod string
	LookupTimeout  time.Duration // bound on every external lookup
	// FallbackRates overrides entries of the built-in fallback table, keyed by currency code
	FallbackRates map[string]string
}

// BatchConfig holds batch driver settings
type BatchConfig struct {
	Concurrency   int
	RetryAttempts int
	RetryDelay    time.Duration
	UnitTimeout   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Metrics and log export share the collector endpoint
	MetricsEnabled  bool
	MetricsInterval time.Duration
	LogsEnabled     bool
	LogsLevel       string
	// Continuous profiling
	ProfilingEnabled       bool
	ProfilingServerAddress string
	ProfilingAuthUser      string
	ProfilingAuthPassword  string
	ProfilingTypes         []string
	SpanProfilesEnabled    bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from config.toml and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CUSTOMS_ prefix (e.g., CUSTOMS_BATCH_CONCURRENCY)
// 2. config.toml in . or /etc/customs
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/customs")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}
	return build(v)
}

// LoadFile loads configuration from an explicit TOML file plus environment variables
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CUSTOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Auth: AuthConfig{
			Secret:   v.GetString("auth.secret"),
			Issuer:   v.GetString("auth.issuer"),
			TokenTTL: v.GetDuration("auth.token_ttl"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		ExchangeRate: ExchangeRateConfig{
			BaseURL:      v.GetString("exchange_rate.base_url"),
			Timeout:      v.GetDuration("exchange_rate.timeout"),
			CacheTTL:     v.GetDuration("exchange_rate.cache_ttl"),
			CacheBackend: v.GetString("exchange_rate.cache_backend"),
			CachePrefix:  v.GetString("exchange_rate.cache_prefix"),

			RefreshCountries: v.GetStringSlice("exchange_rate.refresh_countries"),
			RefreshInterval:  v.GetDuration("exchange_rate.refresh_interval"),
		},
		Customs: CustomsConfig{
			RoundingMethod: v.GetString("customs.rounding_method"),
			LookupTimeout:  v.GetDuration("customs.lookup_timeout"),
			FallbackRates:  v.GetStringMapString("customs.fallback_rates"),
		},
		Batch: BatchConfig{
			Concurrency:   v.GetInt("batch.concurrency"),
			RetryAttempts: v.GetInt("batch.retry_attempts"),
			RetryDelay:    v.GetDuration("batch.retry_delay"),
			UnitTimeout:   v.GetDuration("batch.unit_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:                v.GetBool("telemetry.enabled"),
			CollectorEndpoint:      v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:          v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:            v.GetString("telemetry.service_name"),
			Insecure:               v.GetBool("telemetry.insecure"),
			MetricsEnabled:         v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:        v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:            v.GetBool("telemetry.logs_enabled"),
			LogsLevel:              v.GetString("telemetry.logs_level"),
			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			ProfilingAuthUser:      v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthPassword:  v.GetString("telemetry.profiling_auth_password"),
			ProfilingTypes:         v.GetStringSlice("telemetry.profiling_types"),
			SpanProfilesEnabled:    v.GetBool("telemetry.span_profiles_enabled"),
			DBTraceEnabled:         v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:           v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:      v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "customs-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "customs"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// batch starts answer immediately; long runs are polled
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = cfg.App.Name
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.ExchangeRate.BaseURL == "" {
		cfg.ExchangeRate.BaseURL = "https://open.er-api.com/v6/latest"
	}
	if cfg.ExchangeRate.Timeout == 0 {
		cfg.ExchangeRate.Timeout = 10 * time.Second
	}
	if cfg.ExchangeRate.CacheTTL == 0 {
		cfg.ExchangeRate.CacheTTL = 10 * time.Minute
	}
	if cfg.ExchangeRate.CacheBackend == "" {
		cfg.ExchangeRate.CacheBackend = "memory"
	}
	if cfg.ExchangeRate.CachePrefix == "" {
		cfg.ExchangeRate.CachePrefix = "customs:fx:"
	}
	if cfg.ExchangeRate.RefreshInterval == 0 {
		cfg.ExchangeRate.RefreshInterval = cfg.ExchangeRate.CacheTTL / 2
	}
	if cfg.Customs.RoundingMethod == "" {
		cfg.Customs.RoundingMethod = string(valueobject.DefaultRoundingMethod)
	}
	if cfg.Customs.LookupTimeout == 0 {
		cfg.Customs.LookupTimeout = 5 * time.Second
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 50
	}
	if cfg.Batch.RetryAttempts == 0 {
		cfg.Batch.RetryAttempts = 2
	}
	if cfg.Batch.RetryDelay == 0 {
		cfg.Batch.RetryDelay = time.Second
	}
	if cfg.Batch.UnitTimeout == 0 {
		cfg.Batch.UnitTimeout = 2 * time.Minute
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
	if cfg.Telemetry.ProfilingServerAddress == "" {
		cfg.Telemetry.ProfilingServerAddress = "http://localhost:4040"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl cannot be negative")
	}
	if c.Swagger.RequireAuth && c.Auth.Secret == "" {
		return fmt.Errorf("swagger.require_auth needs auth.secret")
	}

	switch c.ExchangeRate.CacheBackend {
	case "memory", "redis", "tiered":
	default:
		return fmt.Errorf("exchange_rate.cache_backend must be memory, redis or tiered, got %q", c.ExchangeRate.CacheBackend)
	}
	if c.ExchangeRate.CacheTTL < time.Minute {
		return fmt.Errorf("exchange_rate.cache_ttl must be at least 1m, got %s", c.ExchangeRate.CacheTTL)
	}
	if _, err := url.ParseRequestURI(c.ExchangeRate.BaseURL); err != nil {
		return fmt.Errorf("exchange_rate.base_url is not a valid URL: %w", err)
	}
	if _, err := c.ExchangeRate.RefreshCountryCodes(); err != nil {
		return err
	}
	if len(c.ExchangeRate.RefreshCountries) > 0 && c.ExchangeRate.RefreshInterval < time.Second {
		return fmt.Errorf("exchange_rate.refresh_interval must be at least 1s, got %s", c.ExchangeRate.RefreshInterval)
	}

	if _, err := valueobject.ParseRoundingMethod(c.Customs.RoundingMethod); err != nil {
		return fmt.Errorf("customs.rounding_method: %w", err)
	}
	if c.Customs.LookupTimeout < 0 {
		return fmt.Errorf("customs.lookup_timeout cannot be negative")
	}
	if _, err := c.Customs.FallbackOverrides(); err != nil {
		return err
	}

	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency cannot be negative")
	}
	if c.Batch.RetryAttempts < 0 {
		return fmt.Errorf("batch.retry_attempts cannot be negative")
	}
	if c.Batch.RetryDelay < 0 {
		return fmt.Errorf("batch.retry_delay cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// RefreshCountryCodes returns the parsed refresh country list
func (e ExchangeRateConfig) RefreshCountryCodes() ([]valueobject.CountryCode, error) {
	codes := make([]valueobject.CountryCode, 0, len(e.RefreshCountries))
	for _, raw := range e.RefreshCountries {
		code, err := valueobject.ParseCountryCode(raw)
		if err != nil {
			return nil, fmt.Errorf("exchange_rate.refresh_countries: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Rounding returns the parsed rounding method
func (c CustomsConfig) Rounding() valueobject.RoundingMethod {
	method, err := valueobject.ParseRoundingMethod(c.RoundingMethod)
	if err != nil {
		return valueobject.DefaultRoundingMethod
	}
	return method
}

// FallbackOverrides parses the configured fallback rates.
// Keys are currency codes, values decimal strings greater than zero.
func (c CustomsConfig) FallbackOverrides() (map[valueobject.Currency]decimal.Decimal, error) {
	if len(c.FallbackRates) == 0 {
		return nil, nil
	}
	codes := make([]string, 0, len(c.FallbackRates))
	for code := range c.FallbackRates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make(map[valueobject.Currency]decimal.Decimal, len(codes))
	for _, code := range codes {
		currency, err := valueobject.ParseCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("customs.fallback_rates: %w", err)
		}
		rate, err := valueobject.ParseAmount(c.FallbackRates[code])
		if err != nil {
			return nil, fmt.Errorf("customs.fallback_rates.%s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("customs.fallback_rates.%s must be greater than zero", code)
		}
		out[currency] = rate
	}
	return out, nil
}

// DSN returns the database connection string with properly escaped values.
// For sqlite the DBName is the file path.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.DBName
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
