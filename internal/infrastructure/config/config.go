// Package config loads application configuration from TOML file and
// environment variables via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Stripe    StripeConfig
	Amazon    AmazonConfig
	Walmart   WalmartConfig
	Forecast  ForecastConfig
	Order     OrderConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64 // request body cap in bytes
	RateLimitRequests int   // 0 disables rate limiting
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
}

// StripeConfig holds payment gateway settings
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// AmazonConfig holds the affiliate retailer API settings
type AmazonConfig struct {
	Host        string
	Region      string
	Timeout     time.Duration
	Marketplace string
}

// WalmartConfig holds the first-party commerce retailer API settings
type WalmartConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ForecastConfig holds forecasting settings
type ForecastConfig struct {
	// ModelCacheTTL is how long a fitted model is reused per child
	ModelCacheTTL time.Duration
	// FitWorkers bounds concurrent CPU-heavy model fits
	FitWorkers int
	// DefaultHorizonDays is the forecast horizon when callers omit one
	DefaultHorizonDays int
	// HistoryDays is how far back usage history is queried
	HistoryDays int
}

// OrderConfig holds reorder pricing rules
type OrderConfig struct {
	// FreeShippingCutoff is the subtotal at or above which shipping is free
	FreeShippingCutoff float64
	// FlatShippingFee applies below the cutoff
	FlatShippingFee float64
	// CallTimeout bounds each outbound payment/retailer call
	CallTimeout time.Duration
}

// SchedulerConfig holds background scheduler configuration
type SchedulerConfig struct {
	Enabled       bool
	ScanInterval  time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
	// PricingInterval is how often retailer prices are re-checked
	PricingInterval time.Duration
}

// Load loads configuration from a config.toml file and LL_-prefixed
// environment variables, falling back to built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
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
			Enabled:  v.GetBool("redis.enabled"),
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
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			Currency:      v.GetString("stripe.currency"),
		},
		Amazon: AmazonConfig{
			Host:        v.GetString("amazon.host"),
			Region:      v.GetString("amazon.region"),
			Timeout:     v.GetDuration("amazon.timeout"),
			Marketplace: v.GetString("amazon.marketplace"),
		},
		Walmart: WalmartConfig{
			BaseURL: v.GetString("walmart.base_url"),
			Timeout: v.GetDuration("walmart.timeout"),
		},
		Forecast: ForecastConfig{
			ModelCacheTTL:      v.GetDuration("forecast.model_cache_ttl"),
			FitWorkers:         v.GetInt("forecast.fit_workers"),
			DefaultHorizonDays: v.GetInt("forecast.default_horizon_days"),
			HistoryDays:        v.GetInt("forecast.history_days"),
		},
		Order: OrderConfig{
			FreeShippingCutoff: v.GetFloat64("order.free_shipping_cutoff"),
			FlatShippingFee:    v.GetFloat64("order.flat_shipping_fee"),
			CallTimeout:        v.GetDuration("order.call_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			ScanInterval:    v.GetDuration("scheduler.scan_interval"),
			MaxConcurrent:   v.GetInt("scheduler.max_concurrent"),
			JobTimeout:      v.GetDuration("scheduler.job_timeout"),
			PricingInterval: v.GetDuration("scheduler.pricing_interval"),
		},
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults applies built-in defaults for unset values
func setDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "littleloop-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "littleloop"
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
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 4 << 20
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// CORS origins deliberately have no wildcard fallback; cross-origin
	// requests are rejected until origins are configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "X-Household-ID", "Stripe-Signature"}
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "cad"
	}
	if cfg.Amazon.Host == "" {
		cfg.Amazon.Host = "webservices.amazon.ca"
	}
	if cfg.Amazon.Region == "" {
		cfg.Amazon.Region = "us-east-1"
	}
	if cfg.Amazon.Timeout == 0 {
		cfg.Amazon.Timeout = 10 * time.Second
	}
	if cfg.Amazon.Marketplace == "" {
		cfg.Amazon.Marketplace = "www.amazon.ca"
	}
	if cfg.Walmart.BaseURL == "" {
		cfg.Walmart.BaseURL = "https://marketplace.walmartapis.com"
	}
	if cfg.Walmart.Timeout == 0 {
		cfg.Walmart.Timeout = 10 * time.Second
	}
	if cfg.Forecast.ModelCacheTTL == 0 {
		cfg.Forecast.ModelCacheTTL = 30 * time.Minute
	}
	if cfg.Forecast.FitWorkers == 0 {
		cfg.Forecast.FitWorkers = 4
	}
	if cfg.Forecast.DefaultHorizonDays == 0 {
		cfg.Forecast.DefaultHorizonDays = 30
	}
	if cfg.Forecast.HistoryDays == 0 {
		cfg.Forecast.HistoryDays = 90
	}
	if cfg.Order.FreeShippingCutoff == 0 {
		cfg.Order.FreeShippingCutoff = 35.0
	}
	if cfg.Order.FlatShippingFee == 0 {
		cfg.Order.FlatShippingFee = 5.99
	}
	if cfg.Order.CallTimeout == 0 {
		cfg.Order.CallTimeout = 15 * time.Second
	}
	if cfg.Scheduler.ScanInterval == 0 {
		cfg.Scheduler.ScanInterval = 24 * time.Hour
	}
	if cfg.Scheduler.MaxConcurrent == 0 {
		cfg.Scheduler.MaxConcurrent = 4
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 2 * time.Minute
	}
	if cfg.Scheduler.PricingInterval == 0 {
		cfg.Scheduler.PricingInterval = 6 * time.Hour
	}
}

// Validate checks that required settings are present for the environment
func (c *Config) Validate() error {
	if c.App.Env == "production" {
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("config: stripe.secret_key is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("config: stripe.webhook_secret is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("config: database.password is required in production")
		}
	}
	if c.Forecast.FitWorkers < 1 {
		return fmt.Errorf("config: forecast.fit_workers must be positive")
	}
	return nil
}

// DSN returns the postgres connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Addr returns the redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
