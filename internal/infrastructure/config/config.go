package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	Locking        LockingConfig
	Ledger         LedgerConfig
	Sync           SyncConfig
	Recovery       RecoveryConfig
	Reconciliation ReconciliationConfig
	Scheduler      SchedulerConfig
	OrderSync      OrderSyncConfig
	Marketplaces   MarketplacesConfig
	Telemetry      TelemetryConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

// LockingConfig holds distributed lock settings
type LockingConfig struct {
	MaxWait      time.Duration // max time to wait for a product lock
	TTL          time.Duration // product lock ownership TTL
	PollInterval time.Duration // retry interval while waiting
	JobLockTTL   time.Duration // shop-level job slot TTL
}

// LedgerConfig holds inventory ledger settings
type LedgerConfig struct {
	CacheTTL     time.Duration // retention for completed operation results
	CacheBackend string        // redis, memory
}

// SyncConfig holds the platform push dispatcher settings
type SyncConfig struct {
	Workers     int
	QueueSize   int
	PushTimeout time.Duration
}

// RecoveryConfig holds sync-failure retry settings
type RecoveryConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchLimit   int
}

// ReconciliationConfig holds drift sweep settings
type ReconciliationConfig struct {
	Enabled          bool
	Interval         time.Duration
	PercentThreshold float64 // relative drift that counts as significant
	AlertThreshold   int64   // absolute drift that triggers a notification
}

// SchedulerConfig holds background job runner configuration
type SchedulerConfig struct {
	Enabled         bool
	ShutdownTimeout time.Duration
}

// OrderSyncConfig holds marketplace order pull settings
type OrderSyncConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration
	PageSize int
	MaxPages int
}

// MarketplacesConfig holds per-marketplace adapter credentials.
// An adapter is only registered when its Enabled flag is set.
type MarketplacesConfig struct {
	Ebay    EbayMarketplaceConfig
	Whatnot WhatnotMarketplaceConfig
}

// EbayMarketplaceConfig holds eBay Sell API credentials
type EbayMarketplaceConfig struct {
	Enabled       bool
	ClientID      string
	ClientSecret  string
	OAuthToken    string
	MarketplaceID string
	Sandbox       bool
}

// WhatnotMarketplaceConfig holds Whatnot seller API credentials
type WhatnotMarketplaceConfig struct {
	Enabled  bool
	APIToken string
	SellerID string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CROSSLIST_ prefix (e.g., CROSSLIST_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("CROSSLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
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
		Locking: LockingConfig{
			MaxWait:      v.GetDuration("locking.max_wait"),
			TTL:          v.GetDuration("locking.ttl"),
			PollInterval: v.GetDuration("locking.poll_interval"),
			JobLockTTL:   v.GetDuration("locking.job_lock_ttl"),
		},
		Ledger: LedgerConfig{
			CacheTTL:     v.GetDuration("ledger.cache_ttl"),
			CacheBackend: v.GetString("ledger.cache_backend"),
		},
		Sync: SyncConfig{
			Workers:     v.GetInt("sync.workers"),
			QueueSize:   v.GetInt("sync.queue_size"),
			PushTimeout: v.GetDuration("sync.push_timeout"),
		},
		Recovery: RecoveryConfig{
			Enabled:      v.GetBool("recovery.enabled"),
			PollInterval: v.GetDuration("recovery.poll_interval"),
			BatchLimit:   v.GetInt("recovery.batch_limit"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:          v.GetBool("reconciliation.enabled"),
			Interval:         v.GetDuration("reconciliation.interval"),
			PercentThreshold: v.GetFloat64("reconciliation.percent_threshold"),
			AlertThreshold:   v.GetInt64("reconciliation.alert_threshold"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			ShutdownTimeout: v.GetDuration("scheduler.shutdown_timeout"),
		},
		OrderSync: OrderSyncConfig{
			Enabled:  v.GetBool("order_sync.enabled"),
			Interval: v.GetDuration("order_sync.interval"),
			Lookback: v.GetDuration("order_sync.lookback"),
			PageSize: v.GetInt("order_sync.page_size"),
			MaxPages: v.GetInt("order_sync.max_pages"),
		},
		Marketplaces: MarketplacesConfig{
			Ebay: EbayMarketplaceConfig{
				Enabled:       v.GetBool("marketplaces.ebay.enabled"),
				ClientID:      v.GetString("marketplaces.ebay.client_id"),
				ClientSecret:  v.GetString("marketplaces.ebay.client_secret"),
				OAuthToken:    v.GetString("marketplaces.ebay.oauth_token"),
				MarketplaceID: v.GetString("marketplaces.ebay.marketplace_id"),
				Sandbox:       v.GetBool("marketplaces.ebay.sandbox"),
			},
			Whatnot: WhatnotMarketplaceConfig{
				Enabled:  v.GetBool("marketplaces.whatnot.enabled"),
				APIToken: v.GetString("marketplaces.whatnot.api_token"),
				SellerID: v.GetString("marketplaces.whatnot.seller_id"),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crosslist-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
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
		cfg.Database.DBName = "crosslist"
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
	if cfg.Locking.MaxWait == 0 {
		cfg.Locking.MaxWait = 30 * time.Second
	}
	if cfg.Locking.TTL == 0 {
		cfg.Locking.TTL = 2 * time.Minute
	}
	if cfg.Locking.PollInterval == 0 {
		cfg.Locking.PollInterval = 50 * time.Millisecond
	}
	if cfg.Locking.JobLockTTL == 0 {
		cfg.Locking.JobLockTTL = 30 * time.Minute
	}
	if cfg.Ledger.CacheTTL == 0 {
		cfg.Ledger.CacheTTL = 7 * 24 * time.Hour
	}
	if cfg.Ledger.CacheBackend == "" {
		cfg.Ledger.CacheBackend = "redis"
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 5
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 256
	}
	if cfg.Sync.PushTimeout == 0 {
		cfg.Sync.PushTimeout = 2 * time.Minute
	}
	if cfg.Recovery.PollInterval == 0 {
		cfg.Recovery.PollInterval = time.Minute
	}
	if cfg.Recovery.BatchLimit == 0 {
		cfg.Recovery.BatchLimit = 50
	}
	if cfg.Reconciliation.Interval == 0 {
		cfg.Reconciliation.Interval = 6 * time.Hour
	}
	if cfg.Reconciliation.PercentThreshold == 0 {
		cfg.Reconciliation.PercentThreshold = 0.10
	}
	if cfg.Reconciliation.AlertThreshold == 0 {
		cfg.Reconciliation.AlertThreshold = 5
	}
	if cfg.Scheduler.ShutdownTimeout == 0 {
		cfg.Scheduler.ShutdownTimeout = 30 * time.Second
	}
	if cfg.OrderSync.Interval == 0 {
		cfg.OrderSync.Interval = 5 * time.Minute
	}
	if cfg.OrderSync.Lookback == 0 {
		cfg.OrderSync.Lookback = 30 * time.Minute
	}
	if cfg.OrderSync.PageSize == 0 {
		cfg.OrderSync.PageSize = 50
	}
	if cfg.OrderSync.MaxPages == 0 {
		cfg.OrderSync.MaxPages = 20
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "crosslist-backend"
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
	// DBTraceEnabled defaults to false (needs explicit enable)
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	// Note: DBLogFullSQL defaults to false for security (disable in production)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
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

	if c.Locking.MaxWait <= 0 {
		return fmt.Errorf("locking.max_wait must be positive")
	}
	if c.Locking.TTL <= c.Locking.MaxWait {
		return fmt.Errorf("locking.ttl (%s) must exceed locking.max_wait (%s)", c.Locking.TTL, c.Locking.MaxWait)
	}
	switch c.Ledger.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("ledger.cache_backend must be 'redis' or 'memory', got %q", c.Ledger.CacheBackend)
	}
	if c.Reconciliation.PercentThreshold < 0 || c.Reconciliation.PercentThreshold > 1 {
		return fmt.Errorf("reconciliation.percent_threshold must be between 0.0 and 1.0, got %f", c.Reconciliation.PercentThreshold)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		// Database tracing: full SQL logging is a security risk in production
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
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

// Addr returns the host:port pair for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
