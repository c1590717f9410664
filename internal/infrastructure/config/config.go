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
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	HTTP          HTTPConfig
	Telemetry     TelemetryConfig
	Marketplace   MarketplaceConfig
	Sync          SyncConfig
	StockReset    StockResetConfig
	Replenishment ReplenishmentConfig
	Orchestration OrchestrationConfig
	Outbox        OutboxConfig
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
	Path            string // sqlite database file, ":memory:" for an ephemeral store
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

// RedisConfig holds Redis connection settings.
// With Enabled false the dedup and page stores stay in process memory.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	RateLimit      int // Requests per client within RateWindow; 0 disables limiting
	RateWindow     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool   // Whether to export metrics
	Traces            bool   // Whether to export traces (requires Enabled)
	Logs              bool   // Whether to bridge logs to the collector (requires Enabled)
	CollectorEndpoint string // OTEL Collector endpoint (e.g., "localhost:4317")
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
	SamplingRatio     float64       // Trace sampling ratio in (0, 1]
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// AccountConfig is one seller account entry of [[marketplace.accounts]]
type AccountConfig struct {
	ID      string `mapstructure:"id"`
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

// MarketplaceConfig holds the marketplace API settings and the seller accounts
type MarketplaceConfig struct {
	StatisticsBaseURL  string
	MarketplaceBaseURL string
	TimeoutSeconds     int
	CollapseTTL        time.Duration
	PageTTL            time.Duration
	RetryMaxAttempts   int
	RetryDelay         time.Duration
	RetryMaxDelay      time.Duration
	Accounts           []AccountConfig
}

// SyncConfig holds the schedule and windows of the feed pulls
type SyncConfig struct {
	Enabled           bool
	OrdersInterval    time.Duration
	StocksInterval    time.Duration
	PurgeInterval     time.Duration
	ResetInterval     time.Duration
	OrdersLookback    time.Duration
	StocksLookback    time.Duration
	OrdersByDay       bool
	OrderRetention    time.Duration
	IngestConcurrency int
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	OrderDedupTTL     time.Duration
	StockDedupTTL     time.Duration
}

// StockResetConfig holds the FBS stock reset thresholds
type StockResetConfig struct {
	Threshold   int
	FallbackMin int
	FallbackMax int
	ChunkSize   int
	DedupTTL    time.Duration
}

// ReplenishmentConfig holds the default ranking parameters
type ReplenishmentConfig struct {
	WindowDays      int
	MinCoverageDays int
	Channel         string
}

// OrchestrationConfig holds the batch completion workflow settings
type OrchestrationConfig struct {
	Channel         string
	SupplyWaitDelay time.Duration
	MaxRequeues     int // wait rounds of one completion before it is abandoned
	EffectTTL       time.Duration
	MaxRedeliveries int
	RedeliveryDelay time.Duration
	Workers         int
}

// OutboxConfig holds the outbox relay settings
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	ClaimHold    time.Duration // how long a claimed entry is hidden from other relays
	Retention    time.Duration // how long sent entries are kept
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with WBM_ prefix (e.g., WBM_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("WBM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
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
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
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
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RateLimit:      v.GetInt("http.rate_limit"),
			RateWindow:     v.GetDuration("http.rate_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			Traces:            v.GetBool("telemetry.traces"),
			Logs:              v.GetBool("telemetry.logs"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Marketplace: MarketplaceConfig{
			StatisticsBaseURL:  v.GetString("marketplace.statistics_base_url"),
			MarketplaceBaseURL: v.GetString("marketplace.marketplace_base_url"),
			TimeoutSeconds:     v.GetInt("marketplace.timeout_seconds"),
			CollapseTTL:        v.GetDuration("marketplace.collapse_ttl"),
			PageTTL:            v.GetDuration("marketplace.page_ttl"),
			RetryMaxAttempts:   v.GetInt("marketplace.retry_max_attempts"),
			RetryDelay:         v.GetDuration("marketplace.retry_delay"),
			RetryMaxDelay:      v.GetDuration("marketplace.retry_max_delay"),
		},
		Sync: SyncConfig{
			Enabled:           v.GetBool("sync.enabled"),
			OrdersInterval:    v.GetDuration("sync.orders_interval"),
			StocksInterval:    v.GetDuration("sync.stocks_interval"),
			PurgeInterval:     v.GetDuration("sync.purge_interval"),
			ResetInterval:     v.GetDuration("sync.reset_interval"),
			OrdersLookback:    v.GetDuration("sync.orders_lookback"),
			StocksLookback:    v.GetDuration("sync.stocks_lookback"),
			OrdersByDay:       v.GetBool("sync.orders_by_day"),
			OrderRetention:    v.GetDuration("sync.order_retention"),
			IngestConcurrency: v.GetInt("sync.ingest_concurrency"),
			MaxConcurrentJobs: v.GetInt("sync.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("sync.job_timeout"),
			RetryAttempts:     v.GetInt("sync.retry_attempts"),
			RetryDelay:        v.GetDuration("sync.retry_delay"),
			OrderDedupTTL:     v.GetDuration("sync.order_dedup_ttl"),
			StockDedupTTL:     v.GetDuration("sync.stock_dedup_ttl"),
		},
		StockReset: StockResetConfig{
			Threshold:   v.GetInt("stock_reset.threshold"),
			FallbackMin: v.GetInt("stock_reset.fallback_min"),
			FallbackMax: v.GetInt("stock_reset.fallback_max"),
			ChunkSize:   v.GetInt("stock_reset.chunk_size"),
			DedupTTL:    v.GetDuration("stock_reset.dedup_ttl"),
		},
		Replenishment: ReplenishmentConfig{
			WindowDays:      v.GetInt("replenishment.window_days"),
			MinCoverageDays: v.GetInt("replenishment.min_coverage_days"),
			Channel:         v.GetString("replenishment.channel"),
		},
		Orchestration: OrchestrationConfig{
			Channel:         v.GetString("orchestration.channel"),
			SupplyWaitDelay: v.GetDuration("orchestration.supply_wait_delay"),
			MaxRequeues:     v.GetInt("orchestration.max_requeues"),
			EffectTTL:       v.GetDuration("orchestration.effect_ttl"),
			MaxRedeliveries: v.GetInt("orchestration.max_redeliveries"),
			RedeliveryDelay: v.GetDuration("orchestration.redelivery_delay"),
			Workers:         v.GetInt("orchestration.workers"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
			ClaimHold:    v.GetDuration("outbox.claim_hold"),
			Retention:    v.GetDuration("outbox.retention"),
		},
	}

	if err := v.UnmarshalKey("marketplace.accounts", &cfg.Marketplace.Accounts); err != nil {
		return nil, fmt.Errorf("error reading marketplace.accounts: %w", err)
	}
	// A single account can be supplied through the environment alone
	if id := v.GetString("marketplace.account_id"); id != "" {
		cfg.Marketplace.Accounts = append(cfg.Marketplace.Accounts, AccountConfig{
			ID:      id,
			Token:   v.GetString("marketplace.token"),
			Enabled: true,
		})
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
		cfg.App.Name = "wb-manufacture"
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
	if cfg.Database.Path == "" {
		cfg.Database.Path = "manufacture.db"
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
		cfg.Database.DBName = "manufacture"
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
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "wbm"
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
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateWindow == 0 {
		cfg.HTTP.RateWindow = time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.SamplingRatio <= 0 || cfg.Telemetry.SamplingRatio > 1 {
		cfg.Telemetry.SamplingRatio = 1
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Marketplace.StatisticsBaseURL == "" {
		cfg.Marketplace.StatisticsBaseURL = "https://statistics-api.wildberries.ru"
	}
	if cfg.Marketplace.MarketplaceBaseURL == "" {
		cfg.Marketplace.MarketplaceBaseURL = "https://marketplace-api.wildberries.ru"
	}
	if cfg.Marketplace.TimeoutSeconds == 0 {
		cfg.Marketplace.TimeoutSeconds = 60
	}
	if cfg.Marketplace.CollapseTTL == 0 {
		cfg.Marketplace.CollapseTTL = time.Second
	}
	if cfg.Marketplace.PageTTL == 0 {
		cfg.Marketplace.PageTTL = time.Hour
	}
	if cfg.Marketplace.RetryMaxAttempts == 0 {
		cfg.Marketplace.RetryMaxAttempts = 5
	}
	if cfg.Marketplace.RetryDelay == 0 {
		cfg.Marketplace.RetryDelay = time.Minute
	}
	if cfg.Marketplace.RetryMaxDelay == 0 {
		cfg.Marketplace.RetryMaxDelay = 5 * time.Minute
	}

	// Orders every 30 minutes over the last 30 minutes, stocks daily over the last day
	if cfg.Sync.OrdersInterval == 0 {
		cfg.Sync.OrdersInterval = 30 * time.Minute
	}
	if cfg.Sync.StocksInterval == 0 {
		cfg.Sync.StocksInterval = 24 * time.Hour
	}
	if cfg.Sync.PurgeInterval == 0 {
		cfg.Sync.PurgeInterval = 24 * time.Hour
	}
	if cfg.Sync.ResetInterval == 0 {
		cfg.Sync.ResetInterval = 24 * time.Hour
	}
	if cfg.Sync.OrdersLookback == 0 {
		cfg.Sync.OrdersLookback = 30 * time.Minute
	}
	if cfg.Sync.StocksLookback == 0 {
		cfg.Sync.StocksLookback = 24 * time.Hour
	}
	if cfg.Sync.OrderRetention == 0 {
		cfg.Sync.OrderRetention = 14 * 24 * time.Hour
	}
	if cfg.Sync.IngestConcurrency == 0 {
		cfg.Sync.IngestConcurrency = 8
	}
	if cfg.Sync.MaxConcurrentJobs == 0 {
		cfg.Sync.MaxConcurrentJobs = 4
	}
	if cfg.Sync.JobTimeout == 0 {
		cfg.Sync.JobTimeout = 30 * time.Minute
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = time.Minute
	}
	if cfg.Sync.OrderDedupTTL == 0 {
		cfg.Sync.OrderDedupTTL = 24 * time.Hour
	}
	if cfg.Sync.StockDedupTTL == 0 {
		cfg.Sync.StockDedupTTL = time.Hour
	}

	if cfg.StockReset.Threshold == 0 {
		cfg.StockReset.Threshold = 5
	}
	if cfg.StockReset.FallbackMin == 0 {
		cfg.StockReset.FallbackMin = 1000
	}
	if cfg.StockReset.FallbackMax == 0 {
		cfg.StockReset.FallbackMax = 2000
	}
	if cfg.StockReset.ChunkSize == 0 {
		cfg.StockReset.ChunkSize = 1000
	}
	if cfg.StockReset.DedupTTL == 0 {
		cfg.StockReset.DedupTTL = time.Hour
	}

	if cfg.Replenishment.WindowDays == 0 {
		cfg.Replenishment.WindowDays = 14
	}
	if cfg.Replenishment.MinCoverageDays == 0 {
		cfg.Replenishment.MinCoverageDays = 14
	}
	if cfg.Replenishment.Channel == "" {
		cfg.Replenishment.Channel = "wildberries-fbs"
	}

	if cfg.Orchestration.Channel == "" {
		cfg.Orchestration.Channel = "wildberries-fbs"
	}
	if cfg.Orchestration.SupplyWaitDelay == 0 {
		cfg.Orchestration.SupplyWaitDelay = 3 * time.Second
	}
	if cfg.Orchestration.MaxRequeues == 0 {
		cfg.Orchestration.MaxRequeues = 20
	}
	if cfg.Orchestration.EffectTTL == 0 {
		cfg.Orchestration.EffectTTL = 24 * time.Hour
	}
	if cfg.Orchestration.MaxRedeliveries == 0 {
		cfg.Orchestration.MaxRedeliveries = 5
	}
	if cfg.Orchestration.RedeliveryDelay == 0 {
		cfg.Orchestration.RedeliveryDelay = 5 * time.Second
	}
	if cfg.Orchestration.Workers == 0 {
		cfg.Orchestration.Workers = 4
	}

	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.ClaimHold == 0 {
		cfg.Outbox.ClaimHold = time.Minute
	}
	if cfg.Outbox.Retention == 0 {
		cfg.Outbox.Retention = 7 * 24 * time.Hour
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

	if c.App.Env == "production" {
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Marketplace.RetryMaxAttempts < 1 {
		return fmt.Errorf("marketplace.retry_max_attempts must be at least 1")
	}
	if c.Marketplace.RetryMaxDelay < c.Marketplace.RetryDelay {
		return fmt.Errorf("marketplace.retry_max_delay (%s) cannot be below marketplace.retry_delay (%s)",
			c.Marketplace.RetryMaxDelay, c.Marketplace.RetryDelay)
	}
	seen := make(map[string]bool, len(c.Marketplace.Accounts))
	for i, a := range c.Marketplace.Accounts {
		if a.ID == "" {
			return fmt.Errorf("marketplace.accounts[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("marketplace.accounts[%d].id %s is duplicated", i, a.ID)
		}
		seen[a.ID] = true
		if a.Enabled && a.Token == "" {
			return fmt.Errorf("marketplace.accounts[%d].token is required for an enabled account", i)
		}
	}

	if c.Sync.IngestConcurrency < 1 {
		return fmt.Errorf("sync.ingest_concurrency must be positive")
	}
	if c.Sync.OrderRetention < 24*time.Hour {
		return fmt.Errorf("sync.order_retention must be at least one day, got %s", c.Sync.OrderRetention)
	}
	if c.StockReset.FallbackMin > c.StockReset.FallbackMax {
		return fmt.Errorf("stock_reset.fallback_min (%d) cannot exceed stock_reset.fallback_max (%d)",
			c.StockReset.FallbackMin, c.StockReset.FallbackMax)
	}
	if c.StockReset.ChunkSize > 1000 {
		return fmt.Errorf("stock_reset.chunk_size cannot exceed 1000, got %d", c.StockReset.ChunkSize)
	}
	if c.Replenishment.WindowDays < 1 || c.Replenishment.MinCoverageDays < 1 {
		return fmt.Errorf("replenishment window and coverage days must be positive")
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

// IsSQLite returns true when the sqlite driver is selected
func (d *DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}
