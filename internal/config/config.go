package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// EngineCredential is one credentialed search backend account.
type EngineCredential struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	Key            string `yaml:"key" mapstructure:"key"`
	DailyFreeQuota int    `yaml:"daily_free_quota" mapstructure:"daily_free_quota"`
}

// SearchConfig configures the search engine pool.
type SearchConfig struct {
	Engines        []EngineCredential `yaml:"engines" mapstructure:"engines"`
	BillingEnabled bool               `yaml:"billing_enabled" mapstructure:"billing_enabled"`
	PaidCostUSD    float64            `yaml:"paid_cost_usd" mapstructure:"paid_cost_usd"`
	MaxRetries     int                `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond  float64            `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs    int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // memory | redis
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Redis    struct {
		Addr     string `yaml:"addr" mapstructure:"addr"`
		Password string `yaml:"password" mapstructure:"password"`
		DB       int    `yaml:"db" mapstructure:"db"`
	} `yaml:"redis" mapstructure:"redis"`
}

// BudgetConfig configures spend ceilings and retention.
type BudgetConfig struct {
	DailyCeilingUSD   float64 `yaml:"daily_ceiling_usd" mapstructure:"daily_ceiling_usd"`
	MonthlyCeilingUSD float64 `yaml:"monthly_ceiling_usd" mapstructure:"monthly_ceiling_usd"`
	RetentionDays     int     `yaml:"retention_days" mapstructure:"retention_days"`
}

// DiscoveryConfig configures discovery runs.
type DiscoveryConfig struct {
	MaxQueriesPerRun     int     `yaml:"max_queries_per_run" mapstructure:"max_queries_per_run"`
	StrategiesPerSource  int     `yaml:"strategies_per_source" mapstructure:"strategies_per_source"`
	MaxConcurrentSources int     `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	SuccessRateFloor     float64 `yaml:"success_rate_floor" mapstructure:"success_rate_floor"`
}

// ExtractionConfig configures venue page extraction.
type ExtractionConfig struct {
	NavTimeoutSecs int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ProductFamily  string `yaml:"product_family" mapstructure:"product_family"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// QualityConfig configures source health and learning thresholds.
type QualityConfig struct {
	MinSourceSamples   int     `yaml:"min_source_samples" mapstructure:"min_source_samples"`
	SourceSuccessFloor float64 `yaml:"source_success_floor" mapstructure:"source_success_floor"`
	SourceErrorCeiling float64 `yaml:"source_error_ceiling" mapstructure:"source_error_ceiling"`
	MinCycleRecords    int     `yaml:"min_cycle_records" mapstructure:"min_cycle_records"`
	MinTierSamples     int     `yaml:"min_tier_samples" mapstructure:"min_tier_samples"`
	PromoteRate        float64 `yaml:"promote_rate" mapstructure:"promote_rate"`
	DemoteRate         float64 `yaml:"demote_rate" mapstructure:"demote_rate"`
	WindowDays         int     `yaml:"window_days" mapstructure:"window_days"`
}

// AnthropicConfig holds Anthropic API settings for strategy evolution.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	CostPerCallUSD float64 `yaml:"cost_per_call_usd" mapstructure:"cost_per_call_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MENUSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "menuscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.rate_per_second", 5)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.paid_cost_usd", 0.005)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("budget.daily_ceiling_usd", 10.0)
	v.SetDefault("budget.monthly_ceiling_usd", 200.0)
	v.SetDefault("budget.retention_days", 90)
	v.SetDefault("discovery.max_queries_per_run", 50)
	v.SetDefault("discovery.strategies_per_source", 5)
	v.SetDefault("discovery.max_concurrent_sources", 4)
	v.SetDefault("discovery.success_rate_floor", 0.15)
	v.SetDefault("extraction.nav_timeout_secs", 30)
	v.SetDefault("extraction.product_family", "")
	v.SetDefault("extraction.user_agent", "Mozilla/5.0 (compatible; menuscout/1.0)")
	v.SetDefault("quality.min_source_samples", 10)
	v.SetDefault("quality.source_success_floor", 0.15)
	v.SetDefault("quality.source_error_ceiling", 0.40)
	v.SetDefault("quality.min_cycle_records", 10)
	v.SetDefault("quality.min_tier_samples", 5)
	v.SetDefault("quality.promote_rate", 0.70)
	v.SetDefault("quality.demote_rate", 0.20)
	v.SetDefault("quality.window_days", 7)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.cost_per_call_usd", 0.01)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
