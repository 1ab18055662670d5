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
	Warehouse   WarehouseConfig   `yaml:"warehouse" mapstructure:"warehouse"`
	RecordStore RecordStoreConfig `yaml:"record_store" mapstructure:"record_store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Engine      EngineConfig      `yaml:"engine" mapstructure:"engine"`
	Extract     ExtractConfig     `yaml:"extract" mapstructure:"extract"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// WarehouseConfig holds Snowflake connection settings for the views that feed
// the pipeline (PO lines, bills) and for the production record-store tables.
type WarehouseConfig struct {
	Account   string `yaml:"account" mapstructure:"account"`
	User      string `yaml:"user" mapstructure:"user"`
	Password  string `yaml:"password" mapstructure:"password"`
	Database  string `yaml:"database" mapstructure:"database"`
	Schema    string `yaml:"schema" mapstructure:"schema"`
	Warehouse string `yaml:"warehouse" mapstructure:"warehouse"`
	Role      string `yaml:"role" mapstructure:"role"`
}

// Complete reports whether every required warehouse credential is present.
func (w WarehouseConfig) Complete() bool {
	return w.Account != "" && w.User != "" && w.Password != "" &&
		w.Database != "" && w.Schema != "" && w.Warehouse != ""
}

// RecordStoreConfig selects the durable already-processed store backend.
// Driver "snowflake" shares the warehouse connection; "postgres" targets a
// self-hosted mirror via DatabaseURL.
type RecordStoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds AI judge settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMin int     `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// EngineConfig holds the accrual decision rules. The threshold is expressed
// in USD regardless of the entity's local currency; StaticRates is the
// fallback local-to-USD table used only when a line carries no embedded
// ratio, and its use is flagged in the decision reasoning.
type EngineConfig struct {
	MinAccrualAmountUSD float64            `yaml:"min_accrual_amount_usd" mapstructure:"min_accrual_amount_usd"`
	ExcludedGLAccounts  []string           `yaml:"excluded_gl_accounts" mapstructure:"excluded_gl_accounts"`
	Workers             int                `yaml:"workers" mapstructure:"workers"`
	StaticRates         map[string]float64 `yaml:"static_rates" mapstructure:"static_rates"`
}

// ExtractConfig configures the invoice extraction pipeline.
type ExtractConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	InvoicesDir string `yaml:"invoices_dir" mapstructure:"invoices_dir"`
	ResultsDir  string `yaml:"results_dir" mapstructure:"results_dir"`
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
	v.SetEnvPrefix("ACCRUALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("record_store.driver", "snowflake")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("anthropic.temperature", 0.1)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anthropic.requests_per_min", 60)
	v.SetDefault("engine.min_accrual_amount_usd", 5000)
	v.SetDefault("engine.excluded_gl_accounts", []string{"4550", "6080", "6090", "6092"})
	v.SetDefault("engine.workers", 3)
	v.SetDefault("engine.static_rates", map[string]float64{
		"EUR": 1.1,
		"GBP": 1.25,
		"CAD": 0.75,
		"JPY": 0.007,
	})
	v.SetDefault("extract.workers", 3)
	v.SetDefault("paths.invoices_dir", "data/invoices")
	v.SetDefault("paths.results_dir", "data/results")

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

// Validate checks that a partial run cannot start with missing credentials.
// Configuration errors are fatal at startup; no workers are spawned.
func (c *Config) Validate() error {
	if !c.Warehouse.Complete() {
		return eris.New("config: warehouse credentials incomplete (account, user, password, database, schema, warehouse are required)")
	}
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic key not configured")
	}
	if c.Engine.MinAccrualAmountUSD <= 0 {
		return eris.New("config: engine.min_accrual_amount_usd must be positive")
	}
	if c.RecordStore.Driver == "postgres" && c.RecordStore.DatabaseURL == "" {
		return eris.New("config: record_store.database_url required for postgres driver")
	}
	return nil
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
