package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Model        string  `yaml:"model" mapstructure:"model"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// PricingConfig configures the pricing worker.
type PricingConfig struct {
	PollIntervalMs       int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	AITimeoutMs          int     `yaml:"ai_timeout_ms" mapstructure:"ai_timeout_ms"`
	FallbackTargetMargin float64 `yaml:"fallback_target_margin" mapstructure:"fallback_target_margin"`
	FallbackMinMargin    float64 `yaml:"fallback_min_margin" mapstructure:"fallback_min_margin"`
	AIBandClamp          bool    `yaml:"ai_band_clamp" mapstructure:"ai_band_clamp"`
	FallbackOnly         bool    `yaml:"fallback_only" mapstructure:"fallback_only"`
}

// PollInterval returns the worker idle sleep as a duration.
func (p PricingConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// AITimeout returns the per-snapshot AI budget as a duration.
func (p PricingConfig) AITimeout() time.Duration {
	return time.Duration(p.AITimeoutMs) * time.Millisecond
}

// ResilienceConfig configures retries and the circuit breaker around the AI call.
type ResilienceConfig struct {
	RetryAttempts         int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	CircuitThreshold      int `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs      int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// MonitoringConfig configures queue health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MaxPendingAgeMins     int     `yaml:"max_pending_age_mins" mapstructure:"max_pending_age_mins"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MCPEnabled  bool     `yaml:"mcp_enabled" mapstructure:"mcp_enabled"`
	// EmbedWorker runs the pricing worker inside the serve process.
	EmbedWorker bool `yaml:"embed_worker" mapstructure:"embed_worker"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables use the PRICING_ prefix with dots replaced by
// underscores (PRICING_PRICING_POLL_INTERVAL_MS).
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.rate_limit_rps", 2.0)
	v.SetDefault("anthropic.rate_burst", 1)
	v.SetDefault("pricing.poll_interval_ms", 5000)
	v.SetDefault("pricing.ai_timeout_ms", 4000)
	v.SetDefault("pricing.fallback_target_margin", 0.18)
	v.SetDefault("pricing.fallback_min_margin", 0.10)
	v.SetDefault("pricing.ai_band_clamp", false)
	v.SetDefault("pricing.fallback_only", false)
	v.SetDefault("resilience.retry_attempts", 2)
	v.SetDefault("resilience.retry_initial_backoff_ms", 250)
	v.SetDefault("resilience.retry_max_backoff_ms", 1000)
	v.SetDefault("resilience.circuit_threshold", 5)
	v.SetDefault("resilience.circuit_reset_secs", 30)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.5)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.max_pending_age_mins", 15)
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.mcp_enabled", false)
	v.SetDefault("server.embed_worker", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a given command mode depends on and reports
// every problem at once. Modes: worker, serve, enqueue, store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required (sqlite file path)")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "worker":
		problems = append(problems, c.validateWorker()...)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.EmbedWorker {
			problems = append(problems, c.validateWorker()...)
		}
	case "enqueue", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateWorker() []string {
	var problems []string
	if c.Anthropic.Key == "" && !c.Pricing.FallbackOnly {
		problems = append(problems, "anthropic.key is required unless pricing.fallback_only is set")
	}
	if c.Pricing.PollIntervalMs <= 0 {
		problems = append(problems, "pricing.poll_interval_ms must be > 0")
	}
	if c.Pricing.AITimeoutMs <= 0 || c.Pricing.AITimeoutMs >= c.Pricing.PollIntervalMs {
		problems = append(problems, "pricing.ai_timeout_ms must be > 0 and below pricing.poll_interval_ms")
	}
	if c.Pricing.FallbackMinMargin < 0 || c.Pricing.FallbackMinMargin >= 1 {
		problems = append(problems, "pricing.fallback_min_margin must be in [0, 1)")
	}
	if c.Pricing.FallbackTargetMargin < c.Pricing.FallbackMinMargin || c.Pricing.FallbackTargetMargin >= 1 {
		problems = append(problems, "pricing.fallback_target_margin must be in [fallback_min_margin, 1)")
	}
	if c.Anthropic.MaxTokens <= 0 {
		problems = append(problems, "anthropic.max_tokens must be > 0")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		problems = append(problems, "anthropic.temperature must be between 0 and 1")
	}
	return problems
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
