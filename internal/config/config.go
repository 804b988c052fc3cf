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
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	FTP        FTPConfig        `yaml:"ftp" mapstructure:"ftp"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the ledger database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for vision OCR and parsing.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	VisionModel       string `yaml:"vision_model" mapstructure:"vision_model"`
	ParseModel        string `yaml:"parse_model" mapstructure:"parse_model"`
	MaxTokens         int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	CacheBackend  string `yaml:"cache_backend" mapstructure:"cache_backend"`
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// PathsConfig locates the on-disk inputs and outputs.
type PathsConfig struct {
	InvoicesDir       string `yaml:"invoices_dir" mapstructure:"invoices_dir"`
	FarmsConfig       string `yaml:"farms_config" mapstructure:"farms_config"`
	DynamicRules      string `yaml:"dynamic_rules" mapstructure:"dynamic_rules"`
	StructuredOutputs string `yaml:"structured_outputs" mapstructure:"structured_outputs"`
}

// IngestConfig configures attribution thresholds.
type IngestConfig struct {
	ManualReviewThreshold float64 `yaml:"manual_review_threshold" mapstructure:"manual_review_threshold"`
}

// RetryConfig configures retry behavior for external API calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the circuit breaker around the LLM provider.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// FTPConfig configures the invoice drop fetcher.
type FTPConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures webhook alerts on ingest health. Zero
// thresholds disable the matching alert.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ReviewBacklogThreshold int     `yaml:"review_backlog_threshold" mapstructure:"review_backlog_threshold"`
	ParseFailureThreshold  int     `yaml:"parse_failure_threshold" mapstructure:"parse_failure_threshold"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("FARMLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/farm_ledger.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	// Empty defaults register secrets so FARMLEDGER_* env vars reach Unmarshal.
	for _, key := range []string{"anthropic.key", "ocr.mistral_key", "ocr.redis_addr", "ftp.url", "ftp.user", "ftp.password"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.parse_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_minute", 50)
	v.SetDefault("ocr.provider", "anthropic")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.max_pages", 3)
	v.SetDefault("ocr.cache_backend", "file")
	v.SetDefault("ocr.cache_dir", "data/vision_cache")
	v.SetDefault("paths.invoices_dir", "invoices")
	v.SetDefault("paths.farms_config", "data/farms.json")
	v.SetDefault("paths.dynamic_rules", "data/dynamic_rules.json")
	v.SetDefault("paths.structured_outputs", "data/structured")
	v.SetDefault("ingest.manual_review_threshold", 0.85)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("ftp.dir", "/")
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.review_backlog_threshold", 50)
	v.SetDefault("monitoring.parse_failure_threshold", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the settings a command depends on are present and in
// range. Mode is one of "ingest", "review", "serve", "fetch" or "export".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Ingest.ManualReviewThreshold < 0 || c.Ingest.ManualReviewThreshold > 1 {
		errs = append(errs, "ingest.manual_review_threshold must be between 0 and 1")
	}

	switch mode {
	case "ingest", "serve":
		if c.Paths.FarmsConfig == "" {
			errs = append(errs, "paths.farms_config is required")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" {
			errs = append(errs, "ocr.mistral_key is required for the mistral provider")
		}
		if c.OCR.CacheBackend == "redis" && c.OCR.RedisAddr == "" {
			errs = append(errs, "ocr.redis_addr is required for the redis cache")
		}
		if c.OCR.MaxPages < 1 {
			errs = append(errs, "ocr.max_pages must be > 0")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "review":
		if c.Paths.FarmsConfig == "" {
			errs = append(errs, "paths.farms_config is required")
		}
		if c.Paths.DynamicRules == "" {
			errs = append(errs, "paths.dynamic_rules is required")
		}
	case "fetch":
		if c.FTP.URL == "" {
			errs = append(errs, "ftp.url is required")
		}
		if c.Paths.InvoicesDir == "" {
			errs = append(errs, "paths.invoices_dir is required")
		}
	case "export":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
