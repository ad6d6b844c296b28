// Package config loads application configuration from config.yaml and the
// environment and initializes the global logger.
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
	Impact   ImpactConfig   `yaml:"impact" mapstructure:"impact"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Rules    RulesConfig    `yaml:"rules" mapstructure:"rules"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ImpactConfig holds reporting API credentials and connection settings.
// Credentials are read from config or environment and passed to the client;
// they are never logged and never written back to disk.
type ImpactConfig struct {
	AccountSID    string  `yaml:"account_sid" mapstructure:"account_sid"`
	AuthToken     string  `yaml:"auth_token" mapstructure:"auth_token"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	SubAID        string  `yaml:"subaid" mapstructure:"subaid"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the run-state database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	LookbackDays       int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	RequestSpacingSecs float64 `yaml:"request_spacing_secs" mapstructure:"request_spacing_secs"`
	DeadlineSecs       int     `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	PollMaxAttempts    int     `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
	PollInitialSecs    float64 `yaml:"poll_initial_secs" mapstructure:"poll_initial_secs"`
	PollMaxSecs        float64 `yaml:"poll_max_secs" mapstructure:"poll_max_secs"`
	PollMultiplier     float64 `yaml:"poll_multiplier" mapstructure:"poll_multiplier"`
}

// RetryConfig configures per-request retries on the API client.
type RetryConfig struct {
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the run-wide circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RulesConfig locates the team attribution rules file.
type RulesConfig struct {
	TeamsFile string `yaml:"teams_file" mapstructure:"teams_file"`
}

// OutputConfig configures report output.
type OutputConfig struct {
	WorkbookPath string `yaml:"workbook_path" mapstructure:"workbook_path"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("IMPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("impact.base_url", "https://api.impact.com")
	v.SetDefault("impact.rate_per_second", 2.0)
	v.SetDefault("impact.timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "runs.db")
	v.SetDefault("pipeline.lookback_days", 30)
	v.SetDefault("pipeline.request_spacing_secs", 2.0)
	v.SetDefault("pipeline.deadline_secs", 0)
	v.SetDefault("pipeline.poll_max_attempts", 10)
	v.SetDefault("pipeline.poll_initial_secs", 5.0)
	v.SetDefault("pipeline.poll_max_secs", 60.0)
	v.SetDefault("pipeline.poll_multiplier", 1.5)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("rules.teams_file", "teams.yaml")
	v.SetDefault("output.workbook_path", "report.xlsx")
	v.SetDefault("server.port", 8080)
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

// Validate checks the configuration for the given mode: "pipeline" (run and
// resume), "serve", or "offline" (rules and report tooling, no credentials).
// Hard problems (missing credentials, out-of-range bounds) come back as a
// single error. Conditions the pipeline degrades around come back as
// warnings: with no teams file configured every record lands in the
// Unassigned bucket, but ingestion still runs.
func (c *Config) Validate(mode string) (warnings []string, err error) {
	var problems []string

	bounds := func() {
		if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
			problems = append(problems, "retry.max_retries must be between 0 and 10")
		}
		if c.Retry.InitialBackoffMs < 1 {
			problems = append(problems, "retry.initial_backoff_ms must be >= 1")
		}
		if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
			problems = append(problems, "retry.max_backoff_ms must be >= retry.initial_backoff_ms")
		}
		if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
			problems = append(problems, "retry.jitter_fraction must be between 0 and 1")
		}
		if c.Circuit.FailureThreshold < 1 {
			problems = append(problems, "circuit.failure_threshold must be >= 1")
		}
		if c.Pipeline.PollMaxAttempts < 1 {
			problems = append(problems, "pipeline.poll_max_attempts must be >= 1")
		}
		if c.Pipeline.PollMultiplier < 1 {
			problems = append(problems, "pipeline.poll_multiplier must be >= 1")
		}
		if c.Impact.RatePerSecond <= 0 {
			problems = append(problems, "impact.rate_per_second must be > 0")
		}
	}

	credentials := func() {
		if c.Impact.AccountSID == "" {
			problems = append(problems, "impact.account_sid is required")
		}
		if c.Impact.AuthToken == "" {
			problems = append(problems, "impact.auth_token is required")
		}
		if c.Rules.TeamsFile == "" {
			warnings = append(warnings, "rules.teams_file is not set: every record will be attributed to Unassigned")
		}
	}

	switch mode {
	case "pipeline":
		credentials()
		bounds()
	case "serve":
		credentials()
		bounds()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "offline":
		// Nothing beyond structural bounds.
		bounds()
	default:
		return nil, eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return warnings, eris.New("config: " + strings.Join(problems, "; "))
	}
	return warnings, nil
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
