package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "licensebeat/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	AccountID  string          `yaml:"account_id" envconfig:"ACCOUNT_ID" validate:"required"`
	BaseURL    string          `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	LicenseKey string          `yaml:"-" envconfig:"LICENSE_KEY"`
	Debug      bool            `yaml:"debug" envconfig:"DEBUG"`
	Gateway    GatewayConfig   `yaml:"gateway" envconfig:"GATEWAY"`
	Heartbeat  HeartbeatConfig `yaml:"heartbeat" envconfig:"HEARTBEAT"`
	Logging    LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Status     StatusConfig    `yaml:"status" envconfig:"STATUS"`
	Telemetry  TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// GatewayConfig contains licensing API client configuration
type GatewayConfig struct {
	RPS       float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst     int     `yaml:"burst" envconfig:"BURST" validate:"gt=0"`
	UserAgent string  `yaml:"user_agent" envconfig:"USER_AGENT" validate:"required"`
	// PinnedSPKI restricts TLS to servers presenting one of these SPKI
	// SHA-256 hashes (hex). Empty trusts the system roots alone.
	PinnedSPKI []string `yaml:"pinned_spki" envconfig:"PINNED_SPKI" validate:"dive,len=64,hexadecimal"`
}

// HeartbeatConfig contains heartbeat scheduling configuration
type HeartbeatConfig struct {
	SafetyMargin time.Duration `yaml:"safety_margin" envconfig:"SAFETY_MARGIN"`
	MinPeriod    time.Duration `yaml:"min_period" envconfig:"MIN_PERIOD"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StatusConfig contains the local status server configuration.
// An empty Addr disables the server.
type StatusConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR" validate:"omitempty,hostname_port"`
}

// TelemetryConfig contains OpenTelemetry exporter selection
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).
				WithContext("path", configFile)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	// envconfig already falls back to the unprefixed name (DEBUG,
	// LICENSE_KEY). The account id is commonly exported under the name the
	// Keygen tooling uses.
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv("KEYGEN_ACCOUNT_ID")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// AccountURL returns the account-scoped API root
func (c *Config) AccountURL() string {
	return fmt.Sprintf("%s/accounts/%s", strings.TrimRight(c.BaseURL, "/"), c.AccountID)
}

// LogLevel returns the effective log level; debug mode forces "debug".
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.Logging.Level
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.AccountID == "" {
		return apperrors.NewConfigError("config validation failed", apperrors.ErrMissingAccount)
	}

	if err := validator.New().Struct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}

	if c.Heartbeat.SafetyMargin < 0 {
		return apperrors.NewConfigError("config validation failed",
			fmt.Errorf("heartbeat safety margin must not be negative: %s", c.Heartbeat.SafetyMargin))
	}

	if c.Heartbeat.MinPeriod <= 0 {
		return apperrors.NewConfigError("config validation failed",
			fmt.Errorf("heartbeat minimum period must be positive: %s", c.Heartbeat.MinPeriod))
	}

	// Always JSON
	c.Logging.Format = "json"

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		"licensebeat.yaml",
		"configs/licensebeat.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Gateway: GatewayConfig{
			RPS:       DefaultGatewayRPS,
			Burst:     DefaultGatewayBurst,
			UserAgent: AppName + "/" + AppVersion,
		},
		Heartbeat: HeartbeatConfig{
			SafetyMargin: DefaultSafetyMargin,
			MinPeriod:    DefaultMinHeartbeatPeriod,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "file",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}
