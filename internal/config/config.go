// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Render     RenderConfig     `mapstructure:"render"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScanConfig governs batching and oracle pacing.
type ScanConfig struct {
	BatchSize             int `mapstructure:"batch_size"`
	MinOracleDelaySeconds int `mapstructure:"min_oracle_delay_seconds"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	UserAgent             string  `mapstructure:"user_agent"`
	DOMReadyTimeoutSec    int     `mapstructure:"domready_timeout_seconds"`
	NetworkIdleTimeoutSec int     `mapstructure:"networkidle_timeout_seconds"`
	LoadTimeoutSec        int     `mapstructure:"load_timeout_seconds"`
	HostQPS               float64 `mapstructure:"host_qps"`
}

// OracleConfig points the judge at an OpenAI-compatible endpoint.
type OracleConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	APIKeyEnv      string `mapstructure:"api_key_env"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// StorageConfig selects the blob backend for page context archival.
type StorageConfig struct {
	// Backend is "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEVET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("scan.batch_size", 5)
	v.SetDefault("scan.min_oracle_delay_seconds", 10)
	v.SetDefault("render.user_agent", "pagevet-audit/0.1")
	v.SetDefault("render.domready_timeout_seconds", 10)
	v.SetDefault("render.networkidle_timeout_seconds", 20)
	v.SetDefault("render.load_timeout_seconds", 40)
	v.SetDefault("render.host_qps", 0.5)
	v.SetDefault("oracle.base_url", "https://api.openai.com/v1")
	v.SetDefault("oracle.model", "gpt-4.1-mini")
	v.SetDefault("oracle.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("oracle.timeout_seconds", 60)
	v.SetDefault("oracle.max_attempts", 4)
	v.SetDefault("checkpoint.backend", "memory")
	v.SetDefault("checkpoint.table", "scan_checkpoints")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be > 0")
	}
	if c.Scan.MinOracleDelaySeconds < 0 {
		return fmt.Errorf("scan.min_oracle_delay_seconds must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Checkpoint.Backend {
	case "memory":
	case "postgres":
		if c.Checkpoint.DSN == "" {
			return fmt.Errorf("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Notify.Enabled && (c.Notify.ProjectID == "" || c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify is enabled")
	}
	return nil
}

// ServerTimeout converts the server timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// MinOracleDelay converts the scan pacing knob into a duration.
func (c Config) MinOracleDelay() time.Duration {
	return time.Duration(c.Scan.MinOracleDelaySeconds) * time.Second
}
